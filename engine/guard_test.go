package engine

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"stablecore/crypto"
	"stablecore/oracle"
	"stablecore/token"
)

// reentrantToken wraps a bank and fires a hook from inside TransferFrom,
// modelling a token contract that calls back into the engine mid-transfer.
type reentrantToken struct {
	inner *token.Bank
	hook  func()
}

func (r *reentrantToken) Transfer(to crypto.Address, amount *big.Int) bool {
	return r.inner.Transfer(to, amount)
}

func (r *reentrantToken) TransferFrom(from, to crypto.Address, amount *big.Int) bool {
	if r.hook != nil {
		hook := r.hook
		r.hook = nil
		hook()
	}
	return r.inner.TransferFrom(from, to, amount)
}

func TestNestedMutationRejected(t *testing.T) {
	module := makeAddress(0x01)
	actor := makeAddress(0x20)

	feed := oracle.NewManualSource()
	feed.Set("WETH", feedPrice(2_000), time.Now())
	bank := token.NewBank("WETH", module)
	evil := &reentrantToken{inner: bank}
	debt := token.NewBank("CUSD", module)

	registry, err := NewRegistry([]string{"WETH"}, []oracle.PriceSource{feed}, []token.CollateralToken{evil})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	eng := New(module, registry, debt)
	eng.SetState(newMockState())

	var nested error
	called := false
	evil.hook = func() {
		called = true
		nested = eng.MintDebt(actor, usd(1))
	}

	bank.Mint(actor, eth(1))
	if err := eng.DepositCollateral(actor, "WETH", eth(1)); err != nil {
		t.Fatalf("outer deposit: %v", err)
	}
	if !called {
		t.Fatalf("token callback never fired")
	}
	if !errors.Is(nested, ErrReentrantCall) {
		t.Fatalf("nested call: got %v, want reentrancy rejection", nested)
	}
	if eng.entered.Load() {
		t.Fatalf("guard flag left set after the outer call returned")
	}

	// The guard resets, so a fresh top-level call goes through.
	if err := eng.MintDebt(actor, usd(100)); err != nil {
		t.Fatalf("follow-up mint: %v", err)
	}
}
