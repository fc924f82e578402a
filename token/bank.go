package token

import (
	"math/big"
	"sync"

	"stablecore/crypto"
)

// Bank is an in-process fungible token ledger implementing both the DebtToken
// and CollateralToken interfaces. The daemon runs one Bank per asset in local
// mode and the test suites use it as the collaborator double. The module
// address identifies the engine's own holdings for Transfer and Burn.
type Bank struct {
	symbol string
	module crypto.Address

	mu       sync.RWMutex
	balances map[string]*big.Int
}

// NewBank constructs an empty ledger for the given asset symbol. Transfers
// out of the engine debit the module address.
func NewBank(symbol string, module crypto.Address) *Bank {
	return &Bank{
		symbol:   symbol,
		module:   module,
		balances: make(map[string]*big.Int),
	}
}

// Symbol returns the asset ticker this ledger tracks.
func (b *Bank) Symbol() string {
	if b == nil {
		return ""
	}
	return b.symbol
}

func key(addr crypto.Address) string {
	return string(addr.Bytes())
}

// BalanceOf reports the current holdings of addr.
func (b *Bank) BalanceOf(addr crypto.Address) *big.Int {
	if b == nil {
		return big.NewInt(0)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if bal, ok := b.balances[key(addr)]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// TotalSupply sums every balance tracked by the ledger.
func (b *Bank) TotalSupply() *big.Int {
	total := big.NewInt(0)
	if b == nil {
		return total
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, bal := range b.balances {
		total.Add(total, bal)
	}
	return total
}

// Mint credits amount to the recipient.
func (b *Bank) Mint(to crypto.Address, amount *big.Int) bool {
	if b == nil || amount == nil || amount.Sign() <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(to, amount)
	return true
}

// Burn destroys amount from the engine's own holdings.
func (b *Bank) Burn(amount *big.Int) bool {
	if b == nil || amount == nil || amount.Sign() <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.debit(b.module, amount)
}

// Transfer pays amount from the engine's holdings to the recipient.
func (b *Bank) Transfer(to crypto.Address, amount *big.Int) bool {
	return b.TransferFrom(b.module, to, amount)
}

// TransferFrom moves amount between two holders, failing on insufficient
// balance.
func (b *Bank) TransferFrom(from, to crypto.Address, amount *big.Int) bool {
	if b == nil || amount == nil || amount.Sign() <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.debit(from, amount) {
		return false
	}
	b.credit(to, amount)
	return true
}

func (b *Bank) credit(addr crypto.Address, amount *big.Int) {
	k := key(addr)
	if bal, ok := b.balances[k]; ok {
		b.balances[k] = new(big.Int).Add(bal, amount)
		return
	}
	b.balances[k] = new(big.Int).Set(amount)
}

func (b *Bank) debit(addr crypto.Address, amount *big.Int) bool {
	k := key(addr)
	bal, ok := b.balances[k]
	if !ok || bal.Cmp(amount) < 0 {
		return false
	}
	b.balances[k] = new(big.Int).Sub(bal, amount)
	return true
}
