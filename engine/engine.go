package engine

import (
	"bytes"
	"math/big"
	"sync/atomic"
	"time"

	"stablecore/crypto"
	"stablecore/token"
)

// Engine owns the collateral ledger and enforces the solvency invariant: any
// actor with outstanding minted debt must keep a health factor of at least
// 1.0 after every mutating call. Mutations funnel through the engine; no
// other component writes position state.
//
// Every mutating entry point stages its ledger changes on cloned positions,
// validates them, performs the external token calls and only then persists.
// A failure at any step leaves the ledger untouched.
type Engine struct {
	state    State
	registry *Registry
	debt     token.DebtToken
	module   crypto.Address

	events Emitter
	pauses PauseView

	entered     atomic.Bool
	quoteMaxAge time.Duration
	now         func() time.Time
}

// New constructs an engine holding collateral at the module address, pricing
// against the registry and minting debt through the supplied token.
func New(module crypto.Address, registry *Registry, debt token.DebtToken) *Engine {
	return &Engine{
		module:   module,
		registry: registry,
		debt:     debt,
		now:      time.Now,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state State) { e.state = state }

// SetEmitter wires the audit event sink.
func (e *Engine) SetEmitter(events Emitter) {
	if e == nil {
		return
	}
	e.events = events
}

// SetPauses installs the operator pause switches consulted before every
// mutating flow.
func (e *Engine) SetPauses(p PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetQuoteMaxAge overrides the oracle staleness window.
func (e *Engine) SetQuoteMaxAge(maxAge time.Duration) {
	if e == nil {
		return
	}
	e.quoteMaxAge = maxAge
}

// Module returns the address holding engine-owned token balances.
func (e *Engine) Module() crypto.Address {
	if e == nil {
		return crypto.Address{}
	}
	return e.module
}

// Registry exposes the approved collateral set.
func (e *Engine) Registry() *Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

// enter flags the engine as mid-mutation. A nested mutating call from an
// external token callback trips the flag and fails immediately instead of
// interleaving with the in-flight operation.
func (e *Engine) enter() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if !e.entered.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (e *Engine) exit() {
	e.entered.Store(false)
}

func (e *Engine) loadPosition(actor crypto.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	stored, err := e.state.GetPosition(actor)
	if err != nil {
		return nil, err
	}
	var pos *Position
	if stored != nil {
		pos = stored.Clone()
	} else {
		pos = &Position{Address: actor}
	}
	pos.ensureDefaults()
	return pos, nil
}

// DepositCollateral locks amount units of the approved asset for the actor.
// The ledger credit and the token pull commit as one unit: a failed pull
// leaves no trace.
func (e *Engine) DepositCollateral(actor crypto.Address, symbol string, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := guard(e.pauses, ActionDeposit); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset, err := e.registry.Asset(symbol)
	if err != nil {
		return err
	}

	pos, err := e.loadPosition(actor)
	if err != nil {
		return err
	}
	current := pos.CollateralOf(asset.Symbol)
	pos.Collateral[asset.Symbol] = current.Add(current, amount)

	if !asset.Token.TransferFrom(actor, e.module, amount) {
		return ErrTransferFailed
	}
	if err := e.state.PutPosition(actor, pos); err != nil {
		// Ledger write failed after the pull succeeded; hand the tokens back.
		asset.Token.Transfer(actor, amount)
		return err
	}
	e.emitDeposit(CollateralDeposited{Actor: actor, Symbol: asset.Symbol, Amount: new(big.Int).Set(amount)})
	return nil
}

// debitCollateral is the ledger half of a redemption: it decrements the
// position in memory, failing on underflow. Callers perform the external
// transfer and persist.
func debitCollateral(pos *Position, symbol string, amount *big.Int) error {
	current := pos.CollateralOf(symbol)
	if current.Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}
	pos.Collateral[symbol] = current.Sub(current, amount)
	return nil
}

// RedeemCollateral releases amount units of the asset back to the actor,
// provided the remaining position stays healthy.
func (e *Engine) RedeemCollateral(actor crypto.Address, symbol string, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := guard(e.pauses, ActionRedeem); err != nil {
		return err
	}
	return e.redeemTo(actor, actor, symbol, amount, true)
}

// redeemTo moves collateral out of from's ledger into to's wallet. The
// health check runs against the projected position before anything leaves
// the engine.
func (e *Engine) redeemTo(from, to crypto.Address, symbol string, amount *big.Int, checkFrom bool) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset, err := e.registry.Asset(symbol)
	if err != nil {
		return err
	}
	pos, err := e.loadPosition(from)
	if err != nil {
		return err
	}
	if err := debitCollateral(pos, asset.Symbol, amount); err != nil {
		return err
	}
	if checkFrom {
		if err := e.checkHealth(pos); err != nil {
			return err
		}
	}
	if !asset.Token.Transfer(to, amount) {
		return ErrTransferFailed
	}
	if err := e.state.PutPosition(from, pos); err != nil {
		asset.Token.TransferFrom(to, e.module, amount)
		return err
	}
	e.emitRedeem(CollateralRedeemed{From: from, To: to, Symbol: asset.Symbol, Amount: new(big.Int).Set(amount)})
	return nil
}

// MintDebt issues amount units of the debt token against the actor's
// collateral. The health check runs on the projected debt before the
// external mint; a failed mint reverts the whole operation.
func (e *Engine) MintDebt(actor crypto.Address, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := guard(e.pauses, ActionMint); err != nil {
		return err
	}
	return e.mintDebt(actor, amount)
}

func (e *Engine) mintDebt(actor crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pos, err := e.loadPosition(actor)
	if err != nil {
		return err
	}
	pos.MintedDebt = new(big.Int).Add(pos.MintedDebt, amount)
	if err := e.checkHealth(pos); err != nil {
		return err
	}
	if !e.debt.Mint(actor, amount) {
		return ErrMintFailed
	}
	if err := e.state.PutPosition(actor, pos); err != nil {
		// Ledger write failed after the mint succeeded; retire the tokens so
		// no unbacked debt stays in circulation.
		e.pullAndBurn(actor, amount)
		return err
	}
	return nil
}

// debitDebt is the ledger half of a burn, failing when amount exceeds the
// minted debt.
func debitDebt(pos *Position, amount *big.Int) error {
	if pos.MintedDebt.Cmp(amount) < 0 {
		return ErrInsufficientDebt
	}
	pos.MintedDebt = new(big.Int).Sub(pos.MintedDebt, amount)
	return nil
}

// pullAndBurn collects amount debt tokens from the payer and destroys them.
// A burn failure refunds the pull so the payer is made whole.
func (e *Engine) pullAndBurn(payer crypto.Address, amount *big.Int) error {
	if !e.debt.TransferFrom(payer, e.module, amount) {
		return ErrTransferFailed
	}
	if !e.debt.Burn(amount) {
		e.debt.TransferFrom(e.module, payer, amount)
		return ErrBurnFailed
	}
	return nil
}

// BurnDebt retires amount units of the actor's own debt, paid from their own
// wallet. The closing health check cannot newly fail (burning debt only
// raises the health factor) and is kept as a conservative backstop.
func (e *Engine) BurnDebt(actor crypto.Address, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := guard(e.pauses, ActionBurn); err != nil {
		return err
	}
	return e.burnDebt(actor, actor, amount)
}

// burnDebt retires amount of onBehalfOf's ledger debt, pulling the tokens
// from payer.
func (e *Engine) burnDebt(onBehalfOf, payer crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pos, err := e.loadPosition(onBehalfOf)
	if err != nil {
		return err
	}
	if err := debitDebt(pos, amount); err != nil {
		return err
	}
	if err := e.checkHealth(pos); err != nil {
		return err
	}
	if err := e.pullAndBurn(payer, amount); err != nil {
		return err
	}
	if err := e.state.PutPosition(onBehalfOf, pos); err != nil {
		// Ledger write failed after the burn; hand the payer their tokens
		// back so the standing ledger debt stays covered.
		e.debt.Mint(payer, amount)
		return err
	}
	return nil
}

// DepositAndMint deposits collateral and mints debt in one call. The two
// legs carry their own checks; the mint failing leaves the completed deposit
// in place, which can never hurt solvency.
func (e *Engine) DepositAndMint(actor crypto.Address, symbol string, collateralAmount, debtAmount *big.Int) error {
	if err := e.DepositCollateral(actor, symbol, collateralAmount); err != nil {
		return err
	}
	return e.MintDebt(actor, debtAmount)
}

// RedeemAndBurn burns debt first so the subsequent redemption is judged
// against the reduced debt.
func (e *Engine) RedeemAndBurn(actor crypto.Address, symbol string, collateralAmount, debtAmount *big.Int) error {
	if err := e.BurnDebt(actor, debtAmount); err != nil {
		return err
	}
	return e.RedeemCollateral(actor, symbol, collateralAmount)
}

func sameActor(a, b crypto.Address) bool {
	return bytes.Equal(a.Bytes(), b.Bytes())
}
