package engine

import (
	"math/big"

	"stablecore/crypto"
)

// CollateralDeposited is emitted once a deposit has committed to the ledger.
type CollateralDeposited struct {
	Actor  crypto.Address
	Symbol string
	Amount *big.Int
}

// CollateralRedeemed is emitted once a redemption has committed. From and To
// differ when a liquidator seizes collateral.
type CollateralRedeemed struct {
	From   crypto.Address
	To     crypto.Address
	Symbol string
	Amount *big.Int
}

// Emitter receives audit events synchronously as ledger mutations commit.
// Emission is informational only; handlers must not call back into the
// engine.
type Emitter interface {
	DepositedCollateral(evt CollateralDeposited)
	RedeemedCollateral(evt CollateralRedeemed)
}

func (e *Engine) emitDeposit(evt CollateralDeposited) {
	if e == nil || e.events == nil {
		return
	}
	e.events.DepositedCollateral(evt)
}

func (e *Engine) emitRedeem(evt CollateralRedeemed) {
	if e == nil || e.events == nil {
		return
	}
	e.events.RedeemedCollateral(evt)
}
