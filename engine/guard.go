package engine

import "errors"

// ErrActionPaused signals that operators halted the requested flow.
var ErrActionPaused = errors.New("collateral engine: action paused")

// Mutating flows that can be halted independently during incidents.
const (
	ActionDeposit   = "deposit"
	ActionRedeem    = "redeem"
	ActionMint      = "mint"
	ActionBurn      = "burn"
	ActionLiquidate = "liquidate"
)

// PauseView reports whether a named flow is currently halted.
type PauseView interface {
	IsPaused(action string) bool
}

func guard(p PauseView, action string) error {
	if p == nil || action == "" {
		return nil
	}
	if p.IsPaused(action) {
		return ErrActionPaused
	}
	return nil
}

// Pauses is a static PauseView built from configuration.
type Pauses struct {
	Deposit   bool
	Redeem    bool
	Mint      bool
	Burn      bool
	Liquidate bool
}

func (p Pauses) IsPaused(action string) bool {
	switch action {
	case ActionDeposit:
		return p.Deposit
	case ActionRedeem:
		return p.Redeem
	case ActionMint:
		return p.Mint
	case ActionBurn:
		return p.Burn
	case ActionLiquidate:
		return p.Liquidate
	}
	return false
}
