package engine

import (
	"math/big"

	"stablecore/crypto"
)

// AccountInfo returns the minted debt and total collateral USD value for the
// actor. Collateral is valued asset by asset in registry order with live
// prices; the order has no economic effect but keeps results deterministic.
func (e *Engine) AccountInfo(actor crypto.Address) (*big.Int, *big.Int, error) {
	pos, err := e.loadPosition(actor)
	if err != nil {
		return nil, nil, err
	}
	value, err := e.collateralValue(pos)
	if err != nil {
		return nil, nil, err
	}
	return new(big.Int).Set(pos.MintedDebt), value, nil
}

func (e *Engine) collateralValue(pos *Position) (*big.Int, error) {
	total := big.NewInt(0)
	for _, symbol := range e.registry.Symbols() {
		amount := pos.CollateralOf(symbol)
		if amount.Sign() == 0 {
			continue
		}
		value, err := e.UsdValue(symbol, amount)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

// HealthFactor reports the actor's solvency ratio scaled by 1e18. An actor
// with no minted debt cannot be insolvent, so the maximum representable
// value is returned instead of dividing by zero.
func (e *Engine) HealthFactor(actor crypto.Address) (*big.Int, error) {
	debt, value, err := e.AccountInfo(actor)
	if err != nil {
		return nil, err
	}
	return healthFactor(debt, value), nil
}

func healthFactor(debt, collateralValue *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return MaxHealthFactor()
	}
	adjusted := new(big.Int).Mul(collateralValue, liquidationThreshold)
	adjusted.Quo(adjusted, liquidationPrecision)
	adjusted.Mul(adjusted, precision)
	return adjusted.Quo(adjusted, debt)
}

// healthFactorOf prices the in-memory position without touching state; used
// to validate projected positions before anything commits.
func (e *Engine) healthFactorOf(pos *Position) (*big.Int, error) {
	value, err := e.collateralValue(pos)
	if err != nil {
		return nil, err
	}
	return healthFactor(pos.MintedDebt, value), nil
}

func (e *Engine) checkHealth(pos *Position) error {
	hf, err := e.healthFactorOf(pos)
	if err != nil {
		return err
	}
	if hf.Cmp(minHealthFactor) < 0 {
		return ErrHealthFactorBroken
	}
	return nil
}

// Totals reports the aggregate collateral USD value and minted debt across
// every known actor. Drives the protocol-wide overcollateralization check.
func (e *Engine) Totals() (*big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, ErrNilState
	}
	actors, err := e.state.Actors()
	if err != nil {
		return nil, nil, err
	}
	totalValue := big.NewInt(0)
	totalDebt := big.NewInt(0)
	for _, actor := range actors {
		pos, err := e.loadPosition(actor)
		if err != nil {
			return nil, nil, err
		}
		value, err := e.collateralValue(pos)
		if err != nil {
			return nil, nil, err
		}
		totalValue.Add(totalValue, value)
		totalDebt.Add(totalDebt, pos.MintedDebt)
	}
	return totalValue, totalDebt, nil
}
