package engine

import (
	"math/big"

	"stablecore/crypto"
)

// Liquidate lets a third party repay debtToCover (USD-denominated, 1:1 peg)
// of an unhealthy target's debt in exchange for the equivalent collateral
// plus a 10% bonus. Partial liquidations are allowed; each one must strictly
// improve the target's health factor, and the liquidator must come out of
// the operation healthy themselves.
func (e *Engine) Liquidate(liquidator, target crypto.Address, symbol string, debtToCover *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := guard(e.pauses, ActionLiquidate); err != nil {
		return err
	}
	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset, err := e.registry.Asset(symbol)
	if err != nil {
		return err
	}

	targetPos, err := e.loadPosition(target)
	if err != nil {
		return err
	}
	startingHealthFactor, err := e.healthFactorOf(targetPos)
	if err != nil {
		return err
	}
	if startingHealthFactor.Cmp(minHealthFactor) >= 0 {
		return ErrHealthFactorOk
	}

	tokenAmount, err := e.TokenAmountFromUsd(asset.Symbol, debtToCover)
	if err != nil {
		return err
	}
	bonusCollateral := new(big.Int).Mul(tokenAmount, liquidationBonus)
	bonusCollateral.Quo(bonusCollateral, liquidationPrecision)
	totalSeized := new(big.Int).Add(tokenAmount, bonusCollateral)

	// Stage the seizure and the burn on the clone, then verify the
	// post-conditions before any token moves.
	if err := debitCollateral(targetPos, asset.Symbol, totalSeized); err != nil {
		return err
	}
	if err := debitDebt(targetPos, debtToCover); err != nil {
		return err
	}
	endingHealthFactor, err := e.healthFactorOf(targetPos)
	if err != nil {
		return err
	}
	if endingHealthFactor.Cmp(startingHealthFactor) <= 0 {
		return ErrHealthFactorNotImproved
	}

	liquidatorPos := targetPos
	if !sameActor(liquidator, target) {
		liquidatorPos, err = e.loadPosition(liquidator)
		if err != nil {
			return err
		}
	}
	if err := e.checkHealth(liquidatorPos); err != nil {
		return err
	}

	if err := e.pullAndBurn(liquidator, debtToCover); err != nil {
		return err
	}
	if !asset.Token.Transfer(liquidator, totalSeized) {
		// The debt is already burnt; re-mint to the liquidator so the
		// failed payout does not cost them the cover amount.
		e.debt.Mint(liquidator, debtToCover)
		return ErrTransferFailed
	}
	if err := e.state.PutPosition(target, targetPos); err != nil {
		// Ledger write failed after the payout; claw the seizure back into
		// engine custody and restore the liquidator's cover.
		asset.Token.TransferFrom(liquidator, e.module, totalSeized)
		e.debt.Mint(liquidator, debtToCover)
		return err
	}
	e.emitRedeem(CollateralRedeemed{From: target, To: liquidator, Symbol: asset.Symbol, Amount: totalSeized})
	return nil
}
