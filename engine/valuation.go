package engine

import (
	"math/big"
	"time"
)

// DefaultQuoteMaxAge bounds how old an oracle observation may be before the
// engine refuses to price collateral against it.
const DefaultQuoteMaxAge = 3 * time.Hour

// fetchPrice returns the live 18-decimal-adjusted feed price for the asset,
// enforcing the staleness window and price positivity.
func (e *Engine) fetchPrice(asset CollateralAsset) (*big.Int, error) {
	quote, err := asset.Source.LatestPrice(asset.Symbol)
	if err != nil {
		return nil, err
	}
	if quote.Price == nil || quote.Price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	maxAge := e.quoteMaxAge
	if maxAge <= 0 {
		maxAge = DefaultQuoteMaxAge
	}
	if e.now().Sub(quote.UpdatedAt) > maxAge {
		return nil, ErrStalePrice
	}
	return new(big.Int).Mul(quote.Price, additionalFeedPrecision), nil
}

// UsdValue converts an (asset, amount) pair into its precision-scaled USD
// value using the live feed price. Multiplication happens before the final
// division so no precision is lost on realistic amounts; big.Int keeps the
// intermediate product exact regardless of width.
func (e *Engine) UsdValue(symbol string, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	asset, err := e.registry.Asset(symbol)
	if err != nil {
		return nil, err
	}
	price, err := e.fetchPrice(asset)
	if err != nil {
		return nil, err
	}
	value := new(big.Int).Mul(price, amount)
	return value.Quo(value, precision), nil
}

// TokenAmountFromUsd converts a precision-scaled USD amount into asset units
// at the live feed price. Integer division truncates toward zero, which
// under-credits the conversion; that is the safe rounding direction for
// protocol solvency.
func (e *Engine) TokenAmountFromUsd(symbol string, usdAmount *big.Int) (*big.Int, error) {
	if usdAmount == nil || usdAmount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	asset, err := e.registry.Asset(symbol)
	if err != nil {
		return nil, err
	}
	price, err := e.fetchPrice(asset)
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).Mul(usdAmount, precision)
	return amount.Quo(amount, price), nil
}
