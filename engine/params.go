package engine

import "math/big"

// Fixed-point parameters for valuation and solvency checks. Values scale by
// precision (1e18) unless stated otherwise. The 50/100 threshold pair encodes
// the 200% overcollateralization requirement; the bonus is the 10% discount
// a liquidator earns on seized collateral.
var (
	precision               = mustBigInt("1000000000000000000")
	additionalFeedPrecision = mustBigInt("10000000000") // 8-decimal feeds scaled to 1e18
	liquidationThreshold    = big.NewInt(50)
	liquidationPrecision    = big.NewInt(100)
	liquidationBonus        = big.NewInt(10)
	minHealthFactor         = mustBigInt("1000000000000000000")
)

// maxHealthFactor is the sentinel returned for positions with no minted debt.
var maxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// MinHealthFactor returns the minimum solvent health factor (1.0 at 1e18).
func MinHealthFactor() *big.Int {
	return new(big.Int).Set(minHealthFactor)
}

// MaxHealthFactor returns the sentinel health factor for debt-free positions.
func MaxHealthFactor() *big.Int {
	return new(big.Int).Set(maxHealthFactor)
}

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}
