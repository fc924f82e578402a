package token

import (
	"math/big"

	"stablecore/crypto"
)

// DebtToken models the unit-pegged synthetic asset minted against collateral.
// The engine is the sole authorized minter and burner. Methods report success
// rather than returning errors to mirror fungible-token call semantics; the
// engine maps a false result onto its own error taxonomy and rolls back.
type DebtToken interface {
	// Mint creates amount units in favour of to.
	Mint(to crypto.Address, amount *big.Int) bool
	// Burn destroys amount units held by the engine itself.
	Burn(amount *big.Int) bool
	// TransferFrom moves amount units from from to to.
	TransferFrom(from, to crypto.Address, amount *big.Int) bool
}

// CollateralToken models a standard fungible collateral asset. Transfer pays
// out of the engine's own holdings; TransferFrom pulls from a depositor.
type CollateralToken interface {
	Transfer(to crypto.Address, amount *big.Int) bool
	TransferFrom(from, to crypto.Address, amount *big.Int) bool
}
