package engine

import (
	"math/big"

	"stablecore/crypto"
)

// Position holds the per-actor ledger state: deposited collateral by asset
// symbol and the scalar minted debt. A position springs into existence on
// first deposit; absence means all-zero and positions decay back to zero
// rather than being destroyed.
type Position struct {
	Address    crypto.Address
	Collateral map[string]*big.Int
	MintedDebt *big.Int
}

// CollateralOf returns the deposited amount for the asset, zero when the
// asset was never deposited.
func (p *Position) CollateralOf(symbol string) *big.Int {
	if p == nil || p.Collateral == nil {
		return big.NewInt(0)
	}
	if amount, ok := p.Collateral[symbol]; ok && amount != nil {
		return new(big.Int).Set(amount)
	}
	return big.NewInt(0)
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{Address: p.Address}
	if p.Collateral != nil {
		clone.Collateral = make(map[string]*big.Int, len(p.Collateral))
		for symbol, amount := range p.Collateral {
			if amount != nil {
				clone.Collateral[symbol] = new(big.Int).Set(amount)
			}
		}
	}
	if p.MintedDebt != nil {
		clone.MintedDebt = new(big.Int).Set(p.MintedDebt)
	}
	return clone
}

func (p *Position) ensureDefaults() {
	if p.Collateral == nil {
		p.Collateral = make(map[string]*big.Int)
	}
	if p.MintedDebt == nil {
		p.MintedDebt = big.NewInt(0)
	}
}

// State wires the engine to its persistence layer. GetPosition returns nil
// when the actor has never interacted with the engine.
type State interface {
	GetPosition(addr crypto.Address) (*Position, error)
	PutPosition(addr crypto.Address, pos *Position) error
	// Actors lists every address that ever held a position, in a stable
	// order. Used for protocol-wide aggregate queries.
	Actors() ([]crypto.Address, error)
}
