package engine

import (
	"strings"

	"stablecore/oracle"
	"stablecore/token"
)

// CollateralAsset binds an approved asset symbol to its price source and the
// fungible token contract holding the underlying units. Immutable after
// construction.
type CollateralAsset struct {
	Symbol string
	Source oracle.PriceSource
	Token  token.CollateralToken
}

// Registry is the closed set of approved collateral assets. Assets keep their
// construction order so valuation sums are deterministic. Adding assets after
// construction is not supported; a new deployment carries a new registry.
type Registry struct {
	order  []string
	assets map[string]CollateralAsset
}

// NewRegistry constructs a registry from parallel symbol, price source and
// token lists. The lists must have equal length.
func NewRegistry(symbols []string, sources []oracle.PriceSource, tokens []token.CollateralToken) (*Registry, error) {
	if len(symbols) != len(sources) || len(symbols) != len(tokens) {
		return nil, ErrLengthMismatch
	}
	r := &Registry{assets: make(map[string]CollateralAsset, len(symbols))}
	for i, symbol := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(symbol))
		if sym == "" {
			return nil, ErrAssetNotApproved
		}
		if _, exists := r.assets[sym]; exists {
			return nil, ErrDuplicateAsset
		}
		r.assets[sym] = CollateralAsset{Symbol: sym, Source: sources[i], Token: tokens[i]}
		r.order = append(r.order, sym)
	}
	return r, nil
}

// IsApproved reports whether the symbol names an approved collateral asset.
func (r *Registry) IsApproved(symbol string) bool {
	if r == nil {
		return false
	}
	_, ok := r.assets[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

// Asset returns the registry entry for the symbol.
func (r *Registry) Asset(symbol string) (CollateralAsset, error) {
	if r == nil {
		return CollateralAsset{}, ErrAssetNotApproved
	}
	asset, ok := r.assets[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return CollateralAsset{}, ErrAssetNotApproved
	}
	return asset, nil
}

// Symbols returns the approved symbols in registry order.
func (r *Registry) Symbols() []string {
	if r == nil {
		return nil
	}
	return append([]string{}, r.order...)
}
