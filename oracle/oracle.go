package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// FeedDecimals is the fixed-point scale every price source reports in. Eight
// decimals matches the dominant convention for USD reference feeds.
const FeedDecimals = 8

// Quote captures a USD price for an asset along with the timestamp reported
// by the upstream feed and the feed identifier. Price is scaled by
// 10^FeedDecimals.
type Quote struct {
	Price     *big.Int
	UpdatedAt time.Time
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q Quote) Clone() Quote {
	clone := Quote{UpdatedAt: q.UpdatedAt, Source: q.Source}
	if q.Price != nil {
		clone.Price = new(big.Int).Set(q.Price)
	}
	return clone
}

// PriceSource resolves the latest USD quote for a collateral asset symbol.
// The caller is responsible for staleness and positivity checks; sources
// report what they observed, they do not police it.
type PriceSource interface {
	LatestPrice(symbol string) (Quote, error)
}

// ErrNoQuote indicates that no registered feed produced a usable quote.
var ErrNoQuote = errors.New("oracle: no quote available")

// Aggregator consults registered feeds in priority order until one returns a
// plausible quote. A non-zero maxAge makes the aggregator skip over feeds
// whose last observation is older than the window, falling through to the
// next feed before giving up.
type Aggregator struct {
	mu       sync.RWMutex
	priority []string
	sources  map[string]PriceSource
	maxAge   time.Duration
}

// NewAggregator constructs an aggregator with the provided priority ordering
// and freshness window.
func NewAggregator(priority []string, maxAge time.Duration) *Aggregator {
	return &Aggregator{
		priority: append([]string{}, priority...),
		sources:  make(map[string]PriceSource),
		maxAge:   maxAge,
	}
}

// SetMaxAge updates the freshness window used when filtering quotes.
func (a *Aggregator) SetMaxAge(maxAge time.Duration) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.maxAge = maxAge
	a.mu.Unlock()
}

// Register adds or replaces a feed under the supplied identifier.
// Identifiers are stored in lowercase so lookups are insensitive to
// configuration casing.
func (a *Aggregator) Register(name string, source PriceSource) {
	if a == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sources[trimmed] = source
	for _, entry := range a.priority {
		if strings.EqualFold(entry, trimmed) {
			return
		}
	}
	a.priority = append(a.priority, trimmed)
}

// LatestPrice walks the priority list and returns the first fresh, positive
// quote. The returned quote is a defensive copy.
func (a *Aggregator) LatestPrice(symbol string) (Quote, error) {
	if a == nil {
		return Quote{}, fmt.Errorf("oracle aggregator not configured")
	}
	sym := normaliseSymbol(symbol)
	if sym == "" {
		return Quote{}, fmt.Errorf("oracle: symbol required")
	}

	a.mu.RLock()
	priority := append([]string{}, a.priority...)
	maxAge := a.maxAge
	a.mu.RUnlock()

	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}

	var lastErr error
	for _, name := range priority {
		a.mu.RLock()
		source := a.sources[strings.ToLower(name)]
		a.mu.RUnlock()
		if source == nil {
			continue
		}
		quote, err := source.LatestPrice(sym)
		if err != nil {
			lastErr = err
			continue
		}
		if quote.Price == nil || quote.Price.Sign() <= 0 {
			lastErr = fmt.Errorf("oracle: feed %s returned invalid price", name)
			continue
		}
		if maxAge > 0 && quote.UpdatedAt.Before(cutoff) {
			lastErr = ErrNoQuote
			continue
		}
		result := quote.Clone()
		if strings.TrimSpace(result.Source) == "" {
			result.Source = strings.ToLower(name)
		}
		return result, nil
	}
	if lastErr == nil {
		lastErr = ErrNoQuote
	}
	return Quote{}, lastErr
}

// ManualSource provides an in-memory feed used for tests and manual
// overrides during incident response.
type ManualSource struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewManualSource constructs an empty manual feed.
func NewManualSource() *ManualSource {
	return &ManualSource{quotes: make(map[string]Quote)}
}

// Set stores the supplied 8-decimal price for the symbol.
func (m *ManualSource) Set(symbol string, price *big.Int, ts time.Time) {
	if m == nil || price == nil {
		return
	}
	sym := normaliseSymbol(symbol)
	if sym == "" {
		return
	}
	m.mu.Lock()
	m.quotes[sym] = Quote{Price: new(big.Int).Set(price), UpdatedAt: ts, Source: "manual"}
	m.mu.Unlock()
}

// SetDecimal records a decimal USD price string (e.g. "2000.55") for the
// symbol, converting it to the 8-decimal feed scale.
func (m *ManualSource) SetDecimal(symbol, price string, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("manual source not configured")
	}
	trimmed := strings.TrimSpace(price)
	if trimmed == "" {
		return fmt.Errorf("manual source: price required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return fmt.Errorf("manual source: invalid price %q", price)
	}
	if rat.Sign() <= 0 {
		return fmt.Errorf("manual source: price must be positive")
	}
	scaled := ratToFeed(rat)
	m.Set(symbol, scaled, ts)
	return nil
}

// LatestPrice retrieves the stored quote for the symbol.
func (m *ManualSource) LatestPrice(symbol string) (Quote, error) {
	if m == nil {
		return Quote{}, fmt.Errorf("manual source not configured")
	}
	sym := normaliseSymbol(symbol)
	m.mu.RLock()
	stored, ok := m.quotes[sym]
	m.mu.RUnlock()
	if !ok {
		return Quote{}, fmt.Errorf("manual source: quote for %s not found", symbol)
	}
	return stored.Clone(), nil
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func ratToFeed(r *big.Rat) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(FeedDecimals), nil)
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(scale))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom())
}
