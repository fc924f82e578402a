package oracle

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CoinGeckoSource adapts the public CoinGecko simple price API to the
// PriceSource interface.
type CoinGeckoSource struct {
	client   HTTPDoer
	endpoint string
	idMap    map[string]string
}

const defaultCoinGeckoEndpoint = "https://api.coingecko.com/api/v3/simple/price"

// NewCoinGeckoSource constructs a new adapter. idMap maps collateral asset
// symbols to CoinGecko asset identifiers; unmapped symbols fall back to their
// lowercase form. When client is nil http.DefaultClient is used.
func NewCoinGeckoSource(client HTTPDoer, endpoint string, idMap map[string]string) *CoinGeckoSource {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = defaultCoinGeckoEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	mapped := make(map[string]string, len(idMap))
	for k, v := range idMap {
		mapped[normaliseSymbol(k)] = strings.TrimSpace(v)
	}
	return &CoinGeckoSource{client: client, endpoint: ep, idMap: mapped}
}

func (o *CoinGeckoSource) assetID(symbol string) string {
	if o == nil {
		return ""
	}
	if id, ok := o.idMap[normaliseSymbol(symbol)]; ok && id != "" {
		return id
	}
	return strings.ToLower(strings.TrimSpace(symbol))
}

func (o *CoinGeckoSource) LatestPrice(symbol string) (Quote, error) {
	if o == nil {
		return Quote{}, fmt.Errorf("coingecko source not configured")
	}
	id := o.assetID(symbol)
	if id == "" {
		return Quote{}, fmt.Errorf("coingecko source: unmapped asset %s", symbol)
	}
	req, err := http.NewRequest(http.MethodGet, o.endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	values := url.Values{}
	values.Set("ids", id)
	values.Set("vs_currencies", "usd")
	values.Set("include_last_updated_at", "true")
	req.URL.RawQuery = values.Encode()
	resp, err := o.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Quote{}, fmt.Errorf("coingecko source: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var payload map[string]map[string]interface{}
	if err := decoder.Decode(&payload); err != nil {
		return Quote{}, fmt.Errorf("coingecko source: decode: %w", err)
	}
	entry, ok := payload[id]
	if !ok {
		return Quote{}, fmt.Errorf("coingecko source: quote missing for %s", symbol)
	}
	var priceStr string
	if raw, exists := entry["usd"]; exists {
		switch v := raw.(type) {
		case json.Number:
			priceStr = v.String()
		case string:
			priceStr = v
		case float64:
			priceStr = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			priceStr = fmt.Sprintf("%v", v)
		}
	}
	priceStr = strings.TrimSpace(priceStr)
	if priceStr == "" {
		return Quote{}, fmt.Errorf("coingecko source: empty price")
	}
	rat, ok := new(big.Rat).SetString(priceStr)
	if !ok || rat.Sign() <= 0 {
		return Quote{}, fmt.Errorf("coingecko source: invalid price %q", priceStr)
	}
	var ts time.Time
	if rawTs, exists := entry["last_updated_at"]; exists {
		switch v := rawTs.(type) {
		case json.Number:
			if parsed, err := v.Int64(); err == nil && parsed > 0 {
				ts = time.Unix(parsed, 0)
			}
		case string:
			if parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && parsed > 0 {
				ts = time.Unix(parsed, 0)
			}
		case float64:
			if v > 0 {
				ts = time.Unix(int64(v), 0)
			}
		}
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return Quote{Price: ratToFeed(rat), UpdatedAt: ts, Source: "coingecko"}, nil
}
