package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config captures the runtime configuration for the collateral engine daemon.
type Config struct {
	RPCAddress         string `toml:"RPCAddress"`
	DataDir            string `toml:"DataDir"`
	ServiceName        string `toml:"ServiceName"`
	Environment        string `toml:"Environment"`
	DebtSymbol         string `toml:"DebtSymbol"`
	QuoteMaxAgeSeconds int64  `toml:"QuoteMaxAgeSeconds"`

	Log        LogConfig          `toml:"log"`
	Telemetry  TelemetryConfig    `toml:"telemetry"`
	Pauses     PauseConfig        `toml:"pauses"`
	Collateral []CollateralConfig `toml:"collateral"`
}

// LogConfig controls the optional rotating file sink next to stdout.
type LogConfig struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// PauseConfig holds the operator switches halting individual flows.
type PauseConfig struct {
	Deposit   bool `toml:"Deposit"`
	Redeem    bool `toml:"Redeem"`
	Mint      bool `toml:"Mint"`
	Burn      bool `toml:"Burn"`
	Liquidate bool `toml:"Liquidate"`
}

// CollateralConfig approves one collateral asset and names its price feeds
// in priority order.
type CollateralConfig struct {
	Symbol      string   `toml:"Symbol"`
	Feeds       []string `toml:"Feeds"`
	CoinGeckoID string   `toml:"CoinGeckoID"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalise() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8645"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = "stablecored"
	}
	if strings.TrimSpace(c.DebtSym()) == "" {
		c.DebtSymbol = "CUSD"
	}
	if c.QuoteMaxAgeSeconds <= 0 {
		c.QuoteMaxAgeSeconds = 10_800
	}
	for i := range c.Collateral {
		c.Collateral[i].Symbol = strings.ToUpper(strings.TrimSpace(c.Collateral[i].Symbol))
		if len(c.Collateral[i].Feeds) == 0 {
			c.Collateral[i].Feeds = []string{"manual"}
		}
		for j := range c.Collateral[i].Feeds {
			c.Collateral[i].Feeds[j] = strings.ToLower(strings.TrimSpace(c.Collateral[i].Feeds[j]))
		}
	}
}

func (c *Config) validate() error {
	seen := make(map[string]struct{}, len(c.Collateral))
	for _, entry := range c.Collateral {
		if entry.Symbol == "" {
			return fmt.Errorf("config: collateral entry missing symbol")
		}
		if _, dup := seen[entry.Symbol]; dup {
			return fmt.Errorf("config: duplicate collateral symbol %s", entry.Symbol)
		}
		seen[entry.Symbol] = struct{}{}
	}
	return nil
}

// DebtSym returns the configured debt token ticker.
func (c *Config) DebtSym() string {
	return strings.ToUpper(strings.TrimSpace(c.DebtSymbol))
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		Collateral: []CollateralConfig{
			{Symbol: "WETH", Feeds: []string{"manual"}, CoinGeckoID: "ethereum"},
			{Symbol: "WBTC", Feeds: []string{"manual"}, CoinGeckoID: "bitcoin"},
		},
	}
	cfg.normalise()

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
