package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadParsesFullConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `RPCAddress = "127.0.0.1:9000"
DataDir = "./state"
ServiceName = "stablecored-test"
Environment = "staging"
DebtSymbol = "cusd"
QuoteMaxAgeSeconds = 600

[log]
File = "/var/log/stablecored.log"
MaxSizeMB = 64
MaxBackups = 3
MaxAgeDays = 14

[telemetry]
Endpoint = "otel:4318"
Insecure = true
Metrics = true
Traces = true

[pauses]
Liquidate = true

[[collateral]]
Symbol = "weth"
Feeds = ["Manual", "CoinGecko"]
CoinGeckoID = "ethereum"

[[collateral]]
Symbol = "WBTC"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != "127.0.0.1:9000" {
		t.Fatalf("rpc address = %q", cfg.RPCAddress)
	}
	if cfg.DebtSym() != "CUSD" {
		t.Fatalf("debt symbol = %q, want CUSD", cfg.DebtSym())
	}
	if cfg.QuoteMaxAgeSeconds != 600 {
		t.Fatalf("quote max age = %d", cfg.QuoteMaxAgeSeconds)
	}
	if cfg.Log.File != "/var/log/stablecored.log" || cfg.Log.MaxSizeMB != 64 {
		t.Fatalf("log config mismatch: %+v", cfg.Log)
	}
	if !cfg.Telemetry.Metrics || !cfg.Telemetry.Traces || cfg.Telemetry.Endpoint != "otel:4318" {
		t.Fatalf("telemetry config mismatch: %+v", cfg.Telemetry)
	}
	if !cfg.Pauses.Liquidate || cfg.Pauses.Deposit {
		t.Fatalf("pause config mismatch: %+v", cfg.Pauses)
	}

	if len(cfg.Collateral) != 2 {
		t.Fatalf("collateral entries = %d, want 2", len(cfg.Collateral))
	}
	weth := cfg.Collateral[0]
	if weth.Symbol != "WETH" {
		t.Fatalf("symbol not normalised: %q", weth.Symbol)
	}
	if len(weth.Feeds) != 2 || weth.Feeds[0] != "manual" || weth.Feeds[1] != "coingecko" {
		t.Fatalf("feeds not normalised: %v", weth.Feeds)
	}
	wbtc := cfg.Collateral[1]
	if len(wbtc.Feeds) != 1 || wbtc.Feeds[0] != "manual" {
		t.Fatalf("missing feeds must default to manual: %v", wbtc.Feeds)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(""), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8645" {
		t.Fatalf("default rpc address = %q", cfg.RPCAddress)
	}
	if cfg.DataDir != "./data" {
		t.Fatalf("default data dir = %q", cfg.DataDir)
	}
	if cfg.ServiceName != "stablecored" {
		t.Fatalf("default service name = %q", cfg.ServiceName)
	}
	if cfg.DebtSym() != "CUSD" {
		t.Fatalf("default debt symbol = %q", cfg.DebtSym())
	}
	if cfg.QuoteMaxAgeSeconds != 10_800 {
		t.Fatalf("default quote max age = %d", cfg.QuoteMaxAgeSeconds)
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Collateral) != 2 {
		t.Fatalf("default collateral entries = %d, want 2", len(cfg.Collateral))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if !strings.Contains(string(raw), "WETH") {
		t.Fatalf("default file missing collateral entries:\n%s", raw)
	}

	// Loading the generated file back must succeed.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.DebtSym() != cfg.DebtSym() {
		t.Fatalf("reload mismatch: %q vs %q", again.DebtSym(), cfg.DebtSym())
	}
}

func TestLoadRejectsDuplicateCollateral(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `[[collateral]]
Symbol = "WETH"

[[collateral]]
Symbol = "weth"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate symbol rejection, got %v", err)
	}
}
