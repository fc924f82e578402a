package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"stablecore/config"
	"stablecore/crypto"
	"stablecore/engine"
	"stablecore/ledger"
	"stablecore/observability"
	"stablecore/observability/logging"
	stableotel "stablecore/observability/otel"
	"stablecore/oracle"
	"stablecore/rpc"
	"stablecore/storage"
	"stablecore/token"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("STABLECORE_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if env == "" {
		env = cfg.Environment
	}

	var sink *logging.FileSink
	if strings.TrimSpace(cfg.Log.File) != "" {
		sink = &logging.FileSink{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		}
	}
	logger := logging.Setup(cfg.ServiceName, env, sink)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Metrics || cfg.Telemetry.Traces {
		shutdown, err := stableotel.Init(ctx, stableotel.Config{
			ServiceName: cfg.ServiceName,
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("Telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	module := moduleAddress()
	maxAge := time.Duration(cfg.QuoteMaxAgeSeconds) * time.Second

	manual := oracle.NewManualSource()
	symbols := make([]string, 0, len(cfg.Collateral))
	sources := make([]oracle.PriceSource, 0, len(cfg.Collateral))
	tokens := make([]token.CollateralToken, 0, len(cfg.Collateral))
	for _, entry := range cfg.Collateral {
		agg := oracle.NewAggregator(entry.Feeds, maxAge)
		for _, feed := range entry.Feeds {
			switch feed {
			case "manual":
				agg.Register("manual", manual)
			case "coingecko":
				agg.Register("coingecko", oracle.NewCoinGeckoSource(nil, "", map[string]string{
					entry.Symbol: entry.CoinGeckoID,
				}))
			default:
				logger.Warn("Unknown price feed, skipping", slog.String("feed", feed), slog.String("asset", entry.Symbol))
			}
		}
		symbols = append(symbols, entry.Symbol)
		sources = append(sources, agg)
		tokens = append(tokens, token.NewBank(entry.Symbol, module))
	}

	registry, err := engine.NewRegistry(symbols, sources, tokens)
	if err != nil {
		logger.Error("Failed to build collateral registry", slog.Any("error", err))
		os.Exit(1)
	}

	debt := token.NewBank(cfg.DebtSym(), module)
	eng := engine.New(module, registry, debt)
	eng.SetState(ledger.NewStore(db))
	eng.SetQuoteMaxAge(maxAge)
	eng.SetPauses(engine.Pauses{
		Deposit:   cfg.Pauses.Deposit,
		Redeem:    cfg.Pauses.Redeem,
		Mint:      cfg.Pauses.Mint,
		Burn:      cfg.Pauses.Burn,
		Liquidate: cfg.Pauses.Liquidate,
	})
	eng.SetEmitter(&logEmitter{logger: logger})

	server := rpc.NewServer(eng)
	logger.Info("Starting JSON-RPC server",
		slog.String("address", cfg.RPCAddress),
		slog.String("module", module.String()),
		slog.Int("collateralAssets", len(symbols)),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.RPCAddress)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("RPC server shutdown failed", slog.Any("error", err))
		}
	}
}

// moduleAddress derives the engine's own holding address deterministically
// from the service identity so restarts keep custody of locked collateral.
func moduleAddress() crypto.Address {
	digest := ethcrypto.Keccak256([]byte("stablecore/engine/module"))
	return crypto.NewAddress(crypto.ActorPrefix, digest[len(digest)-20:])
}

// logEmitter mirrors engine audit events into structured logs and the
// prometheus event counters.
type logEmitter struct {
	logger *slog.Logger
}

func (l *logEmitter) DepositedCollateral(evt engine.CollateralDeposited) {
	observability.Events().RecordDeposit(evt.Symbol)
	l.logger.Info("collateral deposited",
		slog.String("actor", evt.Actor.String()),
		slog.String("asset", evt.Symbol),
		slog.String("amount", evt.Amount.String()),
	)
}

func (l *logEmitter) RedeemedCollateral(evt engine.CollateralRedeemed) {
	observability.Events().RecordRedemption(evt.Symbol)
	l.logger.Info("collateral redeemed",
		slog.String("from", evt.From.String()),
		slog.String("to", evt.To.String()),
		slog.String("asset", evt.Symbol),
		slog.String("amount", evt.Amount.String()),
	)
}
