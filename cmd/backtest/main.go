// Hyperliquid Backtester — replays historical L2 order-book snapshots for
// one coin against a declarative trading strategy.
//
// Architecture:
//
//	main.go                — entry point: config, wiring, one run end to end
//	config/config.go       — YAML config with HLBT_* env overrides
//	ingest/loader.go       — per-hour snapshot files, decoded concurrently
//	ingest/funding.go      — funding-rate history from the Hyperliquid info API
//	book/book.go           — L2 book rebuilt per snapshot; read-only sweeps
//	indicator/             — SMA/EMA/WMA/RSI/MACD/Bollinger/Stoch/ATR/ADX/OBV
//	strategy/              — JSON strategy IR, compiled condition graphs
//	sim/engine.go          — the sequential per-event playback loop
//	portfolio/             — cash, signed position, fees, funding accrual
//	store/                 — results database (sqlite) + CSV/JSON exports
//
// A run: load config → parse strategy → fetch funding → load events →
// play back → persist and export the result.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/franalgaba/hyperliquid-backtesting/internal/config"
	"github.com/franalgaba/hyperliquid-backtesting/internal/ingest"
	"github.com/franalgaba/hyperliquid-backtesting/internal/portfolio"
	"github.com/franalgaba/hyperliquid-backtesting/internal/sim"
	"github.com/franalgaba/hyperliquid-backtesting/internal/store"
	"github.com/franalgaba/hyperliquid-backtesting/internal/strategy"
)

func main() {
	var (
		cfgPath      = flag.String("config", "configs/config.yaml", "path to config file")
		strategyPath = flag.String("strategy", "", "path to strategy IR JSON (required)")
		coin         = flag.String("coin", "", "coin override, e.g. BTC")
		from         = flag.String("from", "", "start date override (YYYYMMDD)")
		to           = flag.String("to", "", "end date override (YYYYMMDD)")
		outDir       = flag.String("out", "", "output directory override")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", *cfgPath)
		os.Exit(1)
	}
	if *coin != "" {
		cfg.Coin = *coin
	}
	if *from != "" {
		cfg.From = *from
	}
	if *to != "" {
		cfg.To = *to
	}
	if *outDir != "" {
		cfg.Store.OutDir = *outDir
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if *strategyPath == "" {
		slog.Error("missing -strategy flag")
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	if err := run(cfg, *strategyPath, logger); err != nil {
		logger.Error("backtest failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, strategyPath string, logger *slog.Logger) error {
	ctx := context.Background()

	ir, err := strategy.ParseFile(strategyPath)
	if err != nil {
		return err
	}

	startMs, endMs := cfg.Range()

	funding, err := ingest.NewFundingClient(cfg.API.InfoBaseURL, logger).
		FetchSchedule(ctx, cfg.Coin, startMs, endMs)
	if err != nil {
		if !cfg.Sim.FundingDegraded {
			return err
		}
		logger.Warn("funding fetch failed, continuing with zero rates", "error", err)
		funding = portfolio.ZeroFundingSchedule()
	}

	loader := ingest.NewLoader(cfg.Data.EventsRoot, cfg.Data.IOConcurrency, logger)
	events, err := loader.Load(cfg.Coin, startMs, endMs)
	if err != nil {
		return err
	}

	params := sim.Params{
		Symbol:         cfg.Coin,
		InitialCapital: cfg.Sim.InitialCapital,
		Fees: portfolio.FeeSchedule{
			MakerBps:    cfg.Sim.MakerFeeBps,
			TakerBps:    cfg.Sim.TakerFeeBps,
			SlippageBps: cfg.Sim.SlippageBps,
		},
		TradeCooldown:      cfg.Cooldown(),
		CloseAtEnd:         cfg.Sim.CloseAtEnd,
		IndicatorsParallel: cfg.Sim.IndicatorsParallel,
	}
	engine, err := sim.New(params, ir, funding, logger)
	if err != nil {
		return err
	}
	result, err := engine.Run(events)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.SaveResult(result); err != nil {
		return err
	}
	if err := store.ExportResult(cfg.Store.OutDir, result); err != nil {
		return err
	}

	logger.Info("results written",
		"run_id", result.RunID,
		"db", cfg.Store.DBPath,
		"out", cfg.Store.OutDir,
	)
	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
