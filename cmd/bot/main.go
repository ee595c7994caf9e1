package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"momentum/internal/advisor"
	"momentum/internal/broker"
	"momentum/internal/config"
	"momentum/internal/engine"
	"momentum/internal/logger"
	"momentum/internal/md"
	"momentum/internal/state"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const warmupAttempts = 3

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zlog, err := logger.New(logger.Options{Level: cfg.LogLevel, Path: cfg.LogPath})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zlog); err != nil {
		zlog.Error("bot stopped with error", zap.Error(err))
		os.Exit(1)
	}
	zlog.Info("bot shutdown complete")
}

func run(ctx context.Context, cfg config.Config, zlog *zap.Logger) error {
	exchange := broker.NewAlpaca(broker.AlpacaOpts{
		APIKey:     cfg.APIKey,
		APISecret:  cfg.APISecret,
		BaseURL:    cfg.BaseURL,
		QuoteAsset: cfg.QuoteAsset,
	}, zlog)

	decisions, err := engine.NewDecisionLogger(cfg.DecisionsPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := decisions.Close(); err != nil {
			zlog.Warn("failed to close decision logger", zap.Error(err))
		}
	}()

	snapshot, err := loadCheckpoint(cfg, zlog)
	if err != nil {
		return err
	}

	history := fetchHistory(ctx, exchange, cfg, zlog)

	if cfg.Mode == config.ModeLive {
		price, err := startPrice(ctx, exchange, cfg, history)
		if err != nil {
			return err
		}
		snapshot, err = engine.Reconcile(ctx, exchange, snapshot, cfg.BaseAsset, cfg.QuoteAsset, price, decimal.NewFromFloat(cfg.DustNotional), time.Now().UTC(), cfg.CallTimeout, zlog)
		if err != nil {
			return err
		}
	}

	e, err := engine.New(cfg, snapshot, exchange, decisions, zlog)
	if err != nil {
		return err
	}
	e.Warmup(history)

	zlog.Info("starting bot",
		zap.String("mode", string(cfg.Mode)),
		zap.String("symbol", cfg.Symbol),
		zap.String("sizing", string(cfg.Sizing)),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.String("run_id", decisions.RunID()),
	)
	runner := &engine.Runner{
		Engine:         e,
		Exchange:       exchange,
		Symbol:         cfg.Symbol,
		PollInterval:   cfg.PollInterval,
		CallTimeout:    cfg.CallTimeout,
		CheckpointPath: cfg.CheckpointPath,
		Log:            zlog,
	}
	if cfg.AdvisorURL != "" {
		runner.Advisor = advisor.New(advisor.NewOllama(cfg.AdvisorURL, cfg.AdvisorModel, zlog), advisor.Options{
			Symbol:         cfg.Symbol,
			MomentumPeriod: cfg.MomentumPeriod,
			BuyThreshold:   cfg.BuyThreshold,
			TakeProfitPct:  cfg.TakeProfitPct,
			PromptPath:     cfg.AdvisorPrompt,
			Context:        cfg.AdvisorContext,
			Timeout:        cfg.AdvisorTimeout,
		}, zlog)
		zlog.Info("trade idea advisor enabled", zap.String("url", cfg.AdvisorURL), zap.String("model", cfg.AdvisorModel))
	}
	if err := runner.Run(ctx); err != nil {
		return err
	}

	if err := state.Save(cfg.CheckpointPath, e.AccountState()); err != nil {
		zlog.Error("failed to save checkpoint", zap.String("path", cfg.CheckpointPath), zap.Error(err))
	}

	report, err := json.MarshalIndent(e.Metrics(), "", "  ")
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(report, '\n'))
	return err
}

func loadCheckpoint(cfg config.Config, zlog *zap.Logger) (state.Snapshot, error) {
	snapshot, err := state.Load(cfg.CheckpointPath)
	switch {
	case err == nil:
		zlog.Info("loaded checkpoint", zap.String("path", cfg.CheckpointPath))
		return snapshot, nil
	case errors.Is(err, fs.ErrNotExist):
		return state.Snapshot{Account: state.NewAccount(decimal.NewFromFloat(cfg.InitialQuote), decimal.Zero)}, nil
	default:
		return state.Snapshot{}, err
	}
}

// fetchHistory loads recent candles for warmup. Failures are retried a few
// times; the bot then starts cold and warms up from live ticks.
func fetchHistory(ctx context.Context, exchange broker.Exchange, cfg config.Config, zlog *zap.Logger) []md.PricePoint {
	limit := cfg.WindowCapacity
	if cfg.WarmupSamples > limit {
		limit = cfg.WarmupSamples
	}
	delay := cfg.CallTimeout
	for attempt := 1; attempt <= warmupAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		points, err := exchange.Candles(callCtx, cfg.Symbol, cfg.Interval, limit)
		cancel()
		if err == nil {
			return points
		}
		zlog.Warn("warmup candles unavailable", zap.Int("attempt", attempt), zap.Error(err))
		if attempt == warmupAttempts {
			break
		}
		if err := broker.WaitForContext(ctx, delay); err != nil {
			break
		}
		delay *= 2
	}
	return nil
}

func startPrice(ctx context.Context, exchange broker.Exchange, cfg config.Config, history []md.PricePoint) (decimal.Decimal, error) {
	if n := len(history); n > 0 {
		return decimal.NewFromFloat(history[n-1].Close), nil
	}
	callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()
	return exchange.CurrentPrice(callCtx, cfg.Symbol)
}
