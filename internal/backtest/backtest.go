// Package backtest replays historical candles through a fresh engine.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"momentum/internal/config"
	"momentum/internal/engine"
	"momentum/internal/ledger"
	"momentum/internal/md"
	"momentum/internal/performance"
	"momentum/internal/signal"
	"momentum/internal/sizing"
	"momentum/internal/state"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// sellRatio sets the exit threshold from the entry threshold during a sweep.
const sellRatio = 1.67

var ErrNoData = errors.New("no price data")

// Result is one replay: the engine's report plus the buy-and-hold benchmark
// over the same candles.
type Result struct {
	Config          config.Config
	Report          performance.Report
	Trades          []ledger.Trade
	StartPrice      float64
	EndPrice        float64
	MarketReturnPct float64
	BuyHoldValue    float64
	BuyHoldPct      float64
	Outperformance  float64
	Skipped         int
	LastSignals     signal.Signals
}

// BeatBuyHold reports whether the strategy returned more than holding.
func (r Result) BeatBuyHold() bool {
	return r.Report.TotalReturnPct > r.BuyHoldPct
}

// Run replays points through a simulated engine built from cfg. Invalid
// samples are skipped and counted.
func Run(cfg config.Config, points []md.PricePoint, log *zap.Logger) (Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(points) == 0 {
		return Result{}, ErrNoData
	}
	cfg.Mode = config.ModeSimulate

	snapshot := state.Snapshot{Account: state.NewAccount(decimal.NewFromFloat(cfg.InitialQuote), decimal.Zero)}
	e, err := engine.New(cfg, snapshot, nil, nil, log)
	if err != nil {
		return Result{}, err
	}

	ctx := context.Background()
	result := Result{Config: cfg}
	var first, last md.PricePoint
	accepted := 0
	for _, point := range points {
		tick, err := e.OnTick(ctx, point)
		if err != nil {
			result.Skipped++
			continue
		}
		if accepted == 0 {
			first = point
		}
		last = point
		accepted++
		result.LastSignals = tick.Signals
	}
	if accepted == 0 {
		return Result{}, fmt.Errorf("%w: all %d samples rejected", ErrNoData, len(points))
	}

	result.Report = e.Metrics()
	result.Trades = e.Ledger()
	result.StartPrice = first.Close
	result.EndPrice = last.Close
	result.MarketReturnPct = (last.Close - first.Close) / first.Close * 100

	initial := cfg.InitialQuote
	held := initial * (1 - cfg.MakerFee) / first.Close
	result.BuyHoldValue = held * last.Close
	if initial > 0 {
		result.BuyHoldPct = (result.BuyHoldValue - initial) / initial * 100
	}
	result.Outperformance = result.Report.TotalReturnPct - result.BuyHoldPct

	log.Info("backtest complete",
		zap.String("symbol", cfg.Symbol),
		zap.String("sizing", string(cfg.Sizing)),
		zap.Int("samples", accepted),
		zap.Int("skipped", result.Skipped),
		zap.Int("trades", result.Report.TotalTrades),
		zap.Float64("return_pct", result.Report.TotalReturnPct),
		zap.Float64("buy_hold_pct", result.BuyHoldPct),
	)
	return result, nil
}

// CompareSizing runs the same candles once per sizing strategy, in
// sizing.Strategies order.
func CompareSizing(cfg config.Config, points []md.PricePoint, log *zap.Logger) ([]Result, error) {
	results := make([]Result, 0, len(sizing.Strategies))
	for _, strategy := range sizing.Strategies {
		run := cfg
		run.Sizing = strategy
		result, err := Run(run, points, log)
		if err != nil {
			return nil, fmt.Errorf("sizing %s: %w", strategy, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// Optimize sweeps every entry threshold and take profit of preset with
// adaptive sizing. The exit threshold follows the entry threshold. Results
// are ordered by total return, best first.
func Optimize(cfg config.Config, points []md.PricePoint, preset config.Preset, log *zap.Logger) ([]Result, error) {
	if len(preset.BuyThresholds) == 0 || len(preset.TakeProfits) == 0 {
		return nil, fmt.Errorf("preset %s has an empty grid", preset.Name)
	}
	results := make([]Result, 0, len(preset.BuyThresholds)*len(preset.TakeProfits))
	for _, buy := range preset.BuyThresholds {
		for _, tp := range preset.TakeProfits {
			run := cfg
			run.BuyThreshold = buy
			run.SellThreshold = buy * sellRatio
			run.TakeProfitPct = tp
			run.Sizing = sizing.Adaptive
			result, err := Run(run, points, log)
			if err != nil {
				return nil, fmt.Errorf("buy %.4f tp %.4f: %w", buy, tp, err)
			}
			results = append(results, result)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Report.TotalReturnPct > results[j].Report.TotalReturnPct
	})
	return results, nil
}
