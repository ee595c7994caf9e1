package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"momentum/internal/backtest"
	"momentum/internal/broker"
	"momentum/internal/config"
	"momentum/internal/logger"
	"momentum/internal/md"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

func main() {
	flags := config.NewFlagSet("backtest")
	candlesPath := flags.String("candles", "", "JSON candle file; fetched from the exchange when empty")
	days := flags.Int("days", 60, "days of history to fetch from the exchange")
	compare := flags.Bool("compare-sizing", false, "run every sizing strategy on the same data")
	optimize := flags.Bool("optimize", false, "sweep the preset grid for the detected volatility category")
	top := flags.Int("top", 5, "optimizer results to print")

	cfg, err := config.Parse(flags, os.Args[1:])
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	zlog, err := logger.New(logger.Options{Level: cfg.LogLevel, Path: cfg.LogPath})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	points, err := loadPoints(cfg, *candlesPath, *days, zlog)
	if err != nil {
		zlog.Fatal("failed to load candles", zap.Error(err))
	}
	zlog.Info("candles loaded", zap.Int("count", len(points)), zap.String("symbol", cfg.Symbol))

	quiet := zap.NewNop()
	switch {
	case *optimize:
		base, err := backtest.Run(cfg, points, quiet)
		if err != nil {
			zlog.Fatal("backtest failed", zap.Error(err))
		}
		preset, err := config.PresetFor(base.LastSignals.DayChangePct)
		if err != nil {
			zlog.Fatal("preset lookup failed", zap.Error(err))
		}
		zlog.Info("volatility category",
			zap.String("category", preset.Label),
			zap.Float64("day_change_pct", base.LastSignals.DayChangePct),
			zap.String("risk_level", preset.RiskLevel),
		)
		results, err := backtest.Optimize(cfg, points, preset, quiet)
		if err != nil {
			zlog.Fatal("optimize failed", zap.Error(err))
		}
		if *top > 0 && len(results) > *top {
			results = results[:*top]
		}
		printTable(results, func(r backtest.Result) string {
			return fmt.Sprintf("buy %.2f%% sell %.2f%% tp %.2f%%",
				r.Config.BuyThreshold*100, r.Config.SellThreshold*100, r.Config.TakeProfitPct*100)
		})
	case *compare:
		results, err := backtest.CompareSizing(cfg, points, quiet)
		if err != nil {
			zlog.Fatal("compare failed", zap.Error(err))
		}
		printTable(results, func(r backtest.Result) string { return string(r.Config.Sizing) })
	default:
		result, err := backtest.Run(cfg, points, zlog)
		if err != nil {
			zlog.Fatal("backtest failed", zap.Error(err))
		}
		printResult(result)
	}
}

func loadPoints(cfg config.Config, path string, days int, zlog *zap.Logger) ([]md.PricePoint, error) {
	if path != "" {
		return md.LoadCandles(path)
	}
	exchange := broker.NewAlpaca(broker.AlpacaOpts{
		APIKey:     cfg.APIKey,
		APISecret:  cfg.APISecret,
		BaseURL:    cfg.BaseURL,
		QuoteAsset: cfg.QuoteAsset,
	}, zlog)
	limit := int(time.Duration(days) * 24 * time.Hour / cfg.Interval)
	ctx, cancel := context.WithTimeout(context.Background(), 6*cfg.CallTimeout)
	defer cancel()
	return exchange.Candles(ctx, cfg.Symbol, cfg.Interval, limit)
}

func printResult(r backtest.Result) {
	report, err := json.MarshalIndent(r.Report, "", "  ")
	if err != nil {
		log.Fatalf("encode report: %v", err)
	}
	fmt.Println(string(report))
	fmt.Printf("market return: %+.2f%% (%.6f -> %.6f)\n", r.MarketReturnPct, r.StartPrice, r.EndPrice)
	fmt.Printf("buy & hold:    %+.2f%%\n", r.BuyHoldPct)
	status := "UNDERPERFORMED"
	if r.BeatBuyHold() {
		status = "OUTPERFORMED"
	}
	fmt.Printf("strategy:      %+.2f%% (%s by %.2f%%)\n", r.Report.TotalReturnPct, status, r.Outperformance)
	if r.Skipped > 0 {
		fmt.Printf("skipped %d invalid samples\n", r.Skipped)
	}
}

func printTable(results []backtest.Result, label func(backtest.Result) string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tRUN\tRETURN%\tVS HOLD\tWIN%\tTRADES\tMAX DD%\tSHARPE")
	for i, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%+.2f\t%+.2f\t%.1f\t%d\t%.2f\t%.2f\n",
			i+1, label(r), r.Report.TotalReturnPct, r.Outperformance, r.Report.WinRate,
			r.Report.TotalTrades, r.Report.MaxDrawdownPct, r.Report.SharpeRatio)
	}
	_ = w.Flush()
}
