package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"momentum/internal/config"
	"momentum/internal/md"
	"momentum/internal/sizing"
)

var start = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func series(n int) []md.PricePoint {
	points := make([]md.PricePoint, n)
	for i := range points {
		x := float64(i)
		price := 100 * (1 + 0.03*math.Sin(x/3) + 0.01*math.Sin(x*1.7) + 0.0005*x)
		points[i] = md.FromPrice(start.Add(time.Duration(i)*time.Hour), price)
	}
	return points
}

func TestRunReportsBuyAndHold(t *testing.T) {
	cfg := config.Default()
	points := series(300)

	result, err := Run(cfg, points, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	first, last := points[0].Close, points[len(points)-1].Close
	want := cfg.InitialQuote * (1 - cfg.MakerFee) / first * last
	if math.Abs(result.BuyHoldValue-want) > 1e-6 {
		t.Fatalf("buy and hold value: want %v got %v", want, result.BuyHoldValue)
	}
	if math.Abs(result.Outperformance-(result.Report.TotalReturnPct-result.BuyHoldPct)) > 1e-9 {
		t.Fatalf("outperformance mismatch")
	}
	if result.Report.TotalTrades == 0 || result.Report.TotalTrades != len(result.Trades) {
		t.Fatalf("expected trades in report, got %d/%d", result.Report.TotalTrades, len(result.Trades))
	}
	if result.Report.InitialValue != cfg.InitialQuote {
		t.Fatalf("expected initial value %v, got %v", cfg.InitialQuote, result.Report.InitialValue)
	}
}

func TestRunSkipsInvalidSamples(t *testing.T) {
	points := series(50)
	points[10].Close = 0
	result, err := Run(config.Default(), points, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Skipped != 1 {
		t.Fatalf("expected one skipped sample, got %d", result.Skipped)
	}
}

func TestRunWithoutData(t *testing.T) {
	if _, err := Run(config.Default(), nil, nil); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestCompareSizingCoversEveryStrategy(t *testing.T) {
	results, err := CompareSizing(config.Default(), series(300), nil)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if len(results) != len(sizing.Strategies) {
		t.Fatalf("expected %d results, got %d", len(sizing.Strategies), len(results))
	}
	for i, r := range results {
		if r.Config.Sizing != sizing.Strategies[i] {
			t.Fatalf("result %d: expected %s, got %s", i, sizing.Strategies[i], r.Config.Sizing)
		}
		for _, trade := range r.Trades {
			if trade.SizingStrategy != string(sizing.Strategies[i]) {
				t.Fatalf("trade tagged %s under %s", trade.SizingStrategy, sizing.Strategies[i])
			}
		}
	}
}

func TestOptimizeSweepsGridBestFirst(t *testing.T) {
	preset := config.Preset{
		Name:          "test",
		BuyThresholds: []float64{0.004, 0.008},
		TakeProfits:   []float64{0.01, 0.02, 0.03},
	}
	results, err := Optimize(config.Default(), series(300), preset, nil)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Config.Sizing != sizing.Adaptive {
			t.Fatalf("expected adaptive sizing, got %s", r.Config.Sizing)
		}
		if math.Abs(r.Config.SellThreshold-r.Config.BuyThreshold*sellRatio) > 1e-12 {
			t.Fatalf("sell threshold %v does not follow buy %v", r.Config.SellThreshold, r.Config.BuyThreshold)
		}
		if i > 0 && r.Report.TotalReturnPct > results[i-1].Report.TotalReturnPct {
			t.Fatalf("results not ordered at %d", i)
		}
	}
}

func TestOptimizeRejectsEmptyGrid(t *testing.T) {
	if _, err := Optimize(config.Default(), series(10), config.Preset{Name: "empty"}, nil); err == nil {
		t.Fatalf("expected error for empty grid")
	}
}
