package md

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func closesToPoints(values []float64) []PricePoint {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]PricePoint, len(values))
	for i, v := range values {
		points[i] = FromPrice(start.Add(time.Duration(i)*time.Hour), v)
	}
	return points
}

func TestWindowSMA(t *testing.T) {
	window := NewWindow(5)
	for _, p := range closesToPoints([]float64{1, 2, 3, 4, 5}) {
		window.Add(p)
	}

	sma, err := window.SMA(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := (3.0 + 4.0 + 5.0) / 3.0
	if sma != expected {
		t.Fatalf("expected SMA %.2f, got %.2f", expected, sma)
	}
}

func TestWindowSMAInsufficientData(t *testing.T) {
	window := NewWindow(5)
	window.Add(closesToPoints([]float64{1})[0])

	if _, err := window.SMA(3); err == nil {
		t.Fatalf("expected error for insufficient data")
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	window := NewWindow(3)
	for _, p := range closesToPoints([]float64{1, 2, 3, 4, 5}) {
		window.Add(p)
	}

	closes := window.Closes()
	if window.Len() != 3 || len(closes) != 3 {
		t.Fatalf("expected 3 samples, got %d", window.Len())
	}
	want := []float64{3, 4, 5}
	for i := range want {
		if closes[i] != want[i] {
			t.Fatalf("expected closes %v, got %v", want, closes)
		}
	}
	last, ok := window.Last()
	if !ok || last.Close != 5 {
		t.Fatalf("expected last close 5, got %v", last.Close)
	}
}

func TestValidateRejectsBadSamples(t *testing.T) {
	base := FromPrice(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 100)
	tests := []struct {
		name  string
		point PricePoint
	}{
		{"zero close", PricePoint{Time: base.Time.Add(time.Hour), Open: 1, High: 1, Low: 1}},
		{"negative volume", PricePoint{Time: base.Time.Add(time.Hour), Open: 1, High: 1, Low: 1, Close: 1, Volume: -1}},
		{"duplicate timestamp", FromPrice(base.Time, 101)},
		{"older timestamp", FromPrice(base.Time.Add(-time.Hour), 101)},
		{"high below low", PricePoint{Time: base.Time.Add(time.Hour), Open: 1, High: 1, Low: 2, Close: 1}},
		{"nan close", FromPrice(base.Time.Add(time.Hour), math.NaN())},
		{"infinite close", FromPrice(base.Time.Add(time.Hour), math.Inf(1))},
		{"infinite high", PricePoint{Time: base.Time.Add(time.Hour), Open: 1, High: math.Inf(1), Low: 1, Close: 1}},
		{"nan volume", PricePoint{Time: base.Time.Add(time.Hour), Open: 1, High: 1, Low: 1, Close: 1, Volume: math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.point, base); !errors.Is(err, ErrInvalidPriceData) {
				t.Fatalf("expected ErrInvalidPriceData, got %v", err)
			}
		})
	}

	if err := Validate(FromPrice(base.Time.Add(time.Hour), 101), base); err != nil {
		t.Fatalf("expected valid sample, got %v", err)
	}
	if err := Validate(base, PricePoint{}); err != nil {
		t.Fatalf("expected first sample to be valid, got %v", err)
	}
}

func TestLoadCandlesSortsByTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.json")
	content := `[
  {"time":"2024-01-01T02:00:00Z","open":3,"high":3,"low":3,"close":3,"volume":10},
  {"time":"2024-01-01T00:00:00Z","open":1,"high":1,"low":1,"close":1,"volume":10},
  {"time":"2024-01-01T01:00:00Z","open":2,"high":2,"low":2,"close":2,"volume":10}
]`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write candles: %v", err)
	}

	points, err := LoadCandles(path)
	if err != nil {
		t.Fatalf("load candles: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(points))
	}
	for i, p := range points {
		if p.Close != float64(i+1) {
			t.Fatalf("expected candles sorted by time, got %v", points)
		}
	}
}
