package md

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/goccy/go-json"
)

var ErrInvalidPriceData = errors.New("invalid price data")

// PricePoint is one OHLCV sample. Produced by the market data collaborator
// and never mutated afterwards.
type PricePoint struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Validate checks a sample against the previous accepted one. prev may be
// the zero value when no sample has been accepted yet.
func Validate(point, prev PricePoint) error {
	if point.Time.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidPriceData)
	}
	for _, v := range []float64{point.Open, point.High, point.Low, point.Close, point.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value at %s", ErrInvalidPriceData, point.Time.Format(time.RFC3339))
		}
	}
	if point.Close <= 0 || point.Open <= 0 || point.High <= 0 || point.Low <= 0 {
		return fmt.Errorf("%w: non-positive price at %s", ErrInvalidPriceData, point.Time.Format(time.RFC3339))
	}
	if point.High < point.Low {
		return fmt.Errorf("%w: high %.8f below low %.8f", ErrInvalidPriceData, point.High, point.Low)
	}
	if point.Volume < 0 {
		return fmt.Errorf("%w: negative volume", ErrInvalidPriceData)
	}
	if !prev.Time.IsZero() && !point.Time.After(prev.Time) {
		return fmt.Errorf("%w: timestamp %s not after %s", ErrInvalidPriceData,
			point.Time.Format(time.RFC3339), prev.Time.Format(time.RFC3339))
	}
	return nil
}

// FromPrice builds a flat sample from a single price observation.
func FromPrice(t time.Time, price float64) PricePoint {
	return PricePoint{Time: t, Open: price, High: price, Low: price, Close: price}
}

// LoadCandles reads a JSON array of PricePoint from path, sorted by time.
func LoadCandles(path string) ([]PricePoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var points []PricePoint
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("decode candles %s: %w", path, err)
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Time.Before(points[j].Time)
	})
	return points, nil
}
