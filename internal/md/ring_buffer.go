package md

import "errors"

// Window is the bounded PriceWindow. Appending past capacity evicts the
// oldest sample.
type Window struct {
	points []PricePoint
	size   int
	index  int
	filled bool
}

func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{
		points: make([]PricePoint, size),
		size:   size,
	}
}

func (w *Window) Add(point PricePoint) {
	w.points[w.index] = point
	w.index = (w.index + 1) % w.size
	if w.index == 0 {
		w.filled = true
	}
}

func (w *Window) Cap() int {
	return w.size
}

func (w *Window) Len() int {
	if w.filled {
		return w.size
	}
	return w.index
}

// Last returns the most recent sample.
func (w *Window) Last() (PricePoint, bool) {
	if w.Len() == 0 {
		return PricePoint{}, false
	}
	idx := (w.index - 1 + w.size) % w.size
	return w.points[idx], true
}

// Points returns the samples oldest first.
func (w *Window) Points() []PricePoint {
	length := w.Len()
	result := make([]PricePoint, 0, length)
	if length == 0 {
		return result
	}
	if w.filled {
		result = append(result, w.points[w.index:]...)
	}
	result = append(result, w.points[:w.index]...)
	return result
}

// Closes returns the close prices oldest first.
func (w *Window) Closes() []float64 {
	points := w.Points()
	closes := make([]float64, len(points))
	for i, p := range points {
		closes[i] = p.Close
	}
	return closes
}

func (w *Window) SMA(window int) (float64, error) {
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}
	closes := w.Closes()
	if len(closes) < window {
		return 0, errors.New("not enough data for SMA")
	}
	start := len(closes) - window
	sum := 0.0
	for _, v := range closes[start:] {
		sum += v
	}
	return sum / float64(window), nil
}
