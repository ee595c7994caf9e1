package signal

import (
	"math"

	"momentum/internal/md"

	"github.com/markcheno/go-talib"
)

// Signals are the scalar readings derived from the price window after a
// sample has been observed. Zero means "no signal".
type Signals struct {
	Price        float64
	Samples      int
	Momentum     float64
	Trend        float64
	Volatility   float64
	DayChangePct float64
}

type Params struct {
	MomentumPeriod     int
	TrendWindow        int
	VolatilityLookback int
	PeriodsPerDay      int
	PeriodsPerYear     float64
	Capacity           int
}

// RequiredCapacity is the smallest window that satisfies every lookback.
func (p Params) RequiredCapacity() int {
	need := p.MomentumPeriod + 1
	if p.TrendWindow > need {
		need = p.TrendWindow
	}
	if p.VolatilityLookback+1 > need {
		need = p.VolatilityLookback + 1
	}
	if p.PeriodsPerDay+1 > need {
		need = p.PeriodsPerDay + 1
	}
	return need
}

type Calculator struct {
	params Params
	window *md.Window
}

func NewCalculator(params Params) *Calculator {
	capacity := params.Capacity
	if need := params.RequiredCapacity(); capacity < need {
		capacity = need
	}
	return &Calculator{
		params: params,
		window: md.NewWindow(capacity),
	}
}

// Observe appends the sample and recomputes every signal. Validation of the
// sample is the caller's job.
func (c *Calculator) Observe(point md.PricePoint) Signals {
	c.window.Add(point)
	closes := c.window.Closes()
	return Signals{
		Price:        point.Close,
		Samples:      len(closes),
		Momentum:     Momentum(closes, c.params.MomentumPeriod),
		Trend:        Trend(closes, c.params.TrendWindow),
		Volatility:   Volatility(closes, c.params.VolatilityLookback, c.params.PeriodsPerYear),
		DayChangePct: math.Abs(Momentum(closes, c.params.PeriodsPerDay)) * 100,
	}
}

// SMA is the simple moving average of the last n closes.
func (c *Calculator) SMA(n int) (float64, error) {
	return c.window.SMA(n)
}

// Last returns the most recent accepted sample.
func (c *Calculator) Last() (md.PricePoint, bool) {
	return c.window.Last()
}

func (c *Calculator) Len() int {
	return c.window.Len()
}

// Momentum is the relative change of the last close against the close p
// samples earlier.
func Momentum(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 0
	}
	current := closes[len(closes)-1]
	past := closes[len(closes)-1-period]
	if past == 0 {
		return 0
	}
	return (current - past) / past
}

// Trend compares the mean of the newer half of the last window closes with
// the mean of the older half.
func Trend(closes []float64, window int) float64 {
	if window < 2 || len(closes) < window {
		return 0
	}
	recent := closes[len(closes)-window:]
	mid := len(recent) / 2
	first := mean(recent[:mid])
	second := mean(recent[mid:])
	if first == 0 {
		return 0
	}
	return (second - first) / first
}

// Volatility is the standard deviation of per-step returns over lookback
// returns, annualized by sqrt(periodsPerYear).
func Volatility(closes []float64, lookback int, periodsPerYear float64) float64 {
	if lookback < 2 || len(closes) < lookback+1 || periodsPerYear <= 0 {
		return 0
	}
	recent := closes[len(closes)-lookback-1:]
	returns := make([]float64, 0, lookback)
	for i := 1; i < len(recent); i++ {
		if recent[i-1] == 0 {
			return 0
		}
		returns = append(returns, (recent[i]-recent[i-1])/recent[i-1])
	}
	deviations := talib.StdDev(returns, lookback, 1)
	if len(deviations) == 0 {
		return 0
	}
	return deviations[len(deviations)-1] * math.Sqrt(periodsPerYear)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
