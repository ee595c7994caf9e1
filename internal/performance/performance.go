// Package performance derives trading statistics from a ledger and an
// equity curve. Nothing is cached: every call recomputes from its input.
package performance

import (
	"math"
	"time"

	"momentum/internal/ledger"

	"github.com/shopspring/decimal"
)

// EquitySample is the portfolio valuation after one tick.
type EquitySample struct {
	Time  time.Time       `json:"time"`
	Price decimal.Decimal `json:"price"`
	Quote decimal.Decimal `json:"quote"`
	Base  decimal.Decimal `json:"base"`
	Value decimal.Decimal `json:"value"`
}

type Input struct {
	Trades         []ledger.Trade
	Equity         []EquitySample
	InitialValue   decimal.Decimal
	FinalValue     decimal.Decimal
	PeriodsPerYear float64
	RiskFreeRate   float64
}

type Report struct {
	InitialValue        float64 `json:"initial_value"`
	FinalValue          float64 `json:"final_value"`
	TotalReturn         float64 `json:"total_return"`
	TotalReturnPct      float64 `json:"total_return_pct"`
	AnnualizedReturnPct float64 `json:"annualized_return_pct"`
	TotalDays           int     `json:"total_days"`

	TotalTrades  int     `json:"total_trades"`
	Buys         int     `json:"buys"`
	Sells        int     `json:"sells"`
	TradesPerDay float64 `json:"trades_per_day"`

	WinningSells int     `json:"winning_sells"`
	LosingSells  int     `json:"losing_sells"`
	WinRate      float64 `json:"win_rate"`
	GrossProfit  float64 `json:"gross_profit"`
	GrossLoss    float64 `json:"gross_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`

	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	VolatilityPct  float64 `json:"volatility_pct"`

	TotalFees   float64               `json:"total_fees"`
	ExitReasons map[ledger.Reason]int `json:"exit_reasons"`
	AvgPosition float64               `json:"avg_position"`
	MinPosition float64               `json:"min_position"`
	MaxPosition float64               `json:"max_position"`
}

func Analyze(in Input) Report {
	initial := in.InitialValue.InexactFloat64()
	final := in.FinalValue.InexactFloat64()

	r := Report{
		InitialValue: initial,
		FinalValue:   final,
		TotalReturn:  final - initial,
		TotalTrades:  len(in.Trades),
		ExitReasons:  map[ledger.Reason]int{},
	}
	if initial > 0 {
		r.TotalReturnPct = (final - initial) / initial * 100
	}

	r.TotalDays = totalDays(in)
	if r.TotalDays > 0 && initial > 0 && final > 0 {
		daily := math.Pow(final/initial, 1/float64(r.TotalDays)) - 1
		r.AnnualizedReturnPct = (math.Pow(1+daily, 365) - 1) * 100
	}
	if r.TotalDays > 0 {
		r.TradesPerDay = float64(r.TotalTrades) / float64(r.TotalDays)
	}

	fees := decimal.Zero
	positionSum := 0.0
	for _, trade := range in.Trades {
		fees = fees.Add(trade.Fee)
		switch trade.Side {
		case ledger.Buy:
			r.Buys++
			size := trade.Notional.InexactFloat64()
			positionSum += size
			if r.Buys == 1 || size < r.MinPosition {
				r.MinPosition = size
			}
			if size > r.MaxPosition {
				r.MaxPosition = size
			}
		case ledger.Sell:
			r.Sells++
			r.ExitReasons[trade.Reason]++
			pnl := trade.RealizedPnL.InexactFloat64()
			if pnl > 0 {
				r.WinningSells++
				r.GrossProfit += pnl
			} else {
				r.LosingSells++
				r.GrossLoss += -pnl
			}
		}
	}
	r.TotalFees = fees.InexactFloat64()
	if r.Buys > 0 {
		r.AvgPosition = positionSum / float64(r.Buys)
	}

	if closed := r.WinningSells + r.LosingSells; closed > 0 {
		r.WinRate = float64(r.WinningSells) / float64(closed) * 100
	}
	// A zero loss floors to 1 so a lossless run reports its gross profit.
	r.ProfitFactor = r.GrossProfit / math.Max(1, r.GrossLoss)
	if r.WinningSells > 0 {
		r.AvgWin = r.GrossProfit / float64(r.WinningSells)
	}
	if r.LosingSells > 0 {
		r.AvgLoss = r.GrossLoss / float64(r.LosingSells)
	}

	values := make([]float64, len(in.Equity))
	for i, sample := range in.Equity {
		values[i] = sample.Value.InexactFloat64()
	}
	r.MaxDrawdownPct = MaxDrawdown(values) * 100
	r.SharpeRatio, r.VolatilityPct = sharpe(values, in.PeriodsPerYear, in.RiskFreeRate)
	return r
}

// MaxDrawdown is the largest (peak - value) / peak over the curve.
func MaxDrawdown(values []float64) float64 {
	peak := 0.0
	worst := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// sharpe returns the annualized Sharpe ratio and annualized volatility in
// percent. Both are zero with fewer than two returns or a flat curve.
func sharpe(values []float64, periodsPerYear, riskFreeRate float64) (float64, float64) {
	if len(values) < 3 || periodsPerYear <= 0 {
		return 0, 0
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		returns = append(returns, values[i]/values[i-1]-1)
	}
	if len(returns) < 2 {
		return 0, 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)-1))
	if std == 0 {
		return 0, 0
	}

	rfPerPeriod := riskFreeRate / periodsPerYear
	annual := math.Sqrt(periodsPerYear)
	return (mean - rfPerPeriod) / std * annual, std * annual * 100
}

func totalDays(in Input) int {
	var first, last time.Time
	switch {
	case len(in.Equity) > 0:
		first, last = in.Equity[0].Time, in.Equity[len(in.Equity)-1].Time
	case len(in.Trades) > 0:
		first, last = in.Trades[0].Time, in.Trades[len(in.Trades)-1].Time
	default:
		return 0
	}
	return int(last.Sub(first).Hours() / 24)
}
