package sizing

import (
	"errors"
	"fmt"
	"math"

	"momentum/internal/signal"
	"momentum/internal/state"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInsufficientNotional = errors.New("insufficient notional")

// MaxBalanceUsage bounds the share of the quote balance any entry may use.
var MaxBalanceUsage = decimal.RequireFromString("0.9")

type Strategy string

const (
	Fixed                 Strategy = "fixed"
	Percentage            Strategy = "percentage"
	Momentum              Strategy = "momentum"
	Adaptive              Strategy = "adaptive"
	SignalQualityWeighted Strategy = "signal_quality"
)

// Strategies lists every sizing strategy in a stable order.
var Strategies = []Strategy{Fixed, Percentage, Momentum, Adaptive, SignalQualityWeighted}

func ParseStrategy(value string) (Strategy, error) {
	for _, s := range Strategies {
		if string(s) == value {
			return s, nil
		}
	}
	return "", fmt.Errorf("unsupported sizing strategy: %s", value)
}

type Params struct {
	BaseNotional  decimal.Decimal
	MinNotional   decimal.Decimal
	BalanceUsage  decimal.Decimal
	BuyThreshold  float64
	SellThreshold float64
	TakeProfitPct float64
}

type Request struct {
	Strategy    Strategy
	Signals     signal.Signals
	Account     state.Account
	TradesToday int
	Hint        *AISignal
}

type Sizer struct {
	params Params
	log    *zap.Logger
}

func New(params Params, log *zap.Logger) *Sizer {
	if log == nil {
		log = zap.NewNop()
	}
	if !params.BalanceUsage.IsPositive() || params.BalanceUsage.GreaterThan(MaxBalanceUsage) {
		params.BalanceUsage = MaxBalanceUsage
	}
	return &Sizer{params: params, log: log}
}

// Size returns the quote notional for an entry. The result never exceeds
// BalanceUsage of the quote balance; anything below MinNotional fails with
// ErrInsufficientNotional.
func (s *Sizer) Size(req Request) (decimal.Decimal, error) {
	base := s.params.BaseNotional
	quote := req.Account.Quote

	var notional decimal.Decimal
	switch req.Strategy {
	case Fixed, "":
		notional = base
	case Percentage:
		notional = clamp(quote.Mul(decimal.RequireFromString("0.10")), scale(base, 0.5), scale(base, 2.0))
	case Momentum:
		notional = clamp(scale(base, s.momentumMultiplier(req.Signals)), scale(base, 0.5), scale(base, 1.5))
	case Adaptive:
		notional = clamp(scale(base, s.adaptiveMultiplier(req)), scale(base, 0.3), scale(base, 2.0))
	case SignalQualityWeighted:
		quality := s.Quality(req.Signals, req.Hint)
		notional = clamp(scale(base, quality.OverallScore), scale(base, 0.25), scale(base, 2.0))
		notional = decimal.Min(notional, quote.Mul(decimal.RequireFromString("0.25")))
		s.log.Debug("signal quality",
			zap.Float64("confidence", quality.Confidence),
			zap.Float64("risk_reward", quality.RiskRewardRatio),
			zap.Float64("alignment", quality.Alignment),
			zap.Float64("volatility_factor", quality.VolatilityFactor),
			zap.Float64("overall", quality.OverallScore),
		)
	default:
		return decimal.Zero, fmt.Errorf("unsupported sizing strategy: %s", req.Strategy)
	}

	ceiling := quote.Mul(s.params.BalanceUsage)
	notional = decimal.Min(notional, ceiling)
	if notional.IsNegative() {
		notional = decimal.Zero
	}
	if notional.LessThan(s.params.MinNotional) {
		return decimal.Zero, fmt.Errorf("%w: %s below minimum %s", ErrInsufficientNotional,
			notional.StringFixed(2), s.params.MinNotional.StringFixed(2))
	}
	return notional, nil
}

func (s *Sizer) ratio(momentum float64) float64 {
	if s.params.BuyThreshold <= 0 {
		return 0
	}
	return math.Abs(momentum) / s.params.BuyThreshold
}

func (s *Sizer) momentumMultiplier(sig signal.Signals) float64 {
	r := s.ratio(sig.Momentum)
	var m float64
	switch {
	case r >= 2:
		m = 1.4
	case r >= 1.5:
		m = 1.2
	case r >= 1:
		m = 1.0
	default:
		m = 0.8
	}
	switch {
	case sig.Trend < -0.03:
		m *= 0.7
	case sig.Trend > 0.02:
		m *= 1.1
	}
	return m
}

func (s *Sizer) adaptiveMultiplier(req Request) float64 {
	balance := 0.0
	if base := s.params.BaseNotional.InexactFloat64(); base > 0 {
		balance = math.Min(2.0, req.Account.Quote.InexactFloat64()/(5*base))
	}

	var momentum float64
	switch r := s.ratio(req.Signals.Momentum); {
	case r >= 2.5:
		momentum = 1.3
	case r >= 5.0/3.0:
		momentum = 1.1
	case r >= 1:
		momentum = 1.0
	default:
		momentum = 0.8
	}

	trend := 1.0
	switch {
	case req.Signals.Trend > 0.02:
		trend = 1.1
	case req.Signals.Trend < -0.03:
		trend = 0.8
	}

	activity := 1.0
	switch {
	case req.TradesToday >= 7:
		activity = 0.7
	case req.TradesToday >= 5:
		activity = 0.9
	}

	return balance * momentum * trend * activity
}

func scale(d decimal.Decimal, f float64) decimal.Decimal {
	return d.Mul(decimal.NewFromFloat(f))
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	return decimal.Max(lo, decimal.Min(v, hi))
}
