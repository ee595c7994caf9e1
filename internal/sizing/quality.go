package sizing

import (
	"math"

	"momentum/internal/signal"
)

// AISignal is an externally supplied trade idea. Prices are in the quote
// currency of the traded pair.
type AISignal struct {
	EntryPrice        float64 `json:"entry_price"`
	TargetPrice       float64 `json:"target_price"`
	StopPrice         float64 `json:"stop_price"`
	Risk              int     `json:"risk"`
	ExpectedChangePct float64 `json:"expected_change_pct"`
}

type SignalQuality struct {
	Confidence       float64
	RiskRewardRatio  float64
	Alignment        float64
	VolatilityFactor float64
	OverallScore     float64
}

// Quality scores the current decision point. With a hint the score follows
// the hint's risk, reward and entry; without one it is derived from the
// momentum signals and the configured exit thresholds.
func (s *Sizer) Quality(sig signal.Signals, hint *AISignal) SignalQuality {
	if hint != nil {
		return qualityFromHint(*hint, sig)
	}

	confidence := 0.0
	if s.params.BuyThreshold > 0 {
		confidence = math.Min(math.Abs(sig.Momentum)/(2*s.params.BuyThreshold), 1)
	}
	rr := 1.0
	if s.params.SellThreshold > 0 {
		rr = s.params.TakeProfitPct / s.params.SellThreshold
	}
	q := SignalQuality{
		Confidence:       confidence,
		RiskRewardRatio:  rr,
		Alignment:        1,
		VolatilityFactor: volatilityFactor(sig.DayChangePct),
	}
	q.OverallScore = overall(q.Confidence, rrScore(rr), q.Alignment, q.VolatilityFactor)
	return q
}

func qualityFromHint(hint AISignal, sig signal.Signals) SignalQuality {
	risk := math.Max(0, math.Min(10, float64(hint.Risk)))
	riskConfidence := (10 - risk) / 10
	changeConfidence := math.Min(math.Abs(hint.ExpectedChangePct)/10, 1)
	confidence := riskConfidence*0.7 + changeConfidence*0.3

	profit := math.Abs(hint.TargetPrice - hint.EntryPrice)
	loss := math.Abs(hint.EntryPrice - hint.StopPrice)
	rr := 1.0
	score := 0.5
	if loss > 0 {
		rr = profit / loss
		score = rrScore(rr)
	}

	alignment := 0.0
	if hint.EntryPrice > 0 {
		diffPct := math.Abs(sig.Price-hint.EntryPrice) / hint.EntryPrice * 100
		alignment = math.Max(0, 1-diffPct/5)
	}

	vf := volatilityFactor(sig.DayChangePct)
	return SignalQuality{
		Confidence:       confidence,
		RiskRewardRatio:  rr,
		Alignment:        alignment,
		VolatilityFactor: vf,
		OverallScore:     overall(confidence, score, alignment, vf),
	}
}

// rrScore maps a reward/risk ratio to (0, 0.9]: 1:1 is 0.5, 2:1 is 0.67.
func rrScore(rr float64) float64 {
	if rr <= 0 {
		return 0
	}
	return math.Min(rr/(rr+1), 0.9)
}

func volatilityFactor(dayChangePct float64) float64 {
	switch {
	case dayChangePct <= 2:
		return 1.0
	case dayChangePct <= 5:
		return 0.8
	case dayChangePct <= 10:
		return 0.6
	default:
		return 0.4
	}
}

func overall(confidence, rr, alignment, volatility float64) float64 {
	score := confidence*0.35 + rr*0.25 + alignment*0.25 + volatility*0.15
	return math.Max(0, math.Min(1, score))
}
