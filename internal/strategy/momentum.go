package strategy

import (
	"fmt"

	"momentum/internal/ledger"
)

// Momentum is the Flat -> Open -> Flat lifecycle. Exits are checked in a
// fixed order (emergency, take profit, momentum down) and only then the
// entry, so a replay always picks the same transition.
type Momentum struct {
	BuyThreshold        float64
	SellThreshold       float64
	TakeProfitPct       float64
	EntryTrendFloor     float64
	EmergencyTrendFloor float64
}

func (m Momentum) Decide(snapshot MarketSnapshot) TradeIntent {
	sig := snapshot.Signals
	pos := snapshot.Position

	if pos.IsOpen() {
		if sig.Trend < m.EmergencyTrendFloor {
			return TradeIntent{
				Action: Sell,
				Reason: ledger.ReasonEmergencyExit,
				Detail: fmt.Sprintf("trend %.4f below %.4f", sig.Trend, m.EmergencyTrendFloor),
			}
		}
		if entry := pos.EntryPrice.InexactFloat64(); entry > 0 {
			gain := (snapshot.Price - entry) / entry
			if gain >= m.TakeProfitPct {
				return TradeIntent{
					Action: Sell,
					Reason: ledger.ReasonTakeProfit,
					Detail: fmt.Sprintf("gain %.4f reached %.4f", gain, m.TakeProfitPct),
				}
			}
		}
		if sig.Momentum < -m.SellThreshold {
			return TradeIntent{
				Action: Sell,
				Reason: ledger.ReasonMomentumDown,
				Detail: fmt.Sprintf("momentum %.4f below -%.4f", sig.Momentum, m.SellThreshold),
			}
		}
		return TradeIntent{Action: Hold, Detail: "position open"}
	}

	if sig.Momentum > m.BuyThreshold && sig.Trend > m.EntryTrendFloor {
		return TradeIntent{
			Action: Buy,
			Reason: ledger.ReasonMomentumUp,
			Detail: fmt.Sprintf("momentum %.4f above %.4f", sig.Momentum, m.BuyThreshold),
		}
	}
	return TradeIntent{Action: Hold, Detail: "no entry"}
}
