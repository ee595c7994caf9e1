package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

type Reason string

const (
	ReasonMomentumUp    Reason = "momentum_up"
	ReasonMomentumDown  Reason = "momentum_down"
	ReasonTakeProfit    Reason = "take_profit"
	ReasonEmergencyExit Reason = "emergency_exit"
)

// Trade is one filled execution. RealizedPnL and RealizedPnLPct are only
// set on sells.
type Trade struct {
	Seq            int             `json:"seq"`
	Time           time.Time       `json:"time"`
	Side           Side            `json:"side"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	Notional       decimal.Decimal `json:"notional"`
	Fee            decimal.Decimal `json:"fee"`
	NetAmount      decimal.Decimal `json:"net_amount"`
	Reason         Reason          `json:"reason"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	RealizedPnLPct float64         `json:"realized_pnl_pct"`
	OrderID        string          `json:"order_id,omitempty"`
	SizingStrategy string          `json:"sizing_strategy,omitempty"`
}

// Ledger is append-only. Entries are never edited or removed.
type Ledger struct {
	trades []Trade
}

func New() *Ledger {
	return &Ledger{}
}

// Append assigns the next sequence number and stores the trade.
func (l *Ledger) Append(trade Trade) Trade {
	trade.Seq = len(l.trades) + 1
	l.trades = append(l.trades, trade)
	return trade
}

// Trades returns a copy in execution order.
func (l *Ledger) Trades() []Trade {
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

func (l *Ledger) Len() int {
	return len(l.trades)
}

func (l *Ledger) Last() (Trade, bool) {
	if len(l.trades) == 0 {
		return Trade{}, false
	}
	return l.trades[len(l.trades)-1], true
}
