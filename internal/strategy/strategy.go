package strategy

import (
	"time"

	"momentum/internal/ledger"
	"momentum/internal/signal"
	"momentum/internal/state"
)

type Action string

const (
	Hold Action = "HOLD"
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

type MarketSnapshot struct {
	Timestamp time.Time
	Price     float64
	Signals   signal.Signals
	Position  state.Position
}

// TradeIntent is a candidate transition. Reason is empty for Hold.
type TradeIntent struct {
	Action Action
	Reason ledger.Reason
	Detail string
}

type Strategy interface {
	Decide(snapshot MarketSnapshot) TradeIntent
}
