package risk

import (
	"errors"
	"time"

	"momentum/internal/ledger"
	"momentum/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrDailyCapReached = errors.New("daily_cap_reached")
	ErrMinHoldNotMet   = errors.New("min_hold_not_met")
	ErrPositionOpen    = errors.New("position_already_open")
	ErrNoPosition      = errors.New("no_position_to_sell")
	ErrBelowMinBalance = errors.New("quote_below_min_notional")
)

type RiskContext struct {
	Now             time.Time
	TradesToday     int
	MaxTradesPerDay int
	PositionOpen    bool
	EntryTime       time.Time
	MinHold         time.Duration
	Quote           decimal.Decimal
	MinNotional     decimal.Decimal
}

type ApprovedIntent struct {
	Intent strategy.TradeIntent
	Reason string
}

// Gate enforces the preconditions of a transition. Hold intents always
// pass; everything else is checked against the daily cap first.
type Gate struct {
	Log *zap.Logger
}

func (g Gate) Evaluate(intent strategy.TradeIntent, ctx RiskContext) (ApprovedIntent, error) {
	log := g.Log
	if log == nil {
		log = zap.NewNop()
	}

	if intent.Action == strategy.Hold {
		return ApprovedIntent{Intent: intent, Reason: "hold"}, nil
	}

	log.Debug("risk evaluation",
		zap.String("intent", string(intent.Action)),
		zap.String("reason", string(intent.Reason)),
		zap.Int("trades_today", ctx.TradesToday),
		zap.Bool("position_open", ctx.PositionOpen),
	)

	if ctx.TradesToday >= ctx.MaxTradesPerDay {
		log.Info("risk rejected", zap.Error(ErrDailyCapReached), zap.Int("trades_today", ctx.TradesToday), zap.Int("max", ctx.MaxTradesPerDay))
		return ApprovedIntent{}, ErrDailyCapReached
	}

	switch intent.Action {
	case strategy.Buy:
		if ctx.PositionOpen {
			log.Info("risk rejected", zap.Error(ErrPositionOpen))
			return ApprovedIntent{}, ErrPositionOpen
		}
		if ctx.Quote.LessThan(ctx.MinNotional) {
			log.Info("risk rejected", zap.Error(ErrBelowMinBalance), zap.String("quote", ctx.Quote.StringFixed(2)))
			return ApprovedIntent{}, ErrBelowMinBalance
		}
	case strategy.Sell:
		if !ctx.PositionOpen {
			log.Info("risk rejected", zap.Error(ErrNoPosition))
			return ApprovedIntent{}, ErrNoPosition
		}
		if intent.Reason != ledger.ReasonEmergencyExit {
			if held := ctx.Now.Sub(ctx.EntryTime); held < ctx.MinHold {
				log.Info("risk rejected", zap.Error(ErrMinHoldNotMet), zap.Duration("held", held), zap.Duration("min_hold", ctx.MinHold))
				return ApprovedIntent{}, ErrMinHoldNotMet
			}
		}
	}

	log.Debug("risk approved", zap.String("intent", string(intent.Action)), zap.String("reason", string(intent.Reason)))
	return ApprovedIntent{Intent: intent, Reason: "approved"}, nil
}
