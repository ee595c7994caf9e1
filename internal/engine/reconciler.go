package engine

import (
	"context"
	"time"

	"momentum/internal/broker"
	"momentum/internal/state"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reconcile replaces the balances in snapshot with the exchange's free
// balances. A base holding with no known position is adopted as a
// position entered at price; a position without a holding is closed. A
// holding worth less than dust at price counts as no holding. The snapshot
// is returned unchanged if any call fails.
func Reconcile(ctx context.Context, exchange broker.Exchange, snapshot state.Snapshot, baseAsset, quoteAsset string, price, dust decimal.Decimal, now time.Time, timeout time.Duration, log *zap.Logger) (state.Snapshot, error) {
	if log == nil {
		log = zap.NewNop()
	}

	quote, err := balance(ctx, exchange, quoteAsset, timeout)
	if err != nil {
		log.Warn("reconcile quote balance failed", zap.String("asset", quoteAsset), zap.Error(err))
		return snapshot, err
	}
	base, err := balance(ctx, exchange, baseAsset, timeout)
	if err != nil {
		log.Warn("reconcile base balance failed", zap.String("asset", baseAsset), zap.Error(err))
		return snapshot, err
	}

	out := snapshot.Clone()
	if out.Account.DailyTrades == nil {
		out.Account.DailyTrades = map[string]int{}
	}
	out.Account.Quote = quote.Free
	out.Account.Base = base.Free

	holding := base.Free.GreaterThan(state.DustEpsilon) && !base.Free.Mul(price).LessThan(dust)
	switch {
	case holding && !out.Position.IsOpen():
		out.Position = state.Position{
			EntryPrice: price,
			EntryTime:  now,
			Quantity:   base.Free,
			Status:     state.StatusOpen,
		}
		log.Info("adopted exchange holding as open position", zap.String("qty", base.Free.String()), zap.String("price", price.String()))
	case !holding && out.Position.IsOpen():
		out.Position = state.Position{Status: state.StatusNone}
		log.Info("closed position with no exchange holding")
	case holding:
		out.Position.Quantity = base.Free
	}

	log.Info("account reconciled",
		zap.String("quote", quote.Free.StringFixed(2)),
		zap.String("quote_locked", quote.Locked.String()),
		zap.String("base", base.Free.String()),
		zap.String("base_locked", base.Locked.String()),
	)
	return out, nil
}

func balance(ctx context.Context, exchange broker.Exchange, asset string, timeout time.Duration) (broker.Balance, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return exchange.Balance(callCtx, asset)
}
