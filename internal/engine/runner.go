package engine

import (
	"context"
	"errors"
	"time"

	"momentum/internal/broker"
	"momentum/internal/md"
	"momentum/internal/signal"
	"momentum/internal/sizing"
	"momentum/internal/state"

	"go.uber.org/zap"
)

// HintSource supplies an external trade idea for the next entry.
type HintSource interface {
	Advise(ctx context.Context, at time.Time, sig signal.Signals) (*sizing.AISignal, error)
}

// Runner polls the exchange for a price on a fixed cadence and feeds it to
// the engine. Failed polls skip the tick; the next attempt happens on the
// next scheduled tick.
type Runner struct {
	Engine         *Engine
	Exchange       broker.Exchange
	Symbol         string
	PollInterval   time.Duration
	CallTimeout    time.Duration
	CheckpointPath string
	Log            *zap.Logger
	Now            func() time.Time

	// Advisor, when set, refreshes the engine's sizing hint after every tick
	// that leaves the position flat.
	Advisor HintSource
}

// Run ticks once immediately and then every PollInterval until ctx is
// cancelled. Cancellation is only observed between ticks.
func (r *Runner) Run(ctx context.Context) error {
	log := r.logger()
	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.Tick(ctx); err != nil {
			log.Warn("tick skipped", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			log.Info("runner stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick fetches the current price and runs one engine cycle.
func (r *Runner) Tick(ctx context.Context) (TickResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.CallTimeout)
	price, err := r.Exchange.CurrentPrice(callCtx, r.Symbol)
	cancel()
	if err != nil {
		if !errors.Is(err, broker.ErrCollaboratorUnavailable) {
			err = errors.Join(broker.ErrCollaboratorUnavailable, err)
		}
		return TickResult{}, err
	}

	result, err := r.Engine.OnTick(ctx, md.FromPrice(r.now(), price.InexactFloat64()))
	if err != nil {
		return result, err
	}
	if result.Trade != nil {
		r.logger().Info("trade executed",
			zap.String("side", string(result.Trade.Side)),
			zap.String("reason", string(result.Trade.Reason)),
			zap.String("price", result.Trade.Price.String()),
			zap.String("qty", result.Trade.Quantity.String()),
		)
	} else if result.Rejected != nil {
		r.logger().Info("transition rejected", zap.Error(result.Rejected))
	}

	if r.Advisor != nil && !result.State.Position.IsOpen() {
		r.refreshHint(ctx, result)
	}

	if r.CheckpointPath != "" {
		if err := state.Save(r.CheckpointPath, result.State); err != nil {
			r.logger().Error("checkpoint save failed", zap.String("path", r.CheckpointPath), zap.Error(err))
		}
	}
	return result, nil
}

func (r *Runner) refreshHint(ctx context.Context, result TickResult) {
	hint, err := r.Advisor.Advise(ctx, result.Time, result.Signals)
	if err != nil {
		r.logger().Info("no advisor hint", zap.Error(err))
		hint = nil
	}
	r.Engine.SetSignalHint(hint)
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Runner) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}
