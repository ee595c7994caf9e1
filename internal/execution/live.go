package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"momentum/internal/broker"
	"momentum/internal/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrOrderUnconfirmed means an order call ran out of time. The exchange may
// still have filled it, so the book must be reconciled before trusting it.
var ErrOrderUnconfirmed = errors.New("order outcome unknown")

// Live runs the same checks and accounting as the Simulator but submits a
// market order between planning and committing a fill. The book is only
// updated once the exchange has accepted the order. A timed out order is
// reported as ErrOrderUnconfirmed since the request may still complete at
// the exchange.
type Live struct {
	sim      *Simulator
	exchange broker.Exchange
	symbol   string
	log      *zap.Logger
}

func NewLive(sim *Simulator, exchange broker.Exchange, symbol string, log *zap.Logger) *Live {
	if log == nil {
		log = zap.NewNop()
	}
	return &Live{sim: sim, exchange: exchange, symbol: symbol, log: log}
}

func (l *Live) Buy(ctx context.Context, price, notional decimal.Decimal, at time.Time) (ledger.Trade, error) {
	f, err := l.sim.planBuy(price, notional, at)
	if err != nil {
		return ledger.Trade{}, err
	}
	return l.submit(ctx, broker.SideBuy, f)
}

func (l *Live) Sell(ctx context.Context, price, fraction decimal.Decimal, at time.Time, reason ledger.Reason) (ledger.Trade, error) {
	f, err := l.sim.planSell(price, fraction, at, reason)
	if err != nil {
		return ledger.Trade{}, err
	}
	return l.submit(ctx, broker.SideSell, f)
}

func (l *Live) submit(ctx context.Context, side broker.Side, f fill) (ledger.Trade, error) {
	req := broker.OrderRequest{
		Symbol:        l.symbol,
		Side:          side,
		Type:          broker.OrderMarket,
		Quantity:      f.trade.Quantity,
		TimeInForce:   broker.GTC,
		ClientOrderID: uuid.NewString(),
	}
	ack, err := l.exchange.PlaceOrder(ctx, req)
	if err != nil && ctx.Err() != nil {
		l.log.Error("order outcome unknown",
			zap.String("side", string(side)),
			zap.String("client_order_id", req.ClientOrderID),
			zap.Error(err),
		)
		return ledger.Trade{}, fmt.Errorf("%w: %w", ErrOrderUnconfirmed, err)
	}
	if err != nil {
		l.log.Warn("order not placed",
			zap.String("side", string(side)),
			zap.String("client_order_id", req.ClientOrderID),
			zap.Error(err),
		)
		return ledger.Trade{}, fmt.Errorf("%w: %v", broker.ErrCollaboratorUnavailable, err)
	}
	f.trade.OrderID = ack.OrderID
	return l.sim.commit(f), nil
}
