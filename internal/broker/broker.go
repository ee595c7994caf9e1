package broker

import (
	"context"
	"errors"
	"time"

	"momentum/internal/md"

	"github.com/shopspring/decimal"
)

// ErrCollaboratorUnavailable marks a failed or timed out exchange call.
// Callers skip the tick and try again on the next one.
var ErrCollaboratorUnavailable = errors.New("exchange unavailable")

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

type TimeInForce string

const (
	GTC TimeInForce = "gtc"
	IOC TimeInForce = "ioc"
)

// OrderRequest enumerates every order field the engine may set.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      decimal.Decimal
	Price         *decimal.Decimal
	TimeInForce   TimeInForce
	ClientOrderID string
}

type OrderAck struct {
	OrderID string
	Status  string
}

type Balance struct {
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Exchange is the market data and order capability the engine consumes.
type Exchange interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	Candles(ctx context.Context, symbol string, interval time.Duration, limit int) ([]md.PricePoint, error)
	Balance(ctx context.Context, asset string) (Balance, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

func WaitForContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
