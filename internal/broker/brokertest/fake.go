// Package brokertest provides an in-memory broker.Exchange for tests.
package brokertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"momentum/internal/broker"
	"momentum/internal/md"

	"github.com/shopspring/decimal"
)

var ErrDown = errors.New("fake exchange down")

type Exchange struct {
	mu       sync.Mutex
	Price    decimal.Decimal
	Points   []md.PricePoint
	Balances map[string]broker.Balance
	Orders   []broker.OrderRequest
	Canceled []string
	// Fail makes every call return ErrDown.
	Fail bool
	// Stall makes PlaceOrder record the order and then block until ctx
	// expires, like a request that times out after reaching the exchange.
	Stall bool
	seq   int
}

func New() *Exchange {
	return &Exchange{Balances: map[string]broker.Balance{}}
}

func (e *Exchange) SetFail(fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Fail = fail
}

func (e *Exchange) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return decimal.Zero, err
	}
	return e.Price, nil
}

func (e *Exchange) Candles(ctx context.Context, symbol string, interval time.Duration, limit int) ([]md.PricePoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return nil, err
	}
	points := e.Points
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	out := make([]md.PricePoint, len(points))
	copy(out, points)
	return out, nil
}

func (e *Exchange) Balance(ctx context.Context, asset string) (broker.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return broker.Balance{}, err
	}
	return e.Balances[asset], nil
}

func (e *Exchange) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	e.mu.Lock()
	if err := e.check(ctx); err != nil {
		e.mu.Unlock()
		return broker.OrderAck{}, err
	}
	e.seq++
	e.Orders = append(e.Orders, req)
	ack := broker.OrderAck{OrderID: fmt.Sprintf("order-%d", e.seq), Status: "filled"}
	stall := e.Stall
	e.mu.Unlock()

	if stall {
		<-ctx.Done()
		return broker.OrderAck{}, fmt.Errorf("%w: %v", broker.ErrCollaboratorUnavailable, ctx.Err())
	}
	return ack, nil
}

func (e *Exchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return err
	}
	e.Canceled = append(e.Canceled, orderID)
	return nil
}

func (e *Exchange) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", broker.ErrCollaboratorUnavailable, err)
	}
	if e.Fail {
		return fmt.Errorf("%w: %v", broker.ErrCollaboratorUnavailable, ErrDown)
	}
	return nil
}
