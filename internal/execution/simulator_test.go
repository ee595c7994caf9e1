package execution

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"momentum/internal/broker"
	"momentum/internal/broker/brokertest"
	"momentum/internal/ledger"
	"momentum/internal/state"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newSim(quote string) *Simulator {
	book := NewBook(state.NewAccount(d(quote), decimal.Zero), state.Position{})
	return NewSimulator(Params{
		MakerFee:     d("0.0025"),
		TakerFee:     d("0.003"),
		DustNotional: d("20"),
	}, book, nil)
}

func TestBuyDebitsNotionalAndFee(t *testing.T) {
	sim := newSim("2000")
	trade, err := sim.Buy(context.Background(), d("100.7"), d("200"), t0)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if math.Abs(trade.Quantity.InexactFloat64()-1.9861) > 1e-4 {
		t.Fatalf("expected qty ~1.9861, got %s", trade.Quantity)
	}
	if math.Abs(trade.Fee.InexactFloat64()-0.5) > 1e-9 {
		t.Fatalf("expected fee 0.5, got %s", trade.Fee)
	}
	book := sim.Book()
	if math.Abs(book.Account.Quote.InexactFloat64()-1799.5) > 1e-9 {
		t.Fatalf("expected quote 1799.5, got %s", book.Account.Quote)
	}
	if !book.Position.IsOpen() || !book.Position.EntryPrice.Equal(d("100.7")) {
		t.Fatalf("expected open position at 100.7, got %+v", book.Position)
	}
	if book.Account.TradesOn(t0) != 1 {
		t.Fatalf("expected one trade today, got %d", book.Account.TradesOn(t0))
	}
	if trade.Seq != 1 || book.Ledger.Len() != 1 {
		t.Fatalf("expected first ledger entry, got seq %d len %d", trade.Seq, book.Ledger.Len())
	}
}

func TestTradesConserveValueNetOfFees(t *testing.T) {
	sim := newSim("2000")
	book := sim.Book()
	steps := []struct {
		buy   bool
		price string
	}{
		{buy: true, price: "100.7"},
		{buy: false, price: "103.3"},
		{buy: true, price: "99.13"},
		{buy: false, price: "97.01"},
	}
	for i, step := range steps {
		price := d(step.price)
		before := book.Account.Value(price)
		var (
			trade ledger.Trade
			err   error
		)
		if step.buy {
			trade, err = sim.Buy(context.Background(), price, d("333.33"), t0.Add(time.Duration(i)*time.Hour))
		} else {
			trade, err = sim.Sell(context.Background(), price, decimal.NewFromInt(1), t0.Add(time.Duration(i)*time.Hour), ledger.ReasonMomentumDown)
		}
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if trade.Fee.IsNegative() {
			t.Fatalf("step %d: negative fee %s", i, trade.Fee)
		}
		after := book.Account.Value(price)
		if !before.Sub(trade.Fee).Equal(after) {
			t.Fatalf("step %d: value %s -> %s, fee %s", i, before, after, trade.Fee)
		}
	}
	if !book.Account.Base.IsZero() {
		t.Fatalf("expected clean exit, base %s", book.Account.Base)
	}
}

func TestSellRealizesPnL(t *testing.T) {
	sim := newSim("2000")
	if _, err := sim.Buy(context.Background(), d("100"), d("200"), t0); err != nil {
		t.Fatalf("buy: %v", err)
	}
	trade, err := sim.Sell(context.Background(), d("110"), decimal.NewFromInt(1), t0.Add(time.Hour), ledger.ReasonTakeProfit)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	// 2 units: gross 220, fee 0.66, cost 200.
	if !trade.RealizedPnL.Equal(d("19.34")) {
		t.Fatalf("expected pnl 19.34, got %s", trade.RealizedPnL)
	}
	if math.Abs(trade.RealizedPnLPct-9.67) > 1e-9 {
		t.Fatalf("expected pnl pct 9.67, got %v", trade.RealizedPnLPct)
	}
	if sim.Book().Position.IsOpen() {
		t.Fatalf("expected flat after full exit")
	}
}

func TestPartialExitKeepsPositionOpen(t *testing.T) {
	sim := newSim("2000")
	if _, err := sim.Buy(context.Background(), d("100"), d("1000"), t0); err != nil {
		t.Fatalf("buy: %v", err)
	}
	trade, err := sim.Sell(context.Background(), d("100"), d("0.5"), t0.Add(time.Hour), ledger.ReasonTakeProfit)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if !trade.Quantity.Equal(d("5")) {
		t.Fatalf("expected 5 sold, got %s", trade.Quantity)
	}
	pos := sim.Book().Position
	if !pos.IsOpen() || !pos.Quantity.Equal(d("5")) {
		t.Fatalf("expected open position with 5 left, got %+v", pos)
	}
}

func TestPartialExitClosesDustPosition(t *testing.T) {
	sim := newSim("2000")
	if _, err := sim.Buy(context.Background(), d("100"), d("200"), t0); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := sim.Sell(context.Background(), d("100"), d("0.99"), t0.Add(time.Hour), ledger.ReasonMomentumDown); err != nil {
		t.Fatalf("sell: %v", err)
	}
	book := sim.Book()
	if book.Position.IsOpen() {
		t.Fatalf("expected dust residual to close the position")
	}
	if !book.Account.Base.Equal(d("0.02")) {
		t.Fatalf("expected 0.02 dust kept, got %s", book.Account.Base)
	}
}

func TestRejectionsLeaveBookUntouched(t *testing.T) {
	sim := newSim("100")
	book := sim.Book()

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{
			name: "buy above balance",
			run: func() error {
				_, err := sim.Buy(context.Background(), d("10"), d("100"), t0)
				return err
			},
			want: ErrInsufficientBalance,
		},
		{
			name: "sell without base",
			run: func() error {
				_, err := sim.Sell(context.Background(), d("10"), decimal.NewFromInt(1), t0, ledger.ReasonMomentumDown)
				return err
			},
			want: ErrInsufficientBalance,
		},
		{
			name: "fraction above one",
			run: func() error {
				_, err := sim.Sell(context.Background(), d("10"), d("1.5"), t0, ledger.ReasonMomentumDown)
				return err
			},
			want: ErrInvalidFraction,
		},
		{
			name: "zero price",
			run: func() error {
				_, err := sim.Buy(context.Background(), decimal.Zero, d("10"), t0)
				return err
			},
			want: ErrInvalidPrice,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !book.Account.Quote.Equal(d("100")) || !book.Account.Base.IsZero() {
				t.Fatalf("balances changed: %+v", book.Account)
			}
			if book.Ledger.Len() != 0 || book.Account.TradesOn(t0) != 0 {
				t.Fatalf("rejection recorded a trade")
			}
		})
	}
}

func TestBuyRejectsWhileOpen(t *testing.T) {
	sim := newSim("2000")
	if _, err := sim.Buy(context.Background(), d("100"), d("200"), t0); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := sim.Buy(context.Background(), d("100"), d("200"), t0); !errors.Is(err, ErrPositionOpen) {
		t.Fatalf("expected ErrPositionOpen, got %v", err)
	}
}

func TestLiveRecordsOrderID(t *testing.T) {
	sim := newSim("2000")
	exchange := brokertest.New()
	live := NewLive(sim, exchange, "XRP/USD", nil)

	trade, err := live.Buy(context.Background(), d("100"), d("200"), t0)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if trade.OrderID != "order-1" {
		t.Fatalf("expected order id order-1, got %q", trade.OrderID)
	}
	if len(exchange.Orders) != 1 {
		t.Fatalf("expected one order, got %d", len(exchange.Orders))
	}
	order := exchange.Orders[0]
	if order.Side != broker.SideBuy || order.Type != broker.OrderMarket || !order.Quantity.Equal(d("2")) {
		t.Fatalf("unexpected order %+v", order)
	}
	if order.ClientOrderID == "" {
		t.Fatalf("expected client order id")
	}
}

func TestLiveExchangeFailureCommitsNothing(t *testing.T) {
	sim := newSim("2000")
	exchange := brokertest.New()
	exchange.SetFail(true)
	live := NewLive(sim, exchange, "XRP/USD", nil)

	_, err := live.Buy(context.Background(), d("100"), d("200"), t0)
	if !errors.Is(err, broker.ErrCollaboratorUnavailable) {
		t.Fatalf("expected ErrCollaboratorUnavailable, got %v", err)
	}
	book := sim.Book()
	if book.Position.IsOpen() || !book.Account.Quote.Equal(d("2000")) || book.Ledger.Len() != 0 {
		t.Fatalf("book mutated on failed order: %+v", book.Account)
	}
}
