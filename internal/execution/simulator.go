package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"momentum/internal/ledger"
	"momentum/internal/state"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPositionOpen        = errors.New("position already open")
	ErrInvalidFraction     = errors.New("sell fraction must be in (0, 1]")
	ErrInvalidPrice        = errors.New("price must be positive")
)

// Executor fills entries and exits. Every successful call appends exactly
// one trade to the ledger; a rejection leaves balances and position as
// they were.
type Executor interface {
	Buy(ctx context.Context, price, notional decimal.Decimal, at time.Time) (ledger.Trade, error)
	Sell(ctx context.Context, price, fraction decimal.Decimal, at time.Time, reason ledger.Reason) (ledger.Trade, error)
}

type Params struct {
	MakerFee decimal.Decimal
	TakerFee decimal.Decimal
	// DustNotional closes a partially exited position whose remaining value
	// at the exit price falls below it.
	DustNotional decimal.Decimal
	// QuantityPrecision is the number of decimal places kept on base
	// quantities.
	QuantityPrecision int32
	// Label is recorded on every trade as its sizing strategy.
	Label string
}

// Book is the mutable trading state owned by one engine instance.
type Book struct {
	Account  state.Account
	Position state.Position
	Ledger   *ledger.Ledger
}

func NewBook(account state.Account, position state.Position) *Book {
	if account.DailyTrades == nil {
		account.DailyTrades = map[string]int{}
	}
	if position.Status == "" {
		position.Status = state.StatusNone
	}
	return &Book{Account: account, Position: position, Ledger: ledger.New()}
}

// fill is a fully computed trade that has not touched the book yet.
type fill struct {
	trade    ledger.Trade
	account  state.Account
	position state.Position
}

// Simulator executes against the in-memory book at the given price.
type Simulator struct {
	params Params
	book   *Book
	log    *zap.Logger
}

func NewSimulator(params Params, book *Book, log *zap.Logger) *Simulator {
	if log == nil {
		log = zap.NewNop()
	}
	if params.QuantityPrecision <= 0 {
		params.QuantityPrecision = 12
	}
	return &Simulator{params: params, book: book, log: log}
}

func (s *Simulator) Book() *Book {
	return s.book
}

func (s *Simulator) Buy(_ context.Context, price, notional decimal.Decimal, at time.Time) (ledger.Trade, error) {
	f, err := s.planBuy(price, notional, at)
	if err != nil {
		s.log.Info("buy rejected", zap.String("price", price.String()), zap.String("notional", notional.String()), zap.Error(err))
		return ledger.Trade{}, err
	}
	return s.commit(f), nil
}

func (s *Simulator) Sell(_ context.Context, price, fraction decimal.Decimal, at time.Time, reason ledger.Reason) (ledger.Trade, error) {
	f, err := s.planSell(price, fraction, at, reason)
	if err != nil {
		s.log.Info("sell rejected", zap.String("price", price.String()), zap.String("reason", string(reason)), zap.Error(err))
		return ledger.Trade{}, err
	}
	return s.commit(f), nil
}

func (s *Simulator) planBuy(price, notional decimal.Decimal, at time.Time) (fill, error) {
	if !price.IsPositive() {
		return fill{}, ErrInvalidPrice
	}
	if s.book.Position.IsOpen() {
		return fill{}, ErrPositionOpen
	}
	if !notional.IsPositive() {
		return fill{}, fmt.Errorf("%w: notional %s", ErrInsufficientBalance, notional.String())
	}

	qty := notional.DivRound(price, s.params.QuantityPrecision+4).Truncate(s.params.QuantityPrecision)
	if qty.LessThanOrEqual(state.DustEpsilon) {
		return fill{}, fmt.Errorf("%w: quantity %s too small", ErrInsufficientBalance, qty.String())
	}
	cost := qty.Mul(price)
	fee := cost.Mul(s.params.MakerFee)
	total := cost.Add(fee)
	if s.book.Account.Quote.LessThan(total) {
		return fill{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientBalance,
			total.StringFixed(2), s.book.Account.Quote.StringFixed(2))
	}

	account := s.book.Account.Clone()
	account.Quote = account.Quote.Sub(total)
	account.Base = account.Base.Add(qty)
	account.DailyTrades[state.DateKey(at)]++

	return fill{
		trade: ledger.Trade{
			Time:           at,
			Side:           ledger.Buy,
			Price:          price,
			Quantity:       qty,
			Notional:       cost,
			Fee:            fee,
			NetAmount:      total,
			Reason:         ledger.ReasonMomentumUp,
			SizingStrategy: s.params.Label,
		},
		account: account,
		position: state.Position{
			EntryPrice: price,
			EntryTime:  at,
			Quantity:   qty,
			Status:     state.StatusOpen,
		},
	}, nil
}

func (s *Simulator) planSell(price, fraction decimal.Decimal, at time.Time, reason ledger.Reason) (fill, error) {
	if !price.IsPositive() {
		return fill{}, ErrInvalidPrice
	}
	if !fraction.IsPositive() || fraction.GreaterThan(decimal.NewFromInt(1)) {
		return fill{}, fmt.Errorf("%w: %s", ErrInvalidFraction, fraction.String())
	}
	base := s.book.Account.Base
	if base.LessThanOrEqual(state.DustEpsilon) {
		return fill{}, fmt.Errorf("%w: no base balance to sell", ErrInsufficientBalance)
	}

	full := fraction.Equal(decimal.NewFromInt(1))
	sold := base
	if !full {
		sold = base.Mul(fraction).Truncate(s.params.QuantityPrecision)
		if sold.LessThanOrEqual(state.DustEpsilon) {
			return fill{}, fmt.Errorf("%w: quantity %s too small", ErrInsufficientBalance, sold.String())
		}
	}

	gross := sold.Mul(price)
	fee := gross.Mul(s.params.TakerFee)
	net := gross.Sub(fee)

	trade := ledger.Trade{
		Time:           at,
		Side:           ledger.Sell,
		Price:          price,
		Quantity:       sold,
		Notional:       gross,
		Fee:            fee,
		NetAmount:      net,
		Reason:         reason,
		SizingStrategy: s.params.Label,
	}
	position := s.book.Position
	if position.IsOpen() && position.EntryPrice.IsPositive() {
		cost := position.EntryPrice.Mul(sold)
		trade.RealizedPnL = net.Sub(cost)
		trade.RealizedPnLPct = trade.RealizedPnL.Div(cost).InexactFloat64() * 100
	}

	account := s.book.Account.Clone()
	account.Quote = account.Quote.Add(net)
	account.Base = account.Base.Sub(sold)
	account.DailyTrades[state.DateKey(at)]++

	residual := account.Base
	if full || residual.LessThanOrEqual(state.DustEpsilon) || residual.Mul(price).LessThan(s.params.DustNotional) {
		position = state.Position{Status: state.StatusNone}
	} else {
		position.Quantity = residual
	}

	return fill{trade: trade, account: account, position: position}, nil
}

func (s *Simulator) commit(f fill) ledger.Trade {
	s.book.Account = f.account
	s.book.Position = f.position
	trade := s.book.Ledger.Append(f.trade)
	s.log.Info("trade filled",
		zap.Int("seq", trade.Seq),
		zap.String("side", string(trade.Side)),
		zap.String("reason", string(trade.Reason)),
		zap.String("price", trade.Price.String()),
		zap.String("qty", trade.Quantity.String()),
		zap.String("fee", trade.Fee.StringFixed(4)),
		zap.String("quote", f.account.Quote.StringFixed(2)),
		zap.String("base", f.account.Base.String()),
	)
	return trade
}
