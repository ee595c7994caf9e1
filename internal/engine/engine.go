package engine

import (
	"context"
	"errors"
	"time"

	"momentum/internal/broker"
	"momentum/internal/config"
	"momentum/internal/execution"
	"momentum/internal/ledger"
	"momentum/internal/md"
	"momentum/internal/performance"
	"momentum/internal/risk"
	"momentum/internal/signal"
	"momentum/internal/sizing"
	"momentum/internal/state"
	"momentum/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultExecTimeout = 10 * time.Second

// TickResult reports what one tick did. Trade is set only when a fill was
// committed; Rejected carries the reason a candidate transition did not
// execute.
type TickResult struct {
	Time     time.Time
	Signals  signal.Signals
	Action   strategy.Action
	Reason   ledger.Reason
	Trade    *ledger.Trade
	Rejected error
	State    state.Snapshot
}

// Engine runs one trading pair. It is not safe for concurrent use: a
// single goroutine owns it and feeds ticks in order.
type Engine struct {
	cfg       config.Config
	calc      *signal.Calculator
	strategy  strategy.Strategy
	gate      risk.Gate
	sizer     *sizing.Sizer
	executor  execution.Executor
	exchange  broker.Exchange
	book      *execution.Book
	decisions *DecisionLogger
	log       *zap.Logger

	minNotional  decimal.Decimal
	exitFraction decimal.Decimal

	observed     int
	hint         *sizing.AISignal
	lastTick     time.Time
	lastTradeAt  time.Time
	lastPrice    decimal.Decimal
	initialValue decimal.Decimal
	equity       []performance.EquitySample
}

// New builds an engine from cfg, resuming from snapshot. Fills go to the
// exchange only in live mode with a non-nil exchange; otherwise they are
// simulated. decisions may be nil.
func New(cfg config.Config, snapshot state.Snapshot, exchange broker.Exchange, decisions *DecisionLogger, log *zap.Logger) (*Engine, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("symbol", cfg.Symbol))

	sizingStrategy, err := sizing.ParseStrategy(string(cfg.Sizing))
	if err != nil {
		return nil, err
	}
	cfg.Sizing = sizingStrategy

	book := execution.NewBook(snapshot.Account, snapshot.Position)
	sim := execution.NewSimulator(execution.Params{
		MakerFee:     decimal.NewFromFloat(cfg.MakerFee),
		TakerFee:     decimal.NewFromFloat(cfg.TakerFee),
		DustNotional: decimal.NewFromFloat(cfg.DustNotional),
		Label:        string(sizingStrategy),
	}, book, log)

	var executor execution.Executor = sim
	if cfg.Mode == config.ModeLive && exchange != nil {
		executor = execution.NewLive(sim, exchange, cfg.Symbol, log)
	} else {
		exchange = nil
	}

	return &Engine{
		cfg: cfg,
		calc: signal.NewCalculator(signal.Params{
			MomentumPeriod:     cfg.MomentumPeriod,
			TrendWindow:        cfg.TrendWindow,
			VolatilityLookback: cfg.VolatilityLookback,
			PeriodsPerDay:      cfg.PeriodsPerDay,
			PeriodsPerYear:     cfg.PeriodsPerYear,
			Capacity:           cfg.WindowCapacity,
		}),
		strategy: strategy.Momentum{
			BuyThreshold:        cfg.BuyThreshold,
			SellThreshold:       cfg.SellThreshold,
			TakeProfitPct:       cfg.TakeProfitPct,
			EntryTrendFloor:     cfg.EntryTrendFloor,
			EmergencyTrendFloor: cfg.EmergencyTrendFloor,
		},
		gate: risk.Gate{Log: log},
		sizer: sizing.New(sizing.Params{
			BaseNotional:  decimal.NewFromFloat(cfg.BaseNotional),
			MinNotional:   decimal.NewFromFloat(cfg.MinNotional),
			BalanceUsage:  decimal.NewFromFloat(cfg.BalanceUsage),
			BuyThreshold:  cfg.BuyThreshold,
			SellThreshold: cfg.SellThreshold,
			TakeProfitPct: cfg.TakeProfitPct,
		}, log),
		executor:     executor,
		exchange:     exchange,
		book:         book,
		decisions:    decisions,
		log:          log,
		minNotional:  decimal.NewFromFloat(cfg.MinNotional),
		exitFraction: decimal.NewFromFloat(cfg.ExitFraction),
		lastTick:     snapshot.LastTick,
		lastTradeAt:  snapshot.LastTradeAt,
	}, nil
}

// Warmup feeds historical samples into the price window without making
// decisions. Invalid samples are skipped. It returns the number accepted.
func (e *Engine) Warmup(points []md.PricePoint) int {
	accepted := 0
	for _, point := range points {
		prev, _ := e.calc.Last()
		if err := md.Validate(point, prev); err != nil {
			e.log.Debug("warmup sample skipped", zap.Error(err))
			continue
		}
		e.calc.Observe(point)
		e.observed++
		e.lastPrice = decimal.NewFromFloat(point.Close)
		accepted++
	}
	e.log.Info("warmup complete", zap.Int("accepted", accepted), zap.Int("offered", len(points)))
	return accepted
}

// SetSignalHint supplies an external trade idea used by the signal quality
// sizing strategy. It is cleared after the next entry.
func (e *Engine) SetSignalHint(hint *sizing.AISignal) {
	e.hint = hint
}

// OnTick runs one full decision cycle for point. Only an invalid sample is
// returned as an error, and it leaves the engine untouched. Gate, sizing
// and execution rejections are reported in TickResult.Rejected.
func (e *Engine) OnTick(ctx context.Context, point md.PricePoint) (TickResult, error) {
	prev, _ := e.calc.Last()
	if err := md.Validate(point, prev); err != nil {
		e.log.Warn("tick skipped", zap.Time("time", point.Time), zap.Float64("close", point.Close), zap.Error(err))
		return TickResult{Time: point.Time, Action: strategy.Hold, Rejected: err, State: e.AccountState()}, err
	}

	sig := e.calc.Observe(point)
	e.observed++
	e.lastTick = point.Time
	price := decimal.NewFromFloat(point.Close)
	e.lastPrice = price
	if e.initialValue.IsZero() {
		e.initialValue = e.book.Account.Value(price)
	}

	result := TickResult{Time: point.Time, Signals: sig, Action: strategy.Hold}
	decision := Decision{
		TickTime:   point.Time,
		Symbol:     e.cfg.Symbol,
		Price:      point.Close,
		Momentum:   sig.Momentum,
		Trend:      sig.Trend,
		Volatility: sig.Volatility,
		Intent:     strategy.Hold,
	}
	if sma, err := e.calc.SMA(e.cfg.TrendWindow); err == nil {
		decision.SMA = sma
	}

	if e.observed < e.cfg.WarmupSamples {
		decision.Result = "warmup"
		return e.finish(result, decision), nil
	}

	intent := e.strategy.Decide(strategy.MarketSnapshot{
		Timestamp: point.Time,
		Price:     point.Close,
		Signals:   sig,
		Position:  e.book.Position,
	})
	decision.Intent = intent.Action
	decision.Reason = intent.Reason
	decision.Detail = intent.Detail

	account := e.book.Account
	tradesToday := account.TradesOn(point.Time)
	approved, err := e.gate.Evaluate(intent, risk.RiskContext{
		Now:             point.Time,
		TradesToday:     tradesToday,
		MaxTradesPerDay: e.cfg.MaxTradesPerDay,
		PositionOpen:    e.book.Position.IsOpen(),
		EntryTime:       e.book.Position.EntryTime,
		MinHold:         e.cfg.MinHold,
		Quote:           account.Quote,
		MinNotional:     e.minNotional,
	})
	if err != nil {
		result.Rejected = err
		decision.Result = "rejected"
		decision.RejectReason = err.Error()
		return e.finish(result, decision), nil
	}
	if approved.Intent.Action == strategy.Hold {
		decision.Result = "hold"
		return e.finish(result, decision), nil
	}

	// Fills run to completion even if ctx is cancelled.
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.execTimeout())
	defer cancel()

	var trade ledger.Trade
	switch approved.Intent.Action {
	case strategy.Buy:
		notional, serr := e.sizer.Size(sizing.Request{
			Strategy:    e.cfg.Sizing,
			Signals:     sig,
			Account:     account,
			TradesToday: tradesToday,
			Hint:        e.hint,
		})
		if serr != nil {
			err = serr
			break
		}
		decision.Notional = notional.StringFixed(2)
		trade, err = e.executor.Buy(execCtx, price, notional, point.Time)
		if err == nil {
			e.hint = nil
		}
	case strategy.Sell:
		trade, err = e.executor.Sell(execCtx, price, e.exitFraction, point.Time, approved.Intent.Reason)
	}

	if err != nil {
		result.Rejected = err
		decision.Result = "execution_rejected"
		if errors.Is(err, broker.ErrCollaboratorUnavailable) {
			decision.Result = "exchange_unavailable"
		}
		decision.RejectReason = err.Error()
		e.log.Info("transition not executed",
			zap.String("intent", string(approved.Intent.Action)),
			zap.String("reason", string(approved.Intent.Reason)),
			zap.Error(err),
		)
		if errors.Is(err, execution.ErrOrderUnconfirmed) {
			decision.Result = "order_unconfirmed"
			e.resync(ctx, point.Time)
		}
		return e.finish(result, decision), nil
	}

	e.lastTradeAt = trade.Time
	result.Action = approved.Intent.Action
	result.Reason = trade.Reason
	result.Trade = &trade
	decision.Result = "filled"
	decision.TradeSeq = trade.Seq
	decision.OrderID = trade.OrderID
	return e.finish(result, decision), nil
}

func (e *Engine) finish(result TickResult, decision Decision) TickResult {
	account := e.book.Account
	e.equity = append(e.equity, performance.EquitySample{
		Time:  result.Time,
		Price: e.lastPrice,
		Quote: account.Quote,
		Base:  account.Base,
		Value: account.Value(e.lastPrice),
	})
	result.State = e.AccountState()

	if e.decisions != nil {
		decision.Quote = account.Quote.StringFixed(2)
		decision.Base = account.Base.String()
		if err := e.decisions.Append(decision); err != nil {
			e.log.Error("decision log append failed", zap.Error(err))
		}
	}
	e.log.Debug("tick",
		zap.Time("time", result.Time),
		zap.Float64("momentum", result.Signals.Momentum),
		zap.Float64("trend", result.Signals.Trend),
		zap.String("result", decision.Result),
	)
	return result
}

// resync replaces the book's balances and position with the exchange's view
// after an order whose outcome is unknown. The book is kept if that fails.
func (e *Engine) resync(ctx context.Context, at time.Time) {
	if e.exchange == nil {
		return
	}
	snapshot, err := Reconcile(context.WithoutCancel(ctx), e.exchange, e.AccountState(), e.cfg.BaseAsset, e.cfg.QuoteAsset,
		e.lastPrice, decimal.NewFromFloat(e.cfg.DustNotional), at, e.execTimeout(), e.log)
	if err != nil {
		e.log.Error("resync after unconfirmed order failed", zap.Error(err))
		return
	}
	e.book.Account = snapshot.Account
	e.book.Position = snapshot.Position
}

func (e *Engine) execTimeout() time.Duration {
	if e.cfg.CallTimeout > 0 {
		return e.cfg.CallTimeout
	}
	return defaultExecTimeout
}

// Ledger returns every trade in execution order.
func (e *Engine) Ledger() []ledger.Trade {
	return e.book.Ledger.Trades()
}

// Equity returns a copy of the equity curve, one sample per accepted tick.
func (e *Engine) Equity() []performance.EquitySample {
	out := make([]performance.EquitySample, len(e.equity))
	copy(out, e.equity)
	return out
}

// Metrics recomputes the performance report from the ledger and equity
// curve, valuing the account at the last observed price.
func (e *Engine) Metrics() performance.Report {
	return performance.Analyze(performance.Input{
		Trades:         e.Ledger(),
		Equity:         e.Equity(),
		InitialValue:   e.initialValue,
		FinalValue:     e.book.Account.Value(e.lastPrice),
		PeriodsPerYear: e.cfg.PeriodsPerYear,
		RiskFreeRate:   e.cfg.RiskFreeRate,
	})
}

// AccountState returns a copy of the persisted engine state.
func (e *Engine) AccountState() state.Snapshot {
	return state.Snapshot{
		Account:     e.book.Account,
		Position:    e.book.Position,
		LastTick:    e.lastTick,
		LastTradeAt: e.lastTradeAt,
	}.Clone()
}

// LastPrice is the close of the most recent accepted sample.
func (e *Engine) LastPrice() decimal.Decimal {
	return e.lastPrice
}
