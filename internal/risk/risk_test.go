package risk

import (
	"errors"
	"testing"
	"time"

	"momentum/internal/ledger"
	"momentum/internal/strategy"

	"github.com/shopspring/decimal"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func openContext(held time.Duration) RiskContext {
	return RiskContext{
		Now:             now,
		MaxTradesPerDay: 10,
		PositionOpen:    true,
		EntryTime:       now.Add(-held),
		MinHold:         30 * time.Minute,
		Quote:           decimal.NewFromInt(1800),
		MinNotional:     decimal.NewFromInt(20),
	}
}

func TestGateRejectsDailyCap(t *testing.T) {
	ctx := RiskContext{
		Now:             now,
		TradesToday:     10,
		MaxTradesPerDay: 10,
		Quote:           decimal.NewFromInt(2000),
		MinNotional:     decimal.NewFromInt(20),
	}
	intent := strategy.TradeIntent{Action: strategy.Buy, Reason: ledger.ReasonMomentumUp}
	if _, err := (Gate{}).Evaluate(intent, ctx); !errors.Is(err, ErrDailyCapReached) {
		t.Fatalf("expected daily cap rejection, got %v", err)
	}
}

func TestGateDailyCapAppliesToEmergencyExit(t *testing.T) {
	ctx := openContext(time.Hour)
	ctx.TradesToday = 10
	intent := strategy.TradeIntent{Action: strategy.Sell, Reason: ledger.ReasonEmergencyExit}
	if _, err := (Gate{}).Evaluate(intent, ctx); !errors.Is(err, ErrDailyCapReached) {
		t.Fatalf("expected daily cap rejection, got %v", err)
	}
}

func TestGateRejectsMinHold(t *testing.T) {
	for _, reason := range []ledger.Reason{ledger.ReasonTakeProfit, ledger.ReasonMomentumDown} {
		intent := strategy.TradeIntent{Action: strategy.Sell, Reason: reason}
		if _, err := (Gate{}).Evaluate(intent, openContext(10*time.Minute)); !errors.Is(err, ErrMinHoldNotMet) {
			t.Fatalf("%s: expected min hold rejection, got %v", reason, err)
		}
	}
}

func TestGateEmergencyBypassesMinHold(t *testing.T) {
	intent := strategy.TradeIntent{Action: strategy.Sell, Reason: ledger.ReasonEmergencyExit}
	if _, err := (Gate{}).Evaluate(intent, openContext(time.Minute)); err != nil {
		t.Fatalf("expected approval, got %v", err)
	}
}

func TestGateApprovesExitAfterMinHold(t *testing.T) {
	intent := strategy.TradeIntent{Action: strategy.Sell, Reason: ledger.ReasonMomentumDown}
	if _, err := (Gate{}).Evaluate(intent, openContext(30*time.Minute)); err != nil {
		t.Fatalf("expected approval, got %v", err)
	}
}

func TestGateRejectsEntryWithLowBalance(t *testing.T) {
	ctx := RiskContext{
		Now:             now,
		MaxTradesPerDay: 10,
		Quote:           decimal.NewFromInt(10),
		MinNotional:     decimal.NewFromInt(20),
	}
	intent := strategy.TradeIntent{Action: strategy.Buy, Reason: ledger.ReasonMomentumUp}
	if _, err := (Gate{}).Evaluate(intent, ctx); !errors.Is(err, ErrBelowMinBalance) {
		t.Fatalf("expected balance rejection, got %v", err)
	}
}

func TestGatePassesHold(t *testing.T) {
	ctx := RiskContext{TradesToday: 99, MaxTradesPerDay: 1}
	approved, err := (Gate{}).Evaluate(strategy.TradeIntent{Action: strategy.Hold}, ctx)
	if err != nil || approved.Reason != "hold" {
		t.Fatalf("expected hold approval, got %+v %v", approved, err)
	}
}
