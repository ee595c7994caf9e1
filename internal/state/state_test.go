package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSnapshotRoundTripThroughCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	entry := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	snapshot := Snapshot{
		Account: Account{
			Quote:       decimal.RequireFromString("1799.5"),
			Base:        decimal.RequireFromString("1.986097318768619662"),
			DailyTrades: map[string]int{"2024-05-02": 1},
		},
		Position: Position{
			EntryPrice: decimal.RequireFromString("100.7"),
			EntryTime:  entry,
			Quantity:   decimal.RequireFromString("1.986097318768619662"),
			Status:     StatusOpen,
		},
		LastTick: entry,
	}

	if err := Save(path, snapshot); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Account.Quote.Equal(snapshot.Account.Quote) || !loaded.Account.Base.Equal(snapshot.Account.Base) {
		t.Fatalf("balances changed across checkpoint: %+v", loaded.Account)
	}
	if !loaded.Position.IsOpen() || !loaded.Position.EntryTime.Equal(entry) {
		t.Fatalf("position changed across checkpoint: %+v", loaded.Position)
	}
	if loaded.Account.TradesOn(entry) != 1 {
		t.Fatalf("expected 1 trade on %s, got %d", DateKey(entry), loaded.Account.TradesOn(entry))
	}
}

func TestLoadMissingCheckpoint(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing checkpoint")
	}
}

func TestCloneDoesNotShareDailyTrades(t *testing.T) {
	account := NewAccount(decimal.NewFromInt(100), decimal.Zero)
	account.DailyTrades["2024-01-01"] = 2
	clone := account.Clone()
	clone.DailyTrades["2024-01-01"] = 9
	if account.DailyTrades["2024-01-01"] != 2 {
		t.Fatalf("clone mutated original daily trades")
	}
}
