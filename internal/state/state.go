package state

import (
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// DustEpsilon is the quantity below which a balance counts as empty.
var DustEpsilon = decimal.New(1, -6)

const dateLayout = "2006-01-02"

type PositionStatus string

const (
	StatusNone PositionStatus = "none"
	StatusOpen PositionStatus = "open"
)

type Position struct {
	EntryPrice decimal.Decimal `json:"entry_price"`
	EntryTime  time.Time       `json:"entry_time"`
	Quantity   decimal.Decimal `json:"quantity"`
	Status     PositionStatus  `json:"status"`
}

func (p Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// Account holds the balances of one engine instance. The executor is its
// only writer.
type Account struct {
	Quote       decimal.Decimal `json:"quote"`
	Base        decimal.Decimal `json:"base"`
	DailyTrades map[string]int  `json:"daily_trades"`
}

func NewAccount(quote, base decimal.Decimal) Account {
	return Account{Quote: quote, Base: base, DailyTrades: map[string]int{}}
}

// Value is quote + base marked at price.
func (a Account) Value(price decimal.Decimal) decimal.Decimal {
	return a.Quote.Add(a.Base.Mul(price))
}

func (a Account) TradesOn(t time.Time) int {
	return a.DailyTrades[DateKey(t)]
}

func (a Account) Clone() Account {
	clone := a
	clone.DailyTrades = make(map[string]int, len(a.DailyTrades))
	for k, v := range a.DailyTrades {
		clone.DailyTrades[k] = v
	}
	return clone
}

func DateKey(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// Snapshot is the full engine state that survives a restart.
type Snapshot struct {
	Account     Account   `json:"account"`
	Position    Position  `json:"position"`
	LastTick    time.Time `json:"last_tick"`
	LastTradeAt time.Time `json:"last_trade_at"`
}

func (s Snapshot) Clone() Snapshot {
	clone := s
	clone.Account = s.Account.Clone()
	return clone
}

func Save(path string, snapshot Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, err
	}
	if snapshot.Account.DailyTrades == nil {
		snapshot.Account.DailyTrades = map[string]int{}
	}
	if snapshot.Position.Status == "" {
		snapshot.Position.Status = StatusNone
	}
	return snapshot, nil
}
