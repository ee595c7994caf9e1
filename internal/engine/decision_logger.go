package engine

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"momentum/internal/ledger"
	"momentum/internal/strategy"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type Decision struct {
	RunID        string          `json:"run_id"`
	Timestamp    time.Time       `json:"timestamp"`
	TickTime     time.Time       `json:"tick_time"`
	Symbol       string          `json:"symbol"`
	Price        float64         `json:"price"`
	SMA          float64         `json:"sma"`
	Momentum     float64         `json:"momentum"`
	Trend        float64         `json:"trend"`
	Volatility   float64         `json:"volatility"`
	Intent       strategy.Action `json:"intent"`
	Reason       ledger.Reason   `json:"reason,omitempty"`
	Detail       string          `json:"detail,omitempty"`
	Result       string          `json:"result"`
	RejectReason string          `json:"reject_reason,omitempty"`
	Notional     string          `json:"notional,omitempty"`
	TradeSeq     int             `json:"trade_seq,omitempty"`
	OrderID      string          `json:"order_id,omitempty"`
	Quote        string          `json:"quote"`
	Base         string          `json:"base"`
}

// DecisionLogger appends one JSON line per tick.
type DecisionLogger struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	now    func() time.Time
	mu     sync.Mutex
}

func NewDecisionLogger(path string) (*DecisionLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &DecisionLogger{
		runID:  uuid.NewString(),
		file:   file,
		writer: bufio.NewWriter(file),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (d *DecisionLogger) RunID() string {
	return d.runID
}

func (d *DecisionLogger) Append(decision Decision) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	decision.RunID = d.runID
	decision.Timestamp = d.now()
	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	if _, err := d.writer.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write decision: %w", err)
	}
	if err := d.writer.Flush(); err != nil {
		return fmt.Errorf("flush decision log: %w", err)
	}
	return nil
}

func (d *DecisionLogger) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writer.Flush(); err != nil {
		_ = d.file.Close()
		return err
	}
	return d.file.Close()
}
