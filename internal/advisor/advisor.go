// Package advisor asks a chat model for a trade idea and turns it into the
// hint consumed by signal quality sizing.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"momentum/internal/signal"
	"momentum/internal/sizing"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const ideaTool = "submit_trade_idea"

var (
	ErrNoIdea       = errors.New("advisor returned no trade idea")
	ErrRejectedIdea = errors.New("trade idea rejected")
)

type Options struct {
	Symbol         string
	MomentumPeriod int
	BuyThreshold   float64
	TakeProfitPct  float64

	// PromptPath overrides the embedded prompt template.
	PromptPath    string
	Context       string
	Temperature   float64
	MaxIterations int
	Timeout       time.Duration

	MaxRisk           int
	EntryTolerancePct float64
	MinUpsidePct      float64
	MinDownsidePct    float64
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 3
	}
	if o.MaxRisk <= 0 {
		o.MaxRisk = 8
	}
	if o.EntryTolerancePct <= 0 {
		o.EntryTolerancePct = 3
	}
	if o.MinUpsidePct <= 0 {
		o.MinUpsidePct = 1
	}
	if o.MinDownsidePct <= 0 {
		o.MinDownsidePct = 2
	}
	return o
}

type Advisor struct {
	provider Provider
	opts     Options
	prompt   string
	log      *zap.Logger
}

func New(provider Provider, opts Options, log *zap.Logger) *Advisor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Advisor{
		provider: provider,
		opts:     opts.withDefaults(),
		prompt:   LoadTemplate(opts.PromptPath, defaultPrompt),
		log:      log,
	}
}

type tradeIdea struct {
	Action            string  `json:"action"`
	EntryPrice        float64 `json:"entry_price"`
	TargetPrice       float64 `json:"target_price"`
	StopLoss          float64 `json:"stop_loss"`
	Risk              int     `json:"risk"`
	ExpectedChangePct float64 `json:"expected_change_pct"`
	Reasoning         string  `json:"reasoning,omitempty"`
}

func (t tradeIdea) check() error {
	switch t.Action {
	case "hold":
		return nil
	case "buy":
	default:
		return fmt.Errorf("action must be buy or hold, got %q", t.Action)
	}
	if t.EntryPrice <= 0 || t.TargetPrice <= 0 || t.StopLoss <= 0 {
		return errors.New("entry_price, target_price and stop_loss must be positive")
	}
	if t.Risk < 1 || t.Risk > 10 {
		return fmt.Errorf("risk must be between 1 and 10, got %d", t.Risk)
	}
	if !(t.StopLoss < t.EntryPrice && t.EntryPrice < t.TargetPrice) {
		return errors.New("a long idea needs stop_loss < entry_price < target_price")
	}
	return nil
}

func ideaSpec() ToolSpec {
	number := func(desc string) map[string]any { return map[string]any{"type": "number", "description": desc} }
	return ToolSpec{
		Name:        ideaTool,
		Description: "Submit one long trade idea for the pair, or action hold.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action":              map[string]any{"type": "string", "enum": []string{"buy", "hold"}},
				"entry_price":         number("suggested entry price"),
				"target_price":        number("price target"),
				"stop_loss":           number("stop loss price"),
				"risk":                map[string]any{"type": "integer", "description": "risk from 1 to 10"},
				"expected_change_pct": number("expected move in percent"),
				"reasoning":           map[string]any{"type": "string"},
			},
			"required": []string{"action", "entry_price", "target_price", "stop_loss", "risk", "expected_change_pct"},
		},
	}
}

// Advise returns a hint for the next entry. A hold answer yields a nil hint
// and no error. Ideas that do not fit the current price fail with
// ErrRejectedIdea.
func (a *Advisor) Advise(ctx context.Context, at time.Time, sig signal.Signals) (*sizing.AISignal, error) {
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	prompt, err := RenderPrompt(a.prompt, PromptData{
		Symbol:          a.opts.Symbol,
		Timestamp:       at.UTC().Format(time.RFC3339),
		Price:           sig.Price,
		MomentumPct:     sig.Momentum * 100,
		MomentumPeriod:  a.opts.MomentumPeriod,
		TrendPct:        sig.Trend * 100,
		DayChangePct:    sig.DayChangePct,
		VolatilityPct:   sig.Volatility * 100,
		BuyThresholdPct: a.opts.BuyThreshold * 100,
		TakeProfitPct:   a.opts.TakeProfitPct * 100,
		Context:         strings.TrimSpace(a.opts.Context),
	})
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	messages := []Message{
		{Role: RoleSystem, Content: defaultSystemPrompt},
		{Role: RoleUser, Content: prompt},
	}
	tools := []ToolSpec{ideaSpec()}

	for i := 0; i < a.opts.MaxIterations; i++ {
		resp, err := a.provider.Chat(ctx, ChatRequest{Messages: messages, Tools: tools, Temperature: a.opts.Temperature})
		if err != nil {
			return nil, fmt.Errorf("advisor chat: %w", err)
		}

		if len(resp.Message.ToolCalls) == 0 {
			if idea, ok := parseContent(resp.Message.Content); ok && idea.check() == nil {
				return a.accept(idea, sig)
			}
			messages = append(messages, resp.Message, Message{
				Role:    RoleUser,
				Content: "Answer by calling " + ideaTool + ".",
			})
			continue
		}

		messages = append(messages, resp.Message)
		for _, call := range resp.Message.ToolCalls {
			if call.Name != ideaTool {
				messages = append(messages, toolError(call.Name, fmt.Errorf("unknown tool: %s", call.Name)))
				continue
			}
			var idea tradeIdea
			if err := json.Unmarshal(call.Arguments, &idea); err != nil {
				messages = append(messages, toolError(call.Name, fmt.Errorf("invalid arguments: %w", err)))
				continue
			}
			if err := idea.check(); err != nil {
				messages = append(messages, toolError(call.Name, err))
				continue
			}
			return a.accept(idea, sig)
		}
	}
	return nil, ErrNoIdea
}

func (a *Advisor) accept(idea tradeIdea, sig signal.Signals) (*sizing.AISignal, error) {
	if idea.Action == "hold" {
		a.log.Info("advisor suggests holding", zap.String("reasoning", idea.Reasoning))
		return nil, nil
	}

	price := sig.Price
	if idea.Risk > a.opts.MaxRisk {
		return nil, fmt.Errorf("%w: risk %d above %d", ErrRejectedIdea, idea.Risk, a.opts.MaxRisk)
	}
	if price > 0 {
		entryDiff := math.Abs(price-idea.EntryPrice) / idea.EntryPrice * 100
		upside := (idea.TargetPrice - price) / price * 100
		downside := (price - idea.StopLoss) / price * 100
		switch {
		case entryDiff > a.opts.EntryTolerancePct:
			return nil, fmt.Errorf("%w: price %.2f%% away from entry", ErrRejectedIdea, entryDiff)
		case upside <= a.opts.MinUpsidePct:
			return nil, fmt.Errorf("%w: upside %.2f%%", ErrRejectedIdea, upside)
		case downside <= a.opts.MinDownsidePct:
			return nil, fmt.Errorf("%w: stop %.2f%% below price", ErrRejectedIdea, downside)
		}
	}

	a.log.Info("advisor trade idea accepted",
		zap.Float64("entry", idea.EntryPrice),
		zap.Float64("target", idea.TargetPrice),
		zap.Float64("stop", idea.StopLoss),
		zap.Int("risk", idea.Risk),
		zap.Float64("expected_change_pct", idea.ExpectedChangePct),
	)
	return &sizing.AISignal{
		EntryPrice:        idea.EntryPrice,
		TargetPrice:       idea.TargetPrice,
		StopPrice:         idea.StopLoss,
		Risk:              idea.Risk,
		ExpectedChangePct: idea.ExpectedChangePct,
	}, nil
}

func toolError(name string, err error) Message {
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	return Message{Role: RoleTool, ToolName: name, Content: string(payload)}
}

// parseContent accepts an idea written as plain JSON, optionally fenced.
func parseContent(content string) (tradeIdea, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return tradeIdea{}, false
	}
	var idea tradeIdea
	if err := json.Unmarshal([]byte(content[start:end+1]), &idea); err != nil {
		return tradeIdea{}, false
	}
	return idea, true
}
