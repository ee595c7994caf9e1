package advisor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const defaultOllamaURL = "http://localhost:11434"

// Ollama talks to the /api/chat endpoint of an Ollama server.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
	log     *zap.Logger
}

func NewOllama(baseURL, model string, log *zap.Logger) *Ollama {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ollama{baseURL: baseURL, model: model, client: &http.Client{}, log: log}
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolName  string           `json:"tool_name,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaTool struct {
	Type     string   `json:"type"`
	Function ToolSpec `json:"function"`
}

type ollamaResponse struct {
	Model      string        `json:"model"`
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason,omitempty"`
}

func (o *Ollama) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body := ollamaRequest{Model: o.model, Stream: false}
	for _, m := range req.Messages {
		om := ollamaMessage{Role: string(m.Role), Content: m.Content, ToolName: m.ToolName}
		for _, tc := range m.ToolCalls {
			var call ollamaToolCall
			call.ID = tc.ID
			call.Function.Name = tc.Name
			call.Function.Arguments = tc.Arguments
			om.ToolCalls = append(om.ToolCalls, call)
		}
		body.Messages = append(body.Messages, om)
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, ollamaTool{Type: "function", Function: t})
	}
	if req.Temperature != 0 {
		body.Options = map[string]any{"temperature": req.Temperature}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ChatResponse{}, fmt.Errorf("ollama error %d: %s", resp.StatusCode, string(text))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ChatResponse{}, fmt.Errorf("decode response: %w", err)
	}

	msg := Message{Role: Role(out.Message.Role), Content: out.Message.Content}
	for _, tc := range out.Message.ToolCalls {
		args := tc.Function.Arguments
		// Arguments arrive either as an object or as a string holding one.
		var encoded string
		if err := json.Unmarshal(args, &encoded); err == nil {
			args = json.RawMessage(encoded)
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	o.log.Debug("ollama reply",
		zap.String("model", out.Model),
		zap.Int("tool_calls", len(msg.ToolCalls)),
		zap.String("done_reason", out.DoneReason),
	)
	return ChatResponse{Message: msg, FinishReason: out.DoneReason}, nil
}
