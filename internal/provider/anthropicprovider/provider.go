package anthropicprovider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openclaude/openclaude/internal/model"
	"github.com/openclaude/openclaude/internal/provider"
)

// APIError represents a non-2xx response from the Messages API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("anthropic api error: status %d: %s", e.StatusCode, e.Body)
}

const defaultMaxTokens = 4096

// Provider implements provider.Provider against the Anthropic Messages API.
type Provider struct {
	baseURL    string
	apiKey     string
	modelID    string
	httpClient *http.Client
	maxTokens  int
}

// New constructs an Anthropic Messages API provider.
func New(modelID, baseURL, apiKey string, timeout time.Duration) *Provider {
	return &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		modelID:    modelID,
		httpClient: &http.Client{Timeout: timeout},
		maxTokens:  defaultMaxTokens,
	}
}

func (p *Provider) Name() string    { return "anthropic" }
func (p *Provider) API() string     { return "anthropic" }
func (p *Provider) ModelID() string { return p.modelID }

// Stream posts a streaming Messages API request and translates its
// named-event SSE frames into the uniform model.StreamEvent sequence.
func (p *Provider) Stream(ctx context.Context, reqCtx *provider.Context, opts *provider.StreamOptions) (<-chan model.StreamEvent, error) {
	maxTokens := p.maxTokens
	if opts != nil && opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	req := &messagesRequest{
		Model:     p.modelID,
		System:    reqCtx.SystemPrompt,
		Messages:  toWireMessages(reqCtx.Messages),
		Tools:     toWireTools(reqCtx.Tools),
		MaxTokens: maxTokens,
		Stream:    true,
	}
	if opts != nil && opts.ThinkingLevel != "" && opts.ThinkingLevel != "off" {
		req.Thinking = &thinkingConfig{Type: "enabled", BudgetTokens: thinkingBudget(opts.ThinkingLevel)}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal messages request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create messages request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	if p.apiKey != "" {
		httpReq.Header.Set("x-api-key", p.apiKey)
	}
	for k, v := range optsHeaders(opts) {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send messages request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	events := make(chan model.StreamEvent, 64)
	go func() {
		defer resp.Body.Close()
		defer close(events)
		p.decode(ctx, resp.Body, events)
	}()

	return events, nil
}

func optsHeaders(opts *provider.StreamOptions) map[string]string {
	if opts == nil {
		return nil
	}
	return opts.Headers
}

func thinkingBudget(level string) int {
	switch level {
	case "low":
		return 2048
	case "high", "max":
		return 16384
	default:
		return 8192
	}
}

// decode reads SSE frames and emits translated StreamEvents until the
// response ends or a fatal error/the abort ctx fires.
func (p *Provider) decode(ctx context.Context, body io.Reader, events chan<- model.StreamEvent) {
	reader := bufio.NewReader(body)
	acc := newAccumulator(p.modelID)

	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := readSSEEvent(reader)
		if err != nil {
			if err == io.EOF {
				emit(ctx, events, model.StreamEvent{Kind: model.EventError, ErrorMessage: "anthropic stream ended before message_stop"})
				return
			}
			emit(ctx, events, model.StreamEvent{Kind: model.EventError, ErrorMessage: err.Error()})
			return
		}
		if frame.name == "" || frame.data == "" {
			continue
		}

		translated, terminal, fatal := acc.applyFrame(frame.name, frame.data)
		for _, ev := range translated {
			if !emit(ctx, events, ev) {
				return
			}
		}
		if fatal != nil {
			emit(ctx, events, model.StreamEvent{Kind: model.EventError, ErrorMessage: fatal.Error()})
			return
		}
		if terminal {
			return
		}
	}
}

func emit(ctx context.Context, ch chan<- model.StreamEvent, ev model.StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func toWireMessages(messages []model.Message) []wireMessage {
	var out []wireMessage
	for _, msg := range messages {
		switch msg.Kind {
		case model.MessageUser:
			if msg.UserContent.IsBlocks() {
				out = append(out, wireMessage{Role: "user", Content: toWireBlocks(msg.UserContent.Blocks)})
			} else {
				out = append(out, wireMessage{Role: "user", Content: []wireBlock{{Type: "text", Text: msg.UserContent.Text}}})
			}
		case model.MessageAssistant:
			out = append(out, wireMessage{Role: "assistant", Content: toWireBlocks(msg.Assistant.Content)})
		case model.MessageToolResult:
			out = append(out, wireMessage{Role: "user", Content: []wireBlock{{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   contentText(msg.Content),
				IsError:   msg.IsError,
			}}})
		}
	}
	return out
}

func toWireBlocks(blocks []model.ContentBlock) []wireBlock {
	out := make([]wireBlock, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case model.ContentText:
			out = append(out, wireBlock{Type: "text", Text: b.Text})
		case model.ContentThinking:
			out = append(out, wireBlock{Type: "thinking", Text: b.Text})
		case model.ContentToolCall:
			out = append(out, wireBlock{Type: "tool_use", ID: b.ID, Name: b.Name, Input: b.Arguments})
		}
	}
	return out
}

func contentText(blocks []model.ContentBlock) string {
	var out string
	for _, b := range blocks {
		if b.Kind == model.ContentText {
			out += b.Text
		}
	}
	return out
}

func toWireTools(defs []provider.ToolDef) []wireTool {
	tools := make([]wireTool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, wireTool{Name: def.Name, Description: def.Description, InputSchema: def.Parameters})
	}
	return tools
}
