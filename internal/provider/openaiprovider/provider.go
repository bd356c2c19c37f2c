// Package openaiprovider implements provider.Provider over an
// OpenAI-compatible chat/completions gateway, translating its SSE deltas
// into model.StreamEvent as they arrive.
package openaiprovider

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/time/rate"

	"github.com/openclaude/openclaude/internal/model"
	"github.com/openclaude/openclaude/internal/provider"
)

// defaultRequestsPerSecond paces requests ahead of the gateway so a
// bursty tool loop (many turns in quick succession) doesn't trip the
// upstream's own rate limiting.
const defaultRequestsPerSecond = 4

// Provider implements provider.Provider over an OpenAI-compatible gateway.
type Provider struct {
	client  *wireClient
	name    string
	api     string
	modelID string
	limiter *rate.Limiter
}

// New constructs an OpenAI-compatible provider, pacing its own requests at
// defaultRequestsPerSecond with a one-request burst allowance.
func New(name, modelID, baseURL, apiKey string, timeout time.Duration) *Provider {
	return &Provider{
		client:  newWireClient(baseURL, apiKey, timeout),
		name:    name,
		api:     "openai",
		modelID: modelID,
		limiter: rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), 1),
	}
}

func (p *Provider) Name() string    { return p.name }
func (p *Provider) API() string     { return p.api }
func (p *Provider) ModelID() string { return p.modelID }

// Stream starts a chat/completions stream and emits translated events on a
// buffered channel. The channel is closed after exactly one Done or Error
// event.
func (p *Provider) Stream(ctx context.Context, reqCtx *provider.Context, opts *provider.StreamOptions) (<-chan model.StreamEvent, error) {
	req := &chatRequest{
		Model:    p.modelID,
		Messages: toChatMessages(reqCtx),
		StreamOptions: &streamOptions{
			IncludeUsage: true,
		},
	}
	if len(reqCtx.Tools) > 0 {
		req.Tools = toChatTools(reqCtx.Tools)
		req.ToolChoice = "auto"
	}
	if opts != nil && opts.MaxTokens > 0 {
		maxTokens := opts.MaxTokens
		req.MaxTokens = &maxTokens
	}

	events := make(chan model.StreamEvent, 64)

	go func() {
		defer close(events)

		if err := p.limiter.Wait(ctx); err != nil {
			emit(ctx, events, model.StreamEvent{Kind: model.EventError, ErrorMessage: err.Error()})
			return
		}

		acc := newAccumulator(p.api, p.name, p.modelID)
		emit(ctx, events, model.StreamEvent{Kind: model.EventStart, Partial: acc.snapshot()})

		err := p.client.streamChat(ctx, req, func(chunk chatChunk) error {
			for _, delta := range acc.apply(chunk) {
				if !emit(ctx, events, delta) {
					return context.Canceled
				}
			}
			return nil
		})
		if err != nil {
			emit(ctx, events, model.StreamEvent{Kind: model.EventError, ErrorMessage: err.Error()})
			return
		}

		final := acc.finalMessage()
		emit(ctx, events, model.StreamEvent{Kind: model.EventDone, DoneReason: final.StopReason, DoneMessage: final})
	}()

	return events, nil
}

// emit sends an event unless ctx is already done, returning false if the
// send was abandoned.
func emit(ctx context.Context, ch chan<- model.StreamEvent, ev model.StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func toChatMessages(reqCtx *provider.Context) []chatMessage {
	var out []chatMessage
	if reqCtx.SystemPrompt != "" {
		out = append(out, chatMessage{Role: "system", Content: reqCtx.SystemPrompt})
	}
	for _, msg := range reqCtx.Messages {
		out = append(out, toChatMessage(msg)...)
	}
	return out
}

func toChatMessage(msg model.Message) []chatMessage {
	switch msg.Kind {
	case model.MessageUser:
		if msg.UserContent.IsBlocks() {
			raw, _ := json.Marshal(msg.UserContent.Blocks)
			return []chatMessage{{Role: "user", Content: string(raw)}}
		}
		return []chatMessage{{Role: "user", Content: msg.UserContent.Text}}
	case model.MessageAssistant:
		var calls []chatToolCall
		for _, block := range msg.Assistant.Content {
			if block.Kind != model.ContentToolCall {
				continue
			}
			calls = append(calls, chatToolCall{
				ID:   block.ID,
				Type: "function",
				Function: chatToolCallFunction{
					Name:      block.Name,
					Arguments: string(block.Arguments),
				},
			})
		}
		return []chatMessage{{
			Role:      "assistant",
			Content:   msg.Assistant.Text(),
			ToolCalls: calls,
		}}
	case model.MessageToolResult:
		return []chatMessage{{
			Role:       "tool",
			ToolCallID: msg.ToolCallID,
			Content:    contentText(msg.Content),
		}}
	default:
		return nil
	}
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

func toChatTools(defs []provider.ToolDef) []chatTool {
	tools := make([]chatTool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, chatTool{
			Type: "function",
			Function: chatToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return tools
}
