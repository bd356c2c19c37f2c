// Package provider defines the capability every LLM backend implements:
// given a Context, produce an asynchronous stream of model.StreamEvent.
package provider

import (
	"context"

	"github.com/openclaude/openclaude/internal/model"
)

// ToolDef describes a callable tool to the model.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Context bundles everything a provider needs to start a completion.
type Context struct {
	SystemPrompt string
	Messages     []model.Message
	Tools        []ToolDef
}

// StreamOptions carries per-call knobs.
type StreamOptions struct {
	APIKey         string
	Headers        map[string]string
	ThinkingLevel  string
	MaxTokens      int
}

// Provider exposes read-only identifiers plus the streaming operation.
type Provider interface {
	Name() string
	API() string
	ModelID() string

	// Stream starts a completion and returns a channel of events. The
	// channel is closed after exactly one Done or Error event; the
	// caller must drain it or cancel ctx to stop early.
	Stream(ctx context.Context, reqCtx *Context, opts *StreamOptions) (<-chan model.StreamEvent, error)
}
