package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openclaude/openclaude/internal/model"
	"github.com/openclaude/openclaude/internal/provider"
)

// ToolOutput is the result of a successful tool execution:
// content blocks plus optional opaque details persisted alongside the
// ToolResult message.
type ToolOutput struct {
	Content []model.ContentBlock
	Details json.RawMessage
}

// ToolUpdate is a single streamed intermediate update a long-running tool
// may emit through its on_update callback — partial file contents,
// interleaved stdout/stderr, and the like.
type ToolUpdate struct {
	Content model.ContentBlock
}

// OnUpdate receives streamed ToolUpdates. May be nil.
type OnUpdate func(ToolUpdate)

// StreamingTool is implemented by the Tools that genuinely have
// intermediate progress to report through the on_update callback. Only
// Bash (interleaved stdout/stderr) and Task (nested-task lifecycle
// progress) implement it today; every other Tool falls back to its plain
// Run and never calls onUpdate.
type StreamingTool interface {
	Tool
	RunStreaming(ctx context.Context, input json.RawMessage, toolCtx ToolContext, onUpdate OnUpdate) (ToolResult, error)
}

// ExecTool is the provider-neutral tool contract: named,
// schema-described, with a streaming update callback. It is
// distinct from the legacy Tool interface above only in its execute
// signature and content-block output; registry.go adapts every Tool in
// DefaultTools() to this contract rather than rewriting each one.
type ExecTool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, callID string, arguments json.RawMessage, onUpdate OnUpdate, toolCtx ToolContext) (ToolOutput, error)
}

// legacyAdapter wraps a Tool (string-content, no streaming) as an
// ExecTool by boxing its textual result into a single Text content
// block. This is how the existing 17 tools satisfy the new contract
// without every implementation being rewritten.
type legacyAdapter struct {
	tool Tool
}

func (a legacyAdapter) Name() string              { return a.tool.Name() }
func (a legacyAdapter) Description() string       { return a.tool.Description() }
func (a legacyAdapter) Parameters() map[string]any { return a.tool.Schema() }

func (a legacyAdapter) Execute(ctx context.Context, callID string, arguments json.RawMessage, onUpdate OnUpdate, toolCtx ToolContext) (ToolOutput, error) {
	var result ToolResult
	var err error
	if streaming, ok := a.tool.(StreamingTool); ok {
		result, err = streaming.RunStreaming(ctx, arguments, toolCtx, onUpdate)
	} else {
		result, err = a.tool.Run(ctx, arguments, toolCtx)
	}
	if err != nil {
		return ToolOutput{}, err
	}
	out := ToolOutput{Content: []model.ContentBlock{model.TextBlock(result.Content)}}
	if result.IsError {
		return out, fmt.Errorf("%s", result.Content)
	}
	return out, nil
}

// Registry is the case-sensitive name-keyed mapping of ExecTools created
// from a whitelist and a working directory. It is
// read-only after construction and safe to share by reference across
// concurrent agent turns.
type Registry struct {
	cwd     string
	sandbox *Sandbox
	tools   map[string]ExecTool
	order   []string

	// Optional per-process wiring carried into every ToolContext: the
	// active session's id and scratch dir, and the Task tool's executor
	// stack. All are set once at startup, before the registry is shared.
	SessionID    string
	EnvDir       string
	TaskExecutor TaskExecutor
	TaskManager  *TaskManager
	TaskDepth    int
	TaskMaxDepth int
}

// NewRegistry builds a Registry from DefaultTools(), narrowed to allowed
// (when non-empty) and excluding disallowed, rooted at cwd.
func NewRegistry(cwd string, allowed, disallowed []string) (*Registry, error) {
	base := DefaultTools()
	filtered, err := FilterTools(base, allowed, disallowed)
	if err != nil {
		return nil, err
	}
	r := &Registry{cwd: cwd, sandbox: NewSandbox([]string{cwd}), tools: make(map[string]ExecTool, len(filtered))}
	for _, t := range filtered {
		name := t.Name()
		if _, exists := r.tools[name]; exists {
			continue
		}
		r.tools[name] = legacyAdapter{tool: t}
		r.order = append(r.order, name)
	}
	return r, nil
}

// CWD returns the working directory the registry was constructed with.
func (r *Registry) CWD() string { return r.cwd }

// ToolContext builds the ToolContext every Execute call needs: the
// registry's sandbox and cwd, plus the session/task wiring configured on
// the registry at startup.
func (r *Registry) ToolContext() ToolContext {
	return ToolContext{
		Sandbox:      r.sandbox,
		CWD:          r.cwd,
		SessionID:    r.SessionID,
		EnvDir:       r.EnvDir,
		TaskExecutor: r.TaskExecutor,
		TaskManager:  r.TaskManager,
		TaskDepth:    r.TaskDepth,
		TaskMaxDepth: r.TaskMaxDepth,
	}
}

// AddSandboxRoots widens the sandbox allowlist with extra directories
// (the CLI's --add-dir flag). Call before the registry is shared.
func (r *Registry) AddSandboxRoots(dirs ...string) {
	r.sandbox.Roots = append(r.sandbox.Roots, dirs...)
}

// Lookup returns the named tool, or ok=false if it is not registered.
// Unknown-name handling is the caller's responsibility:
// the agent loop or dispatcher synthesizes an error ToolResult itself.
func (r *Registry) Lookup(name string) (ExecTool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in deterministic order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// ToolDefs returns the provider.ToolDef list describing every registered
// tool, for building a provider.Context.
func (r *Registry) ToolDefs() []provider.ToolDef {
	defs := make([]provider.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, provider.ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}
