package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/openclaude/openclaude/internal/model"
)

// ToolContext provides shared context to tool implementations.
type ToolContext struct {
	// Sandbox enforces path allow/deny rules.
	Sandbox *Sandbox
	// CWD is the working directory for command tools.
	CWD string
	// SessionID identifies the current session for scratch files.
	SessionID string
	// EnvDir is the root for per-session scratch state (plan-mode marker,
	// todo list, task records).
	EnvDir string
	// TaskExecutor runs Task tool subtasks when configured.
	TaskExecutor TaskExecutor
	// TaskDepth tracks nested task execution depth.
	TaskDepth int
	// TaskMaxDepth caps nested task execution depth (0 disables nesting).
	TaskMaxDepth int
	// TaskManager tracks async task execution state.
	TaskManager *TaskManager
}

// TaskRequest describes a subtask request issued via the Task tool.
type TaskRequest struct {
	// Prompt holds a single user prompt for the task.
	Prompt string
	// Messages optionally provide a full message history for the task.
	Messages []model.Message
	// SystemPrompt optionally overrides the default system prompt.
	SystemPrompt string
	// Model overrides the default model when provided.
	Model string
	// MaxTurns overrides the default turn limit for the task.
	MaxTurns int
	// Metadata stores raw task payload fields for auditing.
	Metadata map[string]any
}

// TaskResult captures the output of a subtask execution.
type TaskResult struct {
	// Output is the final assistant text for the task.
	Output string
	// Metadata carries any extra metadata from execution.
	Metadata map[string]any
}

// TaskExecutor runs subtasks for the Task tool.
type TaskExecutor interface {
	ExecuteTask(ctx context.Context, request TaskRequest) (TaskResult, error)
}

// TaskExecutorFunc is a helper to build TaskExecutor instances from functions.
type TaskExecutorFunc func(ctx context.Context, request TaskRequest) (TaskResult, error)

// ExecuteTask calls the wrapped function.
func (fn TaskExecutorFunc) ExecuteTask(ctx context.Context, request TaskRequest) (TaskResult, error) {
	return fn(ctx, request)
}

// ToolResult is the result of a tool invocation.
type ToolResult struct {
	// Content holds the tool output payload.
	Content string
	// IsError reports whether the tool failed.
	IsError bool
}

// Tool defines a callable tool.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Run(ctx context.Context, input json.RawMessage, toolCtx ToolContext) (ToolResult, error)
}

// FilterTools applies allow/deny constraints.
func FilterTools(tools []Tool, allowed []string, disallowed []string) ([]Tool, error) {
	allowedSet := toNameSet(allowed)
	disallowedSet := toNameSet(disallowed)

	var filtered []Tool
	for _, tool := range tools {
		name := tool.Name()
		if len(allowedSet) > 0 && !allowedSet[name] {
			continue
		}
		if disallowedSet[name] {
			continue
		}
		filtered = append(filtered, tool)
	}

	if len(filtered) == 0 {
		return nil, errors.New("no tools available after filtering")
	}
	return filtered, nil
}

// toNameSet converts a list of names to a lookup set.
func toNameSet(names []string) map[string]bool {
	set := make(map[string]bool)
	for _, name := range names {
		if name == "" {
			continue
		}
		set[name] = true
	}
	return set
}

// DefaultTools returns the built-in tool set in Claude Code order.
// Every entry is a working implementation; the unsupportedTool stub in
// unsupported.go is not part of this set.
func DefaultTools() []Tool {
	return []Tool{
		&TaskTool{},
		&TaskOutputTool{},
		&BashTool{},
		&GlobTool{},
		&GrepTool{},
		&ExitPlanModeTool{},
		&ReadTool{},
		&EditTool{},
		&WriteTool{},
		&NotebookEditTool{},
		&WebFetchTool{},
		&TodoWriteTool{},
		&WebSearchTool{},
		&TaskStopTool{},
		&AskUserQuestionTool{},
		&SkillTool{},
		&EnterPlanModeTool{},
	}
}
