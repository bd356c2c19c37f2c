package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// TestBashToolRunStreamingStreamsOutput verifies onUpdate receives each
// line as it is produced rather than only after the command exits.
func TestBashToolRunStreamingStreamsOutput(t *testing.T) {
	root := t.TempDir()
	sandbox := NewSandbox([]string{root})
	toolCtx := ToolContext{Sandbox: sandbox, CWD: root}

	payload, err := json.Marshal(map[string]string{"command": "echo one; echo two"})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	var updates []string
	tool := &BashTool{}
	result, runErr := tool.RunStreaming(context.Background(), payload, toolCtx, func(u ToolUpdate) {
		updates = append(updates, u.Content.Text)
	})
	if runErr != nil {
		t.Fatalf("RunStreaming: %v", runErr)
	}
	if result.IsError {
		t.Fatalf("result is an error: %s", result.Content)
	}
	if len(updates) != 2 || updates[0] != "one" || updates[1] != "two" {
		t.Fatalf("updates = %v, want [one two]", updates)
	}
	if !strings.Contains(result.Content, "one") || !strings.Contains(result.Content, "two") {
		t.Fatalf("final content = %q, want both lines", result.Content)
	}
}

// TestBashToolRunStreamingAbortKillsChild verifies that canceling ctx
// mid-command kills the child rather than letting Run block until the
// command finishes on its own.
func TestBashToolRunStreamingAbortKillsChild(t *testing.T) {
	root := t.TempDir()
	sandbox := NewSandbox([]string{root})
	toolCtx := ToolContext{Sandbox: sandbox, CWD: root}

	payload, err := json.Marshal(map[string]string{"command": "sleep 30"})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	tool := &BashTool{}
	start := time.Now()
	result, runErr := tool.RunStreaming(ctx, payload, toolCtx, nil)
	elapsed := time.Since(start)
	if runErr != nil {
		t.Fatalf("RunStreaming: %v", runErr)
	}
	if !result.IsError || !strings.Contains(result.Content, "aborted") {
		t.Fatalf("result = %+v, want an aborted error", result)
	}
	if elapsed > 10*time.Second {
		t.Fatalf("RunStreaming took %s to return after timeout, want well under the 30s sleep", elapsed)
	}
}
