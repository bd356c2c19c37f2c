package agentloop

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openclaude/openclaude/internal/abort"
	"github.com/openclaude/openclaude/internal/model"
	"github.com/openclaude/openclaude/internal/provider"
	"github.com/openclaude/openclaude/internal/tools"
)

// scriptedProvider replays a fixed sequence of AssistantMessages, one
// per Stream call, each as a single Done event.
type scriptedProvider struct {
	script []model.AssistantMessage
	calls  int
}

func (p *scriptedProvider) Name() string    { return "scripted" }
func (p *scriptedProvider) API() string     { return "scripted" }
func (p *scriptedProvider) ModelID() string { return "scripted-model" }

func (p *scriptedProvider) Stream(ctx context.Context, reqCtx *provider.Context, opts *provider.StreamOptions) (<-chan model.StreamEvent, error) {
	idx := p.calls
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	p.calls++
	msg := p.script[idx]

	ch := make(chan model.StreamEvent, 1)
	ch <- model.StreamEvent{Kind: model.EventDone, DoneReason: msg.StopReason, DoneMessage: msg}
	close(ch)
	return ch, nil
}

// neverRespondingProvider yields one TextDelta then blocks until ctx is
// done, for abort-mid-stream testing (S3).
type neverRespondingProvider struct{}

func (p *neverRespondingProvider) Name() string    { return "stuck" }
func (p *neverRespondingProvider) API() string     { return "stuck" }
func (p *neverRespondingProvider) ModelID() string { return "stuck-model" }

func (p *neverRespondingProvider) Stream(ctx context.Context, reqCtx *provider.Context, opts *provider.StreamOptions) (<-chan model.StreamEvent, error) {
	ch := make(chan model.StreamEvent)
	go func() {
		partial := &model.AssistantMessage{Content: []model.ContentBlock{model.TextBlock("partial")}}
		ch <- model.StreamEvent{Kind: model.EventTextDelta, TextDelta: "partial", Partial: partial}
		<-ctx.Done()
	}()
	return ch, nil
}

func newRegistry(t *testing.T, cwd string) *tools.Registry {
	t.Helper()
	reg, err := tools.NewRegistry(cwd, nil, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func TestToolUseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "test.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	toolCallArgs, _ := json.Marshal(map[string]string{"file_path": filepath.Join(dir, "test.txt")})
	scripted := &scriptedProvider{script: []model.AssistantMessage{
		{
			Content:    []model.ContentBlock{model.ToolCallBlock("call-1", "Read", toolCallArgs)},
			StopReason: model.StopToolUse,
		},
		{
			Content:    []model.ContentBlock{model.TextBlock("done")},
			StopReason: model.StopStop,
		},
	}}

	reg := newRegistry(t, dir)
	agent := &Agent{Provider: scripted, Registry: reg, Config: Config{MaxToolIterations: 8}}

	final, err := agent.Run(context.Background(), nil, model.UserContent{Text: "read test.txt"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final.StopReason != model.StopStop {
		t.Fatalf("final stop reason = %v, want Stop", final.StopReason)
	}
	if len(agent.Messages) != 4 {
		t.Fatalf("messages = %d, want 4 (user, assistant-toolcall, tool-result, assistant-text)", len(agent.Messages))
	}

	toolResult := agent.Messages[2]
	if toolResult.Kind != model.MessageToolResult {
		t.Fatalf("messages[2].Kind = %v, want ToolResult", toolResult.Kind)
	}
	if toolResult.ToolCallID != "call-1" {
		t.Fatalf("tool_call_id = %q, want call-1", toolResult.ToolCallID)
	}
	var sawHello bool
	for _, block := range toolResult.Content {
		if strings.Contains(block.Text, "hello world") {
			sawHello = true
		}
	}
	if !sawHello {
		t.Fatalf("tool result content = %+v, want a block containing %q", toolResult.Content, "hello world")
	}
}

func TestMaxToolIterations(t *testing.T) {
	toolCallArgs, _ := json.Marshal(map[string]string{"pattern": "*"})
	alwaysToolUse := &scriptedProvider{script: []model.AssistantMessage{
		{
			Content:    []model.ContentBlock{model.ToolCallBlock("call-x", "Glob", toolCallArgs)},
			StopReason: model.StopToolUse,
		},
	}}

	reg := newRegistry(t, t.TempDir())
	agent := &Agent{Provider: alwaysToolUse, Registry: reg, Config: Config{MaxToolIterations: 2}}

	_, err := agent.Run(context.Background(), nil, model.UserContent{Text: "loop forever"}, nil)
	if err == nil || !strings.Contains(err.Error(), "Maximum tool iterations (2)") {
		t.Fatalf("err = %v, want message containing 'Maximum tool iterations (2)'", err)
	}
}

func TestAbortMidStream(t *testing.T) {
	reg := newRegistry(t, t.TempDir())
	agent := &Agent{Provider: &neverRespondingProvider{}, Registry: reg, Config: Config{MaxToolIterations: 8}}

	handle := abort.NewHandle()
	var events []Event
	done := make(chan struct{})
	var final *model.AssistantMessage
	var runErr error
	go func() {
		final, runErr = agent.Run(context.Background(), handle.Signal(), model.UserContent{Text: "go"}, func(e Event) {
			events = append(events, e)
		})
		close(done)
	}()

	handle.Abort("test")
	<-done

	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if final.StopReason != model.StopAborted {
		t.Fatalf("stop reason = %v, want Aborted", final.StopReason)
	}
	if final.ErrorMessage == nil || *final.ErrorMessage != "Aborted" {
		t.Fatalf("error message = %v, want Aborted", final.ErrorMessage)
	}

	var doneCount, assistantDoneCount int
	for _, e := range events {
		if e.Kind == EventDone {
			doneCount++
		}
		if e.Kind == EventAssistantDone {
			assistantDoneCount++
		}
	}
	if doneCount != 1 || assistantDoneCount != 1 {
		t.Fatalf("doneCount=%d assistantDoneCount=%d, want exactly 1 each", doneCount, assistantDoneCount)
	}
}

// TestToolExecutionAbortKillsChild covers abort tripped while a tool call
// is in flight rather than while the model is streaming (S3 above only
// exercises the latter). A Bash call sleeps far longer than the test is
// willing to wait; Abort must make executeToolCall's derived context
// cancel the command's process group so Run returns almost immediately
// instead of blocking for the sleep's full duration.
func TestToolExecutionAbortKillsChild(t *testing.T) {
	toolCallArgs, _ := json.Marshal(map[string]string{"command": "sleep 30"})
	scripted := &scriptedProvider{script: []model.AssistantMessage{
		{
			Content:    []model.ContentBlock{model.ToolCallBlock("call-sleep", "Bash", toolCallArgs)},
			StopReason: model.StopToolUse,
		},
	}}

	reg := newRegistry(t, t.TempDir())
	agent := &Agent{Provider: scripted, Registry: reg, Config: Config{MaxToolIterations: 8}}

	handle := abort.NewHandle()
	done := make(chan struct{})
	var final *model.AssistantMessage
	var runErr error
	start := time.Now()
	go func() {
		final, runErr = agent.Run(context.Background(), handle.Signal(), model.UserContent{Text: "sleep"}, nil)
		close(done)
	}()

	// Give the Bash call a moment to actually spawn before aborting.
	time.Sleep(200 * time.Millisecond)
	handle.Abort("test")

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after abort; child process was not killed")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("Run took %s to return after abort, want well under the 30s sleep", elapsed)
	}

	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if final.StopReason != model.StopAborted {
		t.Fatalf("stop reason = %v, want Aborted", final.StopReason)
	}
}
