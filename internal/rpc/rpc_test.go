package rpc

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/openclaude/openclaude/internal/agentloop"
	"github.com/openclaude/openclaude/internal/journal"
	"github.com/openclaude/openclaude/internal/model"
	"github.com/openclaude/openclaude/internal/provider"
	"github.com/openclaude/openclaude/internal/testutil"
)

// mockProvider answers every Stream call with a single Done event.
type mockProvider struct{}

func (mockProvider) Name() string    { return "mock" }
func (mockProvider) API() string     { return "mock" }
func (mockProvider) ModelID() string { return "mock-model" }

func (mockProvider) Stream(ctx context.Context, reqCtx *provider.Context, opts *provider.StreamOptions) (<-chan model.StreamEvent, error) {
	ch := make(chan model.StreamEvent, 1)
	message := model.AssistantMessage{
		Content:    []model.ContentBlock{model.TextBlock("hello")},
		API:        "mock",
		Provider:   "mock",
		Model:      "mock-model",
		Usage:      model.Usage{Input: 10, Output: 5, Total: 15},
		StopReason: model.StopStop,
	}
	ch <- model.StreamEvent{Kind: model.EventDone, DoneReason: model.StopStop, DoneMessage: message}
	close(ch)
	return ch, nil
}

func newTestAgentSession(t *testing.T) *agentloop.AgentSession {
	t.Helper()
	ag := &agentloop.Agent{Provider: mockProvider{}}
	store := journal.NewStore(t.TempDir())
	sess := store.New("/tmp/project")
	sess.Header.Provider = "mock"
	sess.Header.ModelID = "mock-model"
	sess.Header.ThinkingLevel = "off"
	return agentloop.NewAgentSession(ag, sess, store)
}

func readResponseLines(t *testing.T, out *strings.Builder) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimRight(out.String(), "\n"), "\n") {
		if raw == "" {
			continue
		}
		var m map[string]any
		testutil.RequireNoError(t, json.Unmarshal([]byte(raw), &m), "unmarshal line: "+raw)
		lines = append(lines, m)
	}
	return lines
}

func TestRPCGetStateAndPrompt(t *testing.T) {
	agentSession := newTestAgentSession(t)

	in := strings.NewReader(
		`{"id":"1","type":"get_state"}` + "\n" +
			`{"id":"2","type":"prompt","message":"hi"}` + "\n" +
			`{"id":"3","type":"get_session_stats"}` + "\n",
	)
	var out strings.Builder

	err := Run(context.Background(), agentSession, Options{}, in, &out)
	testutil.RequireNoError(t, err, "Run")

	lines := readResponseLines(t, &out)
	if len(lines) < 3 {
		t.Fatalf("expected at least 3 lines, got %d: %v", len(lines), lines)
	}

	// First line: get_state response.
	getState := lines[0]
	testutil.RequireEqual(t, getState["type"], "response", "get_state type")
	testutil.RequireEqual(t, getState["command"], "get_state", "get_state command")
	testutil.RequireEqual(t, getState["success"], true, "get_state success")
	data, ok := getState["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %#v", getState["data"])
	}
	if v, ok := data["sessionFile"]; !ok || v != nil {
		t.Fatalf("expected sessionFile present and null, got %#v", v)
	}
	if v, ok := data["model"]; !ok || v != nil {
		t.Fatalf("expected model present and null (no model switch requested), got %#v", v)
	}

	// Second line: prompt ack.
	promptAck := lines[1]
	testutil.RequireEqual(t, promptAck["type"], "response", "prompt ack type")
	testutil.RequireEqual(t, promptAck["command"], "prompt", "prompt ack command")
	testutil.RequireEqual(t, promptAck["success"], true, "prompt ack success")

	// Collect event-stream lines until agent_end.
	sawAgentEnd := false
	messageEndCount := 0
	var statsLine map[string]any
	for _, line := range lines[2:] {
		if line["type"] == "message_end" {
			messageEndCount++
			continue
		}
		if line["type"] == "agent_end" {
			sawAgentEnd = true
			continue
		}
		if line["command"] == "get_session_stats" {
			statsLine = line
			break
		}
	}
	if !sawAgentEnd {
		t.Fatal("did not observe agent_end event")
	}
	if messageEndCount < 2 {
		t.Fatalf("expected at least 2 message_end events (user + assistant), got %d", messageEndCount)
	}

	if statsLine == nil {
		t.Fatal("did not observe get_session_stats response")
	}
	testutil.RequireEqual(t, statsLine["success"], true, "stats success")
	statsData := statsLine["data"].(map[string]any)
	testutil.RequireEqual(t, statsData["userMessages"], float64(1), "userMessages")
	testutil.RequireEqual(t, statsData["assistantMessages"], float64(1), "assistantMessages")
	testutil.RequireEqual(t, statsData["toolCalls"], float64(0), "toolCalls")
	testutil.RequireEqual(t, statsData["toolResults"], float64(0), "toolResults")
	testutil.RequireEqual(t, statsData["totalMessages"], float64(2), "totalMessages")
	tokens := statsData["tokens"].(map[string]any)
	testutil.RequireEqual(t, tokens["input"], float64(10), "tokens.input")
	testutil.RequireEqual(t, tokens["output"], float64(5), "tokens.output")
	testutil.RequireEqual(t, tokens["total"], float64(15), "tokens.total")
}

func TestRPCSessionStatsCountsToolCallsAndResults(t *testing.T) {
	agentSession := newTestAgentSession(t)
	sess := agentSession.Session

	sess.AppendUserMessage("hi")
	content, err := json.Marshal([]model.ContentBlock{
		model.ToolCallBlock("tc1", "read", json.RawMessage(`{"path":"test.txt"}`)),
	})
	testutil.RequireNoError(t, err, "marshal assistant content")
	sess.AppendAssistantMessage(content)
	resultContent, err := json.Marshal([]model.ContentBlock{model.TextBlock("ok")})
	testutil.RequireNoError(t, err, "marshal tool result content")
	sess.AppendToolResult("tc1", "read", resultContent, nil, false)

	in := strings.NewReader(`{"id":"1","type":"get_session_stats"}` + "\n")
	var out strings.Builder
	err = Run(context.Background(), agentSession, Options{}, in, &out)
	testutil.RequireNoError(t, err, "Run")

	lines := readResponseLines(t, &out)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %v", len(lines), lines)
	}
	stats := lines[0]
	testutil.RequireEqual(t, stats["success"], true, "success")
	data := stats["data"].(map[string]any)
	testutil.RequireEqual(t, data["userMessages"], float64(1), "userMessages")
	testutil.RequireEqual(t, data["assistantMessages"], float64(1), "assistantMessages")
	testutil.RequireEqual(t, data["toolCalls"], float64(1), "toolCalls")
	testutil.RequireEqual(t, data["toolResults"], float64(1), "toolResults")
	testutil.RequireEqual(t, data["totalMessages"], float64(3), "totalMessages")
}
