// Package rpc implements the line-delimited JSON front-end: the same agent
// loop exposed non-interactively over stdin/stdout (or, in tests, over any
// io.Reader/io.Writer pair). It preserves the stream event ordering the
// interactive loop would produce, including exactly one agent_end
// terminator per prompt.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/openclaude/openclaude/internal/abort"
	"github.com/openclaude/openclaude/internal/agentloop"
	"github.com/openclaude/openclaude/internal/auth"
	"github.com/openclaude/openclaude/internal/config"
	"github.com/openclaude/openclaude/internal/journal"
	"github.com/openclaude/openclaude/internal/model"
)

// Options bundles the collaborators a running RPC server needs beyond the
// bound AgentSession.
type Options struct {
	Settings        *config.Settings
	Auth            *auth.Storage
	AvailableModels []string
	ScopedModels    []string
}

// request is the shape of one incoming line: every request carries an id
// and a type.
type request struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// response is the envelope every command reply shares.
type response struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Command string `json:"command"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// event is one line streamed during a prompt.
type event struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Text    string `json:"text,omitempty"`
	Message any    `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Run drains newline-delimited JSON requests from in, dispatches each
// against sess, and writes newline-delimited JSON responses/events to
// out. It returns when in reaches EOF (the sender closed its side), or on
// the first unrecoverable I/O error.
func Run(ctx context.Context, sess *agentloop.AgentSession, opts Options, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	writer := &lineWriter{w: out}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var req request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			if writeErr := writer.writeJSON(response{Type: "response", Success: false, Error: fmt.Sprintf("invalid request: %v", err)}); writeErr != nil {
				return writeErr
			}
			continue
		}

		if err := dispatch(ctx, sess, opts, req, writer); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func dispatch(ctx context.Context, sess *agentloop.AgentSession, opts Options, req request, w *lineWriter) error {
	switch req.Type {
	case "get_state":
		return w.writeJSON(response{
			ID:      req.ID,
			Type:    "response",
			Command: "get_state",
			Success: true,
			Data:    getState(sess),
		})
	case "get_session_stats":
		return w.writeJSON(response{
			ID:      req.ID,
			Type:    "response",
			Command: "get_session_stats",
			Success: true,
			Data:    getSessionStats(sess),
		})
	case "prompt":
		return runPrompt(ctx, sess, req, w)
	default:
		return w.writeJSON(response{
			ID:      req.ID,
			Type:    "response",
			Command: req.Type,
			Success: false,
			Error:   fmt.Sprintf("unknown request type %q", req.Type),
		})
	}
}

// sessionFileValue returns the session's on-disk path, or nil if it has
// never been saved.
func sessionFileValue(sess *agentloop.AgentSession) *string {
	if sess == nil || sess.Session == nil {
		return nil
	}
	if p := sess.Session.Path(); p != "" {
		return &p
	}
	return nil
}

// getStateData is the get_state response payload.
type getStateData struct {
	SessionFile *string `json:"sessionFile"`
	SessionName *string `json:"sessionName"`
	Model       *string `json:"model"`
}

// getState reports the front-end's current model/session/name selection.
// Model is always null: Run handles no model-switch request, and the bound
// session's header.ModelID, which records what the provider used for past
// turns, is not reported here.
func getState(sess *agentloop.AgentSession) getStateData {
	data := getStateData{SessionFile: sessionFileValue(sess)}
	if sess != nil && sess.Session != nil {
		if name := journal.SessionName(sess.Session); name != "" {
			data.SessionName = &name
		}
	}
	return data
}

// sessionStatsData is the get_session_stats response payload.
type sessionStatsData struct {
	SessionFile       *string    `json:"sessionFile"`
	UserMessages      int        `json:"userMessages"`
	AssistantMessages int        `json:"assistantMessages"`
	ToolCalls         int        `json:"toolCalls"`
	ToolResults       int        `json:"toolResults"`
	TotalMessages     int        `json:"totalMessages"`
	Tokens            tokenStats `json:"tokens"`
}

type tokenStats struct {
	Input  uint64 `json:"input"`
	Output uint64 `json:"output"`
	Total  uint64 `json:"total"`
}

// getSessionStats walks sess's active-branch entries: toolCalls counts
// ToolCall content blocks across assistant messages, toolResults counts
// ToolResult messages.
func getSessionStats(sess *agentloop.AgentSession) sessionStatsData {
	data := sessionStatsData{SessionFile: sessionFileValue(sess)}
	if sess == nil || sess.Session == nil {
		return data
	}

	var entries []journal.Entry
	if sess.Session.LeafID != "" {
		if path, err := sess.Session.GetPathToEntry(sess.Session.LeafID); err == nil {
			entries = path
		}
	}

	for _, e := range entries {
		if e.Kind != journal.EntryMessage {
			continue
		}
		switch e.MessageKind {
		case journal.MsgUser:
			data.UserMessages++
			data.TotalMessages++
		case journal.MsgAssistant:
			data.AssistantMessages++
			data.TotalMessages++
			var blocks []model.ContentBlock
			if err := json.Unmarshal(e.Content, &blocks); err == nil {
				for _, b := range blocks {
					if b.Kind == model.ContentToolCall {
						data.ToolCalls++
					}
				}
			}
		case journal.MsgToolResult:
			data.ToolResults++
			data.TotalMessages++
		}
	}

	if sess.Agent != nil {
		for _, msg := range sess.Agent.Messages {
			if msg.Kind == model.MessageAssistant && msg.Assistant != nil {
				data.Tokens.Input += msg.Assistant.Usage.Input
				data.Tokens.Output += msg.Assistant.Usage.Output
				data.Tokens.Total += msg.Assistant.Usage.Total
			}
		}
	}

	return data
}

// runPrompt acks the request immediately, then drives sess.Prompt,
// forwarding every agentloop.Event as a wire event, ending with exactly
// one agent_end.
func runPrompt(ctx context.Context, sess *agentloop.AgentSession, req request, w *lineWriter) error {
	if err := w.writeJSON(response{ID: req.ID, Type: "response", Command: "prompt", Success: true}); err != nil {
		return err
	}

	if err := w.writeJSON(event{Type: "message_start", Role: "user"}); err != nil {
		return err
	}
	if err := w.writeJSON(event{Type: "message_end", Role: "user", Text: req.Message}); err != nil {
		return err
	}

	signal := abort.NewHandle().Signal()
	var streamErr error
	_, runErr := sess.Prompt(ctx, signal, model.UserContent{Text: req.Message}, func(ev agentloop.Event) {
		if streamErr != nil {
			return
		}
		streamErr = forwardEvent(w, ev)
	})
	if streamErr != nil {
		return streamErr
	}
	if runErr != nil {
		return w.writeJSON(event{Type: "agent_end", Error: runErr.Error()})
	}
	return nil
}

// forwardEvent maps one agentloop.Event onto its wire shape. RequestStart
// and AssistantDone bracket each assistant message as message_start/
// message_end; text/thinking deltas become delta events; Done becomes the
// terminal agent_end.
func forwardEvent(w *lineWriter, ev agentloop.Event) error {
	switch ev.Kind {
	case agentloop.EventRequestStart:
		return w.writeJSON(event{Type: "message_start", Role: "assistant"})
	case agentloop.EventText, agentloop.EventThinking:
		return w.writeJSON(event{Type: "delta", Text: ev.TextDelta})
	case agentloop.EventToolCallStarting:
		return w.writeJSON(event{Type: "tool_call_start", Text: ev.ToolCallName})
	case agentloop.EventAssistantDone:
		return w.writeJSON(event{Type: "message_end", Role: "assistant", Message: ev.AssistantMessage})
	case agentloop.EventToolExecuteStart:
		return w.writeJSON(event{Type: "tool_execute_start", Text: ev.ToolCallName})
	case agentloop.EventToolUpdate:
		text := ""
		if ev.ToolUpdateContent != nil {
			text = ev.ToolUpdateContent.Text
		}
		return w.writeJSON(event{Type: "tool_update", Text: text})
	case agentloop.EventToolExecuteEnd:
		return w.writeJSON(event{Type: "tool_execute_end", Text: ev.ToolCallName})
	case agentloop.EventErr:
		return w.writeJSON(event{Type: "error", Error: ev.Err.Error()})
	case agentloop.EventDone:
		return w.writeJSON(event{Type: "agent_end"})
	default:
		return nil
	}
}

// lineWriter writes one JSON object per line straight to w. Run drives it
// from a single goroutine, so it takes no lock.
type lineWriter struct {
	w io.Writer
}

func (l *lineWriter) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rpc: marshal: %w", err)
	}
	data = append(data, '\n')
	_, err = l.w.Write(data)
	return err
}
