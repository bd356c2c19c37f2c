// Package agentloop orchestrates the uniform agent loop: stream a
// completion, execute any requested tools, append results, iterate until
// a terminal stop reason or the iteration bound. It is provider-neutral,
// built against internal/model, internal/provider and the
// tools.Registry/ExecTool contract, and drives every front-end: the
// interactive TUI, print mode, and the RPC server.
package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openclaude/openclaude/internal/abort"
	"github.com/openclaude/openclaude/internal/model"
	"github.com/openclaude/openclaude/internal/pierr"
	"github.com/openclaude/openclaude/internal/provider"
	"github.com/openclaude/openclaude/internal/provider/streamproc"
	"github.com/openclaude/openclaude/internal/tools"
)

// tracer emits one span per model request inside a turn. It is otel's
// no-op tracer until the host process registers a TracerProvider.
var tracer = otel.Tracer("github.com/openclaude/openclaude/internal/agentloop")

// Config holds the per-agent knobs.
type Config struct {
	SystemPrompt      string
	MaxToolIterations int
	StreamOptions     provider.StreamOptions

	// AuthorizeTool, when set, gates every tool execution. A returned
	// error denies the call; the denial is absorbed into the conversation
	// as an error ToolResult the model can react to.
	AuthorizeTool func(name string, arguments json.RawMessage) error
}

// Agent is the orchestration state of one conversation.
// A single Agent is not required to be safe for concurrent Run calls on
// its own Messages; callers that need that serialize
// through AgentSession.
type Agent struct {
	Provider provider.Provider
	Registry *tools.Registry
	Config   Config
	Messages []model.Message
}

// EventKind discriminates AgentEvent variants broadcast during Run.
type EventKind string

const (
	EventRequestStart     EventKind = "request_start"
	EventText             EventKind = "text"
	EventThinking         EventKind = "thinking"
	EventToolCallStarting EventKind = "tool_call_starting"
	EventAssistantDone    EventKind = "assistant_done"
	EventToolExecuteStart EventKind = "tool_execute_start"
	EventToolUpdate       EventKind = "tool_update"
	EventToolExecuteEnd   EventKind = "tool_execute_end"
	EventDone             EventKind = "done"
	EventErr              EventKind = "error"
)

// Event is the tagged union of everything Run can broadcast.
type Event struct {
	Kind EventKind

	TextDelta string

	ToolCallID        string
	ToolCallName      string
	ToolIsError       bool
	ToolUpdateContent *model.ContentBlock

	AssistantMessage *model.AssistantMessage
	FinalMessage     *model.AssistantMessage
	Err              error
}

// maxToolIterationsError reports that the loop's iteration cap was hit,
// as an API-kind error carrying the bound in its message.
func maxToolIterationsError(bound int) error {
	return pierr.API(fmt.Sprintf("Maximum tool iterations (%d) exceeded", bound))
}

const defaultMaxToolIterations = 64

// Run executes one user turn: append the user message, then loop
// stream, tool-execute, iterate until a terminal stop reason. onEvent may
// be nil.
func (a *Agent) Run(ctx context.Context, signal *abort.Signal, content model.UserContent, onEvent func(Event)) (*model.AssistantMessage, error) {
	emit := func(e Event) {
		if onEvent != nil {
			onEvent(e)
		}
	}

	userMsg := model.Message{Kind: model.MessageUser, UserContent: content, TimestampMS: nowMS()}
	a.Messages = append(a.Messages, userMsg)

	maxIter := a.Config.MaxToolIterations
	if maxIter <= 0 {
		maxIter = defaultMaxToolIterations
	}

	for iteration := 0; ; iteration++ {
		if iteration >= maxIter {
			return nil, maxToolIterationsError(maxIter)
		}

		// Abort is observed at the top of the loop.
		if signal.Tripped() {
			final := syntheticAbortedMessage()
			a.Messages = append(a.Messages, model.NewAssistantMessage(final))
			emit(Event{Kind: EventAssistantDone, AssistantMessage: &final})
			emit(Event{Kind: EventDone, FinalMessage: &final})
			return &final, nil
		}

		emit(Event{Kind: EventRequestStart})

		turnCtx, span := tracer.Start(ctx, "agentloop.turn",
			trace.WithAttributes(attribute.Int("agentloop.iteration", iteration)))

		reqCtx := &provider.Context{
			SystemPrompt: a.Config.SystemPrompt,
			Messages:     a.Messages,
		}
		if a.Registry != nil {
			reqCtx.Tools = a.Registry.ToolDefs()
		}

		events, err := a.Provider.Stream(turnCtx, reqCtx, &a.Config.StreamOptions)
		if err != nil {
			span.End()
			emit(Event{Kind: EventErr, Err: err})
			return nil, fmt.Errorf("agentloop: provider stream: %w", err)
		}

		final, err := streamproc.Process(turnCtx, events, signal, func(pe streamproc.AgentEvent) {
			switch pe.Kind {
			case streamproc.AgentText:
				emit(Event{Kind: EventText, TextDelta: pe.TextDelta})
			case streamproc.AgentThinking:
				emit(Event{Kind: EventThinking, TextDelta: pe.TextDelta})
			case streamproc.AgentToolCallStart:
				emit(Event{Kind: EventToolCallStarting, ToolCallID: pe.ToolCallID, ToolCallName: pe.ToolCallName})
			}
		})
		span.SetAttributes(attribute.String("agentloop.stop_reason", string(final.StopReason)))
		span.End()
		if err != nil {
			emit(Event{Kind: EventErr, Err: err})
			return nil, fmt.Errorf("agentloop: stream processing: %w", err)
		}

		if final.TimestampMS == 0 {
			final.TimestampMS = nowMS()
		}
		a.Messages = append(a.Messages, model.NewAssistantMessage(final))
		emit(Event{Kind: EventAssistantDone, AssistantMessage: &final})

		toolCalls := final.ToolCalls()
		if final.StopReason.Terminal() || len(toolCalls) == 0 {
			emit(Event{Kind: EventDone, FinalMessage: &final})
			return &final, nil
		}

		// Tool calls execute sequentially, in document order; results
		// append in the same order.
		for _, call := range toolCalls {
			emit(Event{Kind: EventToolExecuteStart, ToolCallID: call.ID, ToolCallName: call.Name})

			content, details, isError := a.executeToolCall(ctx, signal, call, emit)

			resultMsg := model.NewToolResultMessage(call.ID, call.Name, content, details, isError, nowMS())
			a.Messages = append(a.Messages, resultMsg)

			emit(Event{Kind: EventToolExecuteEnd, ToolCallID: call.ID, ToolCallName: call.Name, ToolIsError: isError})
		}
	}
}

// executeToolCall looks up and runs a single tool call, mapping
// unknown-name and execution failures onto an error ToolResult content
// block. ctx is derived from signal so a cooperative abort tripped
// mid-execution reaches the tool's own cooperative checks, and any
// ToolUpdate the tool streams is forwarded as an EventToolUpdate via emit.
func (a *Agent) executeToolCall(ctx context.Context, signal *abort.Signal, call model.ContentBlock, emit func(Event)) (content []model.ContentBlock, details json.RawMessage, isError bool) {
	if a.Registry == nil {
		return []model.ContentBlock{model.TextBlock("Error: no tool registry configured")}, nil, true
	}
	tool, ok := a.Registry.Lookup(call.Name)
	if !ok {
		return []model.ContentBlock{model.TextBlock(fmt.Sprintf("Error: unknown tool %q", call.Name))}, nil, true
	}
	if a.Config.AuthorizeTool != nil {
		if err := a.Config.AuthorizeTool(call.Name, call.Arguments); err != nil {
			return []model.ContentBlock{model.TextBlock(fmt.Sprintf("Error: %s", err))}, nil, true
		}
	}

	toolCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if signal != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-signal.Done():
				cancel()
			case <-stop:
			}
		}()
	}

	onUpdate := func(u tools.ToolUpdate) {
		content := u.Content
		emit(Event{Kind: EventToolUpdate, ToolCallID: call.ID, ToolCallName: call.Name, ToolUpdateContent: &content})
	}

	out, err := tool.Execute(toolCtx, call.ID, call.Arguments, onUpdate, a.Registry.ToolContext())
	if err != nil {
		return []model.ContentBlock{model.TextBlock(fmt.Sprintf("Error: %s", err))}, nil, true
	}
	return out.Content, out.Details, false
}

// syntheticAbortedMessage builds the terminal message the loop emits on
// a pre-tripped abort.
func syntheticAbortedMessage() model.AssistantMessage {
	reason := "Aborted"
	return model.AssistantMessage{StopReason: model.StopAborted, ErrorMessage: &reason, TimestampMS: nowMS()}
}

func nowMS() int64 { return time.Now().UnixMilli() }
