// Package streamproc assembles one provider event stream into a final
// AssistantMessage, forwarding user-visible deltas as it goes. It
// generalizes openai.StreamAccumulator, which folded OpenAI-specific
// deltas into a Message, to the uniform model.StreamEvent variants every
// provider now emits.
package streamproc

import (
	"context"
	"errors"
	"fmt"

	"github.com/openclaude/openclaude/internal/abort"
	"github.com/openclaude/openclaude/internal/model"
)

// ErrStreamExhausted reports that a provider stream closed without a
// terminal Done/Error event — a protocol violation.
var ErrStreamExhausted = errors.New("streamproc: stream closed without a Done or Error event")

// AgentEventKind discriminates the user-visible events the stream
// processor forwards while assembling a message.
type AgentEventKind string

const (
	// AgentText forwards a TextDelta.
	AgentText AgentEventKind = "text"
	// AgentThinking forwards a ThinkingDelta.
	AgentThinking AgentEventKind = "thinking"
	// AgentToolCallStart reports a tool call beginning to stream in.
	AgentToolCallStart AgentEventKind = "tool_call_start"
)

// AgentEvent is a user-visible event surfaced while a stream is consumed.
// *Start/*End and ToolCallDelta events only update the partial snapshot
// and are swallowed.
type AgentEvent struct {
	Kind AgentEventKind

	TextDelta string

	ToolCallID   string
	ToolCallName string
}

// Process consumes events until a terminal Done/Error event (or abort),
// forwarding user-visible deltas to onEvent, and returns the final
// AssistantMessage.
//
// On abort it fabricates a coherent terminal message from the last seen
// partial snapshot, stamped stop_reason=Aborted, rather than erroring.
func Process(ctx context.Context, events <-chan model.StreamEvent, signal *abort.Signal, onEvent func(AgentEvent)) (model.AssistantMessage, error) {
	var lastPartial *model.AssistantMessage

	abortedMessage := func() model.AssistantMessage {
		msg := model.AssistantMessage{StopReason: model.StopAborted}
		if lastPartial != nil {
			msg = *lastPartial
		}
		msg.StopReason = model.StopAborted
		reason := "Aborted"
		msg.ErrorMessage = &reason
		return msg
	}

	for {
		// Abort preempts the next event:
		// check it non-blocking before racing the select below, since an
		// unbiased select would only prefer abort half the time.
		if signal.Tripped() {
			return abortedMessage(), nil
		}

		var doneCh <-chan struct{}
		if signal != nil {
			doneCh = signal.Done()
		}
		select {
		case <-doneCh:
			return abortedMessage(), nil
		case <-ctx.Done():
			return abortedMessage(), nil
		case ev, ok := <-events:
			if !ok {
				return model.AssistantMessage{}, ErrStreamExhausted
			}

			if ev.Partial != nil {
				lastPartial = ev.Partial
			}

			switch ev.Kind {
			case model.EventTextDelta:
				if onEvent != nil {
					onEvent(AgentEvent{Kind: AgentText, TextDelta: ev.TextDelta})
				}
			case model.EventThinkingDelta:
				if onEvent != nil {
					onEvent(AgentEvent{Kind: AgentThinking, TextDelta: ev.TextDelta})
				}
			case model.EventToolCallStart:
				if onEvent != nil {
					onEvent(AgentEvent{Kind: AgentToolCallStart, ToolCallID: ev.ToolCallID, ToolCallName: ev.ToolCallName})
				}
			case model.EventStart, model.EventTextStart, model.EventTextEnd,
				model.EventThinkingStart, model.EventThinkingEnd,
				model.EventToolCallDelta, model.EventToolCallEnd:
				// Only update the partial snapshot; no user-visible event.

			case model.EventDone:
				return ev.DoneMessage, nil

			case model.EventError:
				return model.AssistantMessage{}, fmt.Errorf("streamproc: provider error: %s", ev.ErrorMessage)
			}
		}
	}
}
