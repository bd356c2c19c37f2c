package streamproc

import (
	"context"
	"testing"
	"time"

	"github.com/openclaude/openclaude/internal/abort"
	"github.com/openclaude/openclaude/internal/model"
)

func TestProcessAssemblesDoneMessage(t *testing.T) {
	events := make(chan model.StreamEvent, 8)
	events <- model.StreamEvent{Kind: model.EventStart, Partial: &model.AssistantMessage{}}
	events <- model.StreamEvent{Kind: model.EventTextStart, Partial: &model.AssistantMessage{}}
	events <- model.StreamEvent{Kind: model.EventTextDelta, TextDelta: "hello", Partial: &model.AssistantMessage{}}
	events <- model.StreamEvent{Kind: model.EventTextEnd, Partial: &model.AssistantMessage{}}
	final := model.AssistantMessage{Content: []model.ContentBlock{model.TextBlock("hello")}, StopReason: model.StopStop}
	events <- model.StreamEvent{Kind: model.EventDone, DoneReason: model.StopStop, DoneMessage: final}
	close(events)

	var forwarded []AgentEvent
	msg, err := Process(context.Background(), events, nil, func(e AgentEvent) {
		forwarded = append(forwarded, e)
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if msg.StopReason != model.StopStop {
		t.Fatalf("stop reason = %v, want Stop", msg.StopReason)
	}
	if len(forwarded) != 1 || forwarded[0].Kind != AgentText || forwarded[0].TextDelta != "hello" {
		t.Fatalf("forwarded = %+v, want one text delta", forwarded)
	}
}

func TestProcessExhaustionIsError(t *testing.T) {
	events := make(chan model.StreamEvent)
	close(events)

	_, err := Process(context.Background(), events, nil, nil)
	if err != ErrStreamExhausted {
		t.Fatalf("err = %v, want ErrStreamExhausted", err)
	}
}

func TestProcessAbortFabricatesTerminalMessage(t *testing.T) {
	events := make(chan model.StreamEvent)
	handle := abort.NewHandle()

	partial := &model.AssistantMessage{Content: []model.ContentBlock{model.TextBlock("partial")}}
	go func() {
		events <- model.StreamEvent{Kind: model.EventTextDelta, TextDelta: "partial", Partial: partial}
		handle.Abort("test abort")
	}()

	// Give the event a moment to be consumed before racing abort.
	time.Sleep(10 * time.Millisecond)

	msg, err := Process(context.Background(), events, handle.Signal(), nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if msg.StopReason != model.StopAborted {
		t.Fatalf("stop reason = %v, want Aborted", msg.StopReason)
	}
	if msg.ErrorMessage == nil || *msg.ErrorMessage != "Aborted" {
		t.Fatalf("error message = %v, want Aborted", msg.ErrorMessage)
	}
}
