package anthropicprovider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openclaude/openclaude/internal/model"
	"github.com/openclaude/openclaude/internal/provider"
	"github.com/openclaude/openclaude/internal/testutil"
)

// TestProviderStreamDecodesContentBlockLifecycle verifies the full
// message_start -> content_block_* -> message_delta -> message_stop
// translation into uniform StreamEvents.
func TestProviderStreamDecodesContentBlockLifecycle(testingHandle *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		responseWriter.Header().Set("Content-Type", "text/event-stream")
		flusher := responseWriter.(http.Flusher)

		frames := []struct{ name, data string }{
			{"message_start", `{"message":{"id":"msg_1","model":"claude-x","role":"assistant","usage":{"input_tokens":10}}}`},
			{"content_block_start", `{"index":0,"content_block":{"type":"text","text":""}}`},
			{"content_block_delta", `{"index":0,"delta":{"type":"text_delta","text":"hi"}}`},
			{"content_block_stop", `{"index":0}`},
			{"message_delta", `{"delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":3}}`},
			{"message_stop", `{}`},
		}
		for _, f := range frames {
			_, _ = fmt.Fprintf(responseWriter, "event: %s\ndata: %s\n\n", f.name, f.data)
			flusher.Flush()
		}
	}))
	defer server.Close()

	p := New("claude-x", server.URL, "test-key", 5*time.Second)
	reqCtx := &provider.Context{Messages: []model.Message{model.NewUserMessage("hello", 0)}}

	events, err := p.Stream(context.Background(), reqCtx, &provider.StreamOptions{})
	testutil.RequireNoError(testingHandle, err, "stream")

	var seen []model.StreamEvent
	for ev := range events {
		seen = append(seen, ev)
	}

	testutil.RequireTrue(testingHandle, len(seen) > 0, "expected events")
	testutil.RequireEqual(testingHandle, seen[0].Kind, model.EventStart, "first event")

	last := seen[len(seen)-1]
	testutil.RequireTrue(testingHandle, last.IsTerminal(), "last event terminal")
	testutil.RequireEqual(testingHandle, last.DoneMessage.Text(), "hi", "assembled text")
	testutil.RequireEqual(testingHandle, last.DoneReason, model.StopStop, "stop reason")
	testutil.RequireEqual(testingHandle, last.DoneMessage.Usage.Input, uint64(10), "input tokens")
	testutil.RequireEqual(testingHandle, last.DoneMessage.Usage.Output, uint64(3), "output tokens")

	terminalCount := 0
	for _, ev := range seen {
		if ev.IsTerminal() {
			terminalCount++
		}
	}
	testutil.RequireEqual(testingHandle, terminalCount, 1, "exactly one terminal event")
}
