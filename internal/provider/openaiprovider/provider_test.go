package openaiprovider

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

// TestProviderStreamEmitsTextThenDone verifies the full adapter: request
// translation in, uniform StreamEvent sequence out, exactly one terminal
// event.
func TestProviderStreamEmitsTextThenDone(testingHandle *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		responseWriter.Header().Set("Content-Type", "text/event-stream")
		flusher := responseWriter.(http.Flusher)
		events := []string{
			`{"id":"req-1","model":"model-x","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
			`{"choices":[{"index":0,"delta":{"content":"hi"}}]}`,
			`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`,
		}
		for _, payload := range events {
			_, _ = fmt.Fprintf(responseWriter, "data: %s\n\n", payload)
			flusher.Flush()
		}
		_, _ = fmt.Fprint(responseWriter, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	p := New("test-provider", "model-x", server.URL, "", 5*time.Second)
	reqCtx := &provider.Context{
		SystemPrompt: "be terse",
		Messages:     []model.Message{model.NewUserMessage("hello", 0)},
	}

	events, err := p.Stream(context.Background(), reqCtx, &provider.StreamOptions{})
	testutil.RequireNoError(testingHandle, err, "stream")

	var seen []model.StreamEvent
	for ev := range events {
		seen = append(seen, ev)
	}

	testutil.RequireTrue(testingHandle, len(seen) > 0, "expected events")
	testutil.RequireEqual(testingHandle, seen[0].Kind, model.EventStart, "first event")

	last := seen[len(seen)-1]
	testutil.RequireTrue(testingHandle, last.IsTerminal(), "last event must be terminal")
	testutil.RequireEqual(testingHandle, last.Kind, model.EventDone, "last event kind")
	testutil.RequireEqual(testingHandle, last.DoneMessage.Text(), "hi", "assembled text")
	testutil.RequireEqual(testingHandle, last.DoneReason, model.StopStop, "stop reason")

	terminalCount := 0
	for _, ev := range seen {
		if ev.IsTerminal() {
			terminalCount++
		}
	}
	testutil.RequireEqual(testingHandle, terminalCount, 1, "exactly one terminal event")
}
