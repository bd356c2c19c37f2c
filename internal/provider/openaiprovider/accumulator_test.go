package openaiprovider

import (
	"testing"

	"github.com/openclaude/openclaude/internal/model"
	"github.com/openclaude/openclaude/internal/testutil"
)

func finishReason(reason string) *string { return &reason }

// TestAccumulatorAssemblesTextAndToolCall verifies the delta-to-event
// translation for an interleaved text-then-tool-call turn.
func TestAccumulatorAssemblesTextAndToolCall(testingHandle *testing.T) {
	acc := newAccumulator("openai", "openai-compatible", "model-x")

	events := acc.apply(chatChunk{
		Choices: []chunkChoice{{Index: 0, Delta: chunkDelta{Content: "Hello "}}},
	})
	testutil.RequireEqual(testingHandle, len(events), 2, "expected text_start + text_delta")
	testutil.RequireEqual(testingHandle, events[0].Kind, model.EventTextStart, "first event kind")
	testutil.RequireEqual(testingHandle, events[1].Kind, model.EventTextDelta, "second event kind")
	testutil.RequireEqual(testingHandle, events[1].TextDelta, "Hello ", "text delta payload")

	events = acc.apply(chatChunk{
		Choices: []chunkChoice{{Index: 0, Delta: chunkDelta{
			ToolCalls: []chunkToolCall{{
				Index:    0,
				ID:       "call_1",
				Function: chunkFunction{Name: "read_file", Arguments: `{"path":`},
			}},
		}}},
	})
	testutil.RequireTrue(testingHandle, len(events) >= 2, "expected tool_call_start + delta events")
	testutil.RequireEqual(testingHandle, events[0].Kind, model.EventToolCallStart, "tool call start kind")
	testutil.RequireEqual(testingHandle, events[0].ToolCallName, "read_file", "tool call name")

	events = acc.apply(chatChunk{
		Choices: []chunkChoice{{
			Index:        0,
			Delta:        chunkDelta{ToolCalls: []chunkToolCall{{Index: 0, Function: chunkFunction{Arguments: `"a.txt"}`}}}},
			FinishReason: finishReason("tool_calls"),
		}},
	})
	var sawToolEnd bool
	for _, ev := range events {
		if ev.Kind == model.EventToolCallEnd {
			sawToolEnd = true
		}
	}
	testutil.RequireTrue(testingHandle, sawToolEnd, "expected tool_call_end after finish_reason")

	final := acc.finalMessage()
	testutil.RequireEqual(testingHandle, final.StopReason, model.StopToolUse, "final stop reason")
	calls := final.ToolCalls()
	testutil.RequireEqual(testingHandle, len(calls), 1, "expected one accumulated tool call")
	testutil.RequireEqual(testingHandle, string(calls[0].Arguments), `{"path":"a.txt"}`, "accumulated arguments")
	testutil.RequireEqual(testingHandle, final.Text(), "Hello ", "accumulated text")
}
