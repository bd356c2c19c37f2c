package openaiprovider

import (
	"encoding/json"
	"strings"

	"github.com/openclaude/openclaude/internal/model"
)

// toolState tracks one in-flight tool call by its delta index.
type toolState struct {
	id        string
	name      string
	arguments strings.Builder
	started   bool
}

// accumulator assembles OpenAI-compatible stream deltas into the uniform
// model.StreamEvent sequence, emitting events as content arrives rather
// than only a final message.
type accumulator struct {
	api, provider, model string

	text       strings.Builder
	textOpen   bool
	tools      map[int]*toolState
	toolOrder  []int
	usage      model.Usage
	stopReason model.StopReason
}

func newAccumulator(api, provider, modelID string) *accumulator {
	return &accumulator{
		api:      api,
		provider: provider,
		model:    modelID,
		tools:    make(map[int]*toolState),
	}
}

// apply processes one SSE delta and returns the events it produces.
func (a *accumulator) apply(ev chatChunk) []model.StreamEvent {
	var out []model.StreamEvent

	if ev.Usage != nil {
		a.usage = model.Usage{
			Input:  uint64(ev.Usage.PromptTokens),
			Output: uint64(ev.Usage.CompletionTokens),
			Total:  uint64(ev.Usage.TotalTokens),
		}
	}

	for _, choice := range ev.Choices {
		if choice.Index != 0 {
			continue
		}

		if choice.Delta.Content != "" {
			if !a.textOpen {
				a.textOpen = true
				out = append(out, model.StreamEvent{Kind: model.EventTextStart, Partial: a.snapshot()})
			}
			a.text.WriteString(choice.Delta.Content)
			out = append(out, model.StreamEvent{
				Kind:      model.EventTextDelta,
				Partial:   a.snapshot(),
				TextDelta: choice.Delta.Content,
			})
		}

		for _, tc := range choice.Delta.ToolCalls {
			st, ok := a.tools[tc.Index]
			if !ok {
				st = &toolState{}
				a.tools[tc.Index] = st
				a.toolOrder = append(a.toolOrder, tc.Index)
			}
			if tc.ID != "" {
				st.id = tc.ID
			}
			if tc.Function.Name != "" {
				st.name = tc.Function.Name
			}
			if !st.started && (st.id != "" || st.name != "") {
				st.started = true
				out = append(out, model.StreamEvent{
					Kind:         model.EventToolCallStart,
					Partial:      a.snapshot(),
					Index:        tc.Index,
					ToolCallID:   st.id,
					ToolCallName: st.name,
				})
			}
			if tc.Function.Arguments != "" {
				st.arguments.WriteString(tc.Function.Arguments)
				out = append(out, model.StreamEvent{
					Kind:              model.EventToolCallDelta,
					Partial:           a.snapshot(),
					Index:             tc.Index,
					ToolCallArgsDelta: tc.Function.Arguments,
				})
			}
		}

		if choice.FinishReason != nil {
			a.stopReason = mapFinishReason(*choice.FinishReason)
		}
	}

	if a.stopReason != "" {
		if a.textOpen {
			out = append(out, model.StreamEvent{Kind: model.EventTextEnd, Partial: a.snapshot()})
			a.textOpen = false
		}
		for _, idx := range a.toolOrder {
			st := a.tools[idx]
			if st.started {
				out = append(out, model.StreamEvent{Kind: model.EventToolCallEnd, Partial: a.snapshot(), Index: idx})
				st.started = false
			}
		}
	}

	return out
}

func mapFinishReason(reason string) model.StopReason {
	switch reason {
	case "tool_calls", "function_call":
		return model.StopToolUse
	case "length":
		return model.StopLength
	case "stop", "":
		return model.StopStop
	default:
		return model.StopStop
	}
}

// snapshot renders the current accumulation state as the partial
// AssistantMessage every non-terminal event carries.
func (a *accumulator) snapshot() *model.AssistantMessage {
	msg := a.finalMessage()
	return &msg
}

// finalMessage renders the fully accumulated AssistantMessage.
func (a *accumulator) finalMessage() model.AssistantMessage {
	var blocks []model.ContentBlock
	if a.text.Len() > 0 {
		blocks = append(blocks, model.TextBlock(a.text.String()))
	}
	for _, idx := range a.toolOrder {
		st := a.tools[idx]
		args := json.RawMessage(st.arguments.String())
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		blocks = append(blocks, model.ToolCallBlock(st.id, st.name, args))
	}

	stop := a.stopReason
	if stop == "" {
		stop = model.StopStop
	}

	return model.AssistantMessage{
		Content:    blocks,
		API:        a.api,
		Provider:   a.provider,
		Model:      a.model,
		Usage:      a.usage,
		StopReason: stop,
	}
}
