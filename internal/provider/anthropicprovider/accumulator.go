package anthropicprovider

import (
	"encoding/json"
	"strings"

	"github.com/openclaude/openclaude/internal/model"
)

// blockState tracks one content block across content_block_start/delta/stop.
type blockState struct {
	kind model.ContentKind
	text strings.Builder
	id   string
	name string
	args strings.Builder
}

// accumulator turns Anthropic's named SSE frames (message_start,
// content_block_start/delta/stop, message_delta, message_stop) into
// model.StreamEvents.
type accumulator struct {
	modelID string

	blocks     map[int]*blockState
	blockOrder []int
	usage      model.Usage
	stopReason model.StopReason
}

func newAccumulator(modelID string) *accumulator {
	return &accumulator{modelID: modelID, blocks: make(map[int]*blockState)}
}

// applyFrame processes one named SSE event and returns the StreamEvents it
// produces, whether the stream has reached message_stop, and a fatal error
// if the frame was an Anthropic "error" event.
func (a *accumulator) applyFrame(name, data string) (events []model.StreamEvent, terminal bool, fatal error) {
	switch name {
	case "message_start":
		var ev messageStartEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, false, err
		}
		if ev.Message.Usage != nil {
			a.usage = usageFrom(ev.Message.Usage)
		}
		return []model.StreamEvent{{Kind: model.EventStart, Partial: a.snapshot()}}, false, nil

	case "content_block_start":
		var ev contentBlockStartEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, false, err
		}
		st := &blockState{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
		switch ev.ContentBlock.Type {
		case "text":
			st.kind = model.ContentText
			st.text.WriteString(ev.ContentBlock.Text)
		case "thinking":
			st.kind = model.ContentThinking
		case "tool_use":
			st.kind = model.ContentToolCall
		default:
			st.kind = model.ContentText
		}
		a.blocks[ev.Index] = st
		a.blockOrder = append(a.blockOrder, ev.Index)
		return []model.StreamEvent{a.startEventFor(ev.Index, st)}, false, nil

	case "content_block_delta":
		var ev contentBlockDeltaEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, false, err
		}
		st, ok := a.blocks[ev.Index]
		if !ok {
			return nil, false, nil
		}
		switch ev.Delta.Type {
		case "text_delta":
			st.text.WriteString(ev.Delta.Text)
			return []model.StreamEvent{{Kind: model.EventTextDelta, Partial: a.snapshot(), Index: ev.Index, TextDelta: ev.Delta.Text}}, false, nil
		case "thinking_delta":
			st.text.WriteString(ev.Delta.Thinking)
			return []model.StreamEvent{{Kind: model.EventThinkingDelta, Partial: a.snapshot(), Index: ev.Index, TextDelta: ev.Delta.Thinking}}, false, nil
		case "input_json_delta":
			st.args.WriteString(ev.Delta.PartialJSON)
			return []model.StreamEvent{{Kind: model.EventToolCallDelta, Partial: a.snapshot(), Index: ev.Index, ToolCallArgsDelta: ev.Delta.PartialJSON}}, false, nil
		default:
			return nil, false, nil
		}

	case "content_block_stop":
		var ev contentBlockStopEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, false, err
		}
		st, ok := a.blocks[ev.Index]
		if !ok {
			return nil, false, nil
		}
		return []model.StreamEvent{a.stopEventFor(ev.Index, st)}, false, nil

	case "message_delta":
		var ev messageDeltaEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, false, err
		}
		if ev.Delta.StopReason != "" {
			a.stopReason = mapStopReason(ev.Delta.StopReason)
		}
		if ev.Usage != nil {
			a.usage.Add(usageFrom(ev.Usage))
		}
		return nil, false, nil

	case "message_stop":
		final := a.finalMessage()
		return []model.StreamEvent{{Kind: model.EventDone, Partial: &final, DoneReason: final.StopReason, DoneMessage: final}}, true, nil

	case "error":
		var ev errorEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, false, err
		}
		return nil, false, &apiMessageError{message: ev.Error.Message}

	case "ping":
		return nil, false, nil

	default:
		return nil, false, nil
	}
}

type apiMessageError struct{ message string }

func (e *apiMessageError) Error() string { return e.message }

func (a *accumulator) startEventFor(index int, st *blockState) model.StreamEvent {
	switch st.kind {
	case model.ContentThinking:
		return model.StreamEvent{Kind: model.EventThinkingStart, Partial: a.snapshot(), Index: index}
	case model.ContentToolCall:
		return model.StreamEvent{Kind: model.EventToolCallStart, Partial: a.snapshot(), Index: index, ToolCallID: st.id, ToolCallName: st.name}
	default:
		return model.StreamEvent{Kind: model.EventTextStart, Partial: a.snapshot(), Index: index}
	}
}

func (a *accumulator) stopEventFor(index int, st *blockState) model.StreamEvent {
	switch st.kind {
	case model.ContentThinking:
		return model.StreamEvent{Kind: model.EventThinkingEnd, Partial: a.snapshot(), Index: index}
	case model.ContentToolCall:
		return model.StreamEvent{Kind: model.EventToolCallEnd, Partial: a.snapshot(), Index: index}
	default:
		return model.StreamEvent{Kind: model.EventTextEnd, Partial: a.snapshot(), Index: index}
	}
}

func mapStopReason(reason string) model.StopReason {
	switch reason {
	case "tool_use":
		return model.StopToolUse
	case "max_tokens":
		return model.StopLength
	case "end_turn", "stop_sequence":
		return model.StopStop
	default:
		return model.StopStop
	}
}

func usageFrom(u *usage) model.Usage {
	return model.Usage{
		Input:      uint64(u.InputTokens),
		Output:     uint64(u.OutputTokens),
		CacheRead:  uint64(u.CacheReadInputTokens),
		CacheWrite: uint64(u.CacheCreationInputTokens),
		Total:      uint64(u.InputTokens + u.OutputTokens),
	}
}

func (a *accumulator) snapshot() *model.AssistantMessage {
	msg := a.finalMessage()
	return &msg
}

func (a *accumulator) finalMessage() model.AssistantMessage {
	blocks := make([]model.ContentBlock, 0, len(a.blockOrder))
	for _, idx := range a.blockOrder {
		st := a.blocks[idx]
		switch st.kind {
		case model.ContentText:
			blocks = append(blocks, model.TextBlock(st.text.String()))
		case model.ContentThinking:
			blocks = append(blocks, model.ThinkingBlock(st.text.String()))
		case model.ContentToolCall:
			args := json.RawMessage(st.args.String())
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			blocks = append(blocks, model.ToolCallBlock(st.id, st.name, args))
		}
	}

	stop := a.stopReason
	if stop == "" {
		stop = model.StopStop
	}

	return model.AssistantMessage{
		Content:    blocks,
		API:        "anthropic",
		Provider:   "anthropic",
		Model:      a.modelID,
		Usage:      a.usage,
		StopReason: stop,
	}
}
