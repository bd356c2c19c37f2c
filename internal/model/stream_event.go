package model

// StreamEventKind discriminates StreamEvent variants.
type StreamEventKind string

const (
	EventStart          StreamEventKind = "start"
	EventTextStart      StreamEventKind = "text_start"
	EventTextDelta      StreamEventKind = "text_delta"
	EventTextEnd        StreamEventKind = "text_end"
	EventThinkingStart  StreamEventKind = "thinking_start"
	EventThinkingDelta  StreamEventKind = "thinking_delta"
	EventThinkingEnd    StreamEventKind = "thinking_end"
	EventToolCallStart  StreamEventKind = "tool_call_start"
	EventToolCallDelta  StreamEventKind = "tool_call_delta"
	EventToolCallEnd    StreamEventKind = "tool_call_end"
	EventDone           StreamEventKind = "done"
	EventError          StreamEventKind = "error"
)

// StreamEvent is the uniform event a Provider yields. Every variant except
// Done/Error carries a snapshot Partial so consumers never need to
// reimplement incremental assembly.
type StreamEvent struct {
	Kind StreamEventKind

	// Partial is the up-to-date assistant message snapshot, present on
	// every variant except Done/Error.
	Partial *AssistantMessage

	// Index identifies which content block a *Start/*Delta/*End event
	// concerns.
	Index int

	// Text/Thinking deltas.
	TextDelta string

	// ToolCall start/delta.
	ToolCallID        string
	ToolCallName      string
	ToolCallArgsDelta string

	// Done.
	DoneReason  StopReason
	DoneMessage AssistantMessage

	// Error.
	ErrorMessage string
}

// IsTerminal reports whether the event ends a stream (Done or Error).
func (e StreamEvent) IsTerminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}
