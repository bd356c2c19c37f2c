// Package model defines the uniform message, content-block, stream-event,
// and usage types consumed by every other package: providers produce them,
// the stream processor assembles them, the session journal persists them.
package model

import "encoding/json"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleCustom    Role = "custom"
)

// StopReason reports why an assistant turn ended.
type StopReason string

const (
	StopStop     StopReason = "stop"
	StopLength   StopReason = "length"
	StopToolUse  StopReason = "tool_use"
	StopError    StopReason = "error"
	StopAborted  StopReason = "aborted"
)

// Terminal reports whether the stop reason ends a turn without further
// model calls. ToolUse is the only non-terminal reason: it obliges the
// agent to execute the requested tools and continue.
func (s StopReason) Terminal() bool {
	return s != StopToolUse
}

// ContentBlock is a tagged variant: Text, Thinking, Image, or ToolCall.
// Exactly one of the typed fields is populated per Kind.
type ContentBlock struct {
	Kind ContentKind `json:"type"`

	// Text and Thinking share a text payload plus optional signature.
	Text      string `json:"text,omitempty"`
	Signature string `json:"signature,omitempty"`

	// Image.
	Base64Data string `json:"base64_data,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`

	// ToolCall.
	ID               string          `json:"id,omitempty"`
	Name             string          `json:"name,omitempty"`
	Arguments        json.RawMessage `json:"arguments,omitempty"`
	ThoughtSignature []byte          `json:"thought_signature,omitempty"`
}

// ContentKind discriminates ContentBlock variants.
type ContentKind string

const (
	ContentText     ContentKind = "text"
	ContentThinking ContentKind = "thinking"
	ContentImage    ContentKind = "image"
	ContentToolCall ContentKind = "tool_call"
)

// TextBlock constructs a Text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Kind: ContentText, Text: text}
}

// ThinkingBlock constructs a Thinking content block.
func ThinkingBlock(text string) ContentBlock {
	return ContentBlock{Kind: ContentThinking, Text: text}
}

// ToolCallBlock constructs a ToolCall content block.
func ToolCallBlock(id, name string, arguments json.RawMessage) ContentBlock {
	return ContentBlock{Kind: ContentToolCall, ID: id, Name: name, Arguments: arguments}
}

// Usage reports additive token counters and matched cost doubles.
type Usage struct {
	Input      uint64 `json:"input"`
	Output     uint64 `json:"output"`
	CacheRead  uint64 `json:"cache_read"`
	CacheWrite uint64 `json:"cache_write"`
	Total      uint64 `json:"total_tokens"`

	CostInput      float64 `json:"cost_input"`
	CostOutput     float64 `json:"cost_output"`
	CostCacheRead  float64 `json:"cost_cache_read"`
	CostCacheWrite float64 `json:"cost_cache_write"`
	CostTotal      float64 `json:"cost_total"`
}

// Add accumulates other into u; aggregation is additive across turns.
func (u *Usage) Add(other Usage) {
	u.Input += other.Input
	u.Output += other.Output
	u.CacheRead += other.CacheRead
	u.CacheWrite += other.CacheWrite
	u.Total += other.Total
	u.CostInput += other.CostInput
	u.CostOutput += other.CostOutput
	u.CostCacheRead += other.CostCacheRead
	u.CostCacheWrite += other.CostCacheWrite
	u.CostTotal += other.CostTotal
}

// AssistantMessage is the message an LLM call produces.
type AssistantMessage struct {
	Content      []ContentBlock `json:"content"`
	API          string         `json:"api"`
	Provider     string         `json:"provider"`
	Model        string         `json:"model"`
	Usage        Usage          `json:"usage"`
	StopReason   StopReason     `json:"stop_reason"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	TimestampMS  int64          `json:"timestamp_ms"`
}

// ToolCalls returns the ToolCall blocks in document order.
func (m AssistantMessage) ToolCalls() []ContentBlock {
	var calls []ContentBlock
	for _, block := range m.Content {
		if block.Kind == ContentToolCall {
			calls = append(calls, block)
		}
	}
	return calls
}

// Text concatenates all Text blocks.
func (m AssistantMessage) Text() string {
	var out string
	for _, block := range m.Content {
		if block.Kind == ContentText {
			out += block.Text
		}
	}
	return out
}

// UserContent is either plain text or an ordered sequence of content blocks.
type UserContent struct {
	Text   string
	Blocks []ContentBlock
}

// IsBlocks reports whether the content is a structured block sequence.
func (c UserContent) IsBlocks() bool {
	return c.Blocks != nil
}

// Message is the tagged variant persisted in a session and sent to
// providers: User, Assistant, ToolResult, or Custom.
type Message struct {
	Kind MessageKind `json:"-"`

	// User.
	UserContent UserContent `json:"-"`

	// Assistant.
	Assistant *AssistantMessage `json:"-"`

	// ToolResult.
	ToolCallID string         `json:"-"`
	ToolName   string         `json:"-"`
	Content    []ContentBlock `json:"-"`
	Details    json.RawMessage `json:"-"`
	IsError    bool           `json:"-"`

	// Custom.
	CustomType string `json:"-"`
	Display    string `json:"-"`

	TimestampMS int64 `json:"-"`
}

// MessageKind discriminates Message variants.
type MessageKind string

const (
	MessageUser       MessageKind = "user"
	MessageAssistant  MessageKind = "assistant"
	MessageToolResult MessageKind = "tool_result"
	MessageCustom     MessageKind = "custom"
)

// NewUserMessage builds a plain-text User message.
func NewUserMessage(text string, timestampMS int64) Message {
	return Message{
		Kind:        MessageUser,
		UserContent: UserContent{Text: text},
		TimestampMS: timestampMS,
	}
}

// NewUserBlocksMessage builds a User message from content blocks.
func NewUserBlocksMessage(blocks []ContentBlock, timestampMS int64) Message {
	return Message{
		Kind:        MessageUser,
		UserContent: UserContent{Blocks: blocks},
		TimestampMS: timestampMS,
	}
}

// NewAssistantMessage wraps an AssistantMessage as a Message.
func NewAssistantMessage(msg AssistantMessage) Message {
	return Message{Kind: MessageAssistant, Assistant: &msg, TimestampMS: msg.TimestampMS}
}

// NewToolResultMessage builds a ToolResult message.
func NewToolResultMessage(callID, toolName string, content []ContentBlock, details json.RawMessage, isError bool, timestampMS int64) Message {
	return Message{
		Kind:        MessageToolResult,
		ToolCallID:  callID,
		ToolName:    toolName,
		Content:     content,
		Details:     details,
		IsError:     isError,
		TimestampMS: timestampMS,
	}
}
