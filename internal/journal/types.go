// Package journal implements the session journal: an
// append-only, branchable, crash-safe conversation log persisted as
// newline-delimited JSON under a per-working-directory namespace, with a
// parent-id entry forest supporting in-file branches.
package journal

import (
	"encoding/json"
	"time"
)

// SchemaVersion is the session file format version.
const SchemaVersion = 3

// SessionHeader is line 1 of a session file.
type SessionHeader struct {
	SchemaVersion  int    `json:"version"`
	ID             string `json:"id"`
	TimestampISO   string `json:"timestamp"`
	CWD            string `json:"cwd"`
	Provider       string `json:"provider,omitempty"`
	ModelID        string `json:"modelId,omitempty"`
	ThinkingLevel  string `json:"thinkingLevel,omitempty"`
	BranchedFrom   string `json:"branchedFrom,omitempty"`
}

// headerWire mirrors SessionHeader's on-disk shape, including the "type"
// discriminator and the deprecated parentSession alias accepted on read.
type headerWire struct {
	Type          string `json:"type"`
	Version       int    `json:"version"`
	ID            string `json:"id"`
	Timestamp     string `json:"timestamp"`
	CWD           string `json:"cwd"`
	Provider      string `json:"provider,omitempty"`
	ModelID       string `json:"modelId,omitempty"`
	ThinkingLevel string `json:"thinkingLevel,omitempty"`
	BranchedFrom  string `json:"branchedFrom,omitempty"`
	ParentSession string `json:"parentSession,omitempty"`
}

// MarshalJSON emits only branchedFrom, never the deprecated alias.
func (h SessionHeader) MarshalJSON() ([]byte, error) {
	return json.Marshal(headerWire{
		Type:          "session",
		Version:       SchemaVersion,
		ID:            h.ID,
		Timestamp:     h.TimestampISO,
		CWD:           h.CWD,
		Provider:      h.Provider,
		ModelID:       h.ModelID,
		ThinkingLevel: h.ThinkingLevel,
		BranchedFrom:  h.BranchedFrom,
	})
}

// UnmarshalJSON accepts branchedFrom, falling back to the deprecated
// parentSession alias when branchedFrom is absent.
func (h *SessionHeader) UnmarshalJSON(data []byte) error {
	var w headerWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	h.SchemaVersion = w.Version
	h.ID = w.ID
	h.TimestampISO = w.Timestamp
	h.CWD = w.CWD
	h.Provider = w.Provider
	h.ModelID = w.ModelID
	h.ThinkingLevel = w.ThinkingLevel
	h.BranchedFrom = w.BranchedFrom
	if h.BranchedFrom == "" {
		h.BranchedFrom = w.ParentSession
	}
	return nil
}

// EntryKind discriminates SessionEntry variants.
type EntryKind string

const (
	EntryMessage             EntryKind = "message"
	EntryModelChange         EntryKind = "model_change"
	EntryThinkingLevelChange EntryKind = "thinking_level_change"
	EntrySessionInfo         EntryKind = "session_info"
	EntryLabel               EntryKind = "label"
	EntryCompaction          EntryKind = "compaction"
	EntryBranchSummary       EntryKind = "branch_summary"
	EntryCustom              EntryKind = "custom"
)

// MessageKind discriminates the inner SessionMessage variants nested
// inside an EntryMessage entry.
type MessageKind string

const (
	MsgUser              MessageKind = "user"
	MsgAssistant         MessageKind = "assistant"
	MsgToolResult        MessageKind = "tool_result"
	MsgBashExecution     MessageKind = "bash_execution"
	MsgCustom            MessageKind = "custom"
	MsgBranchSummary     MessageKind = "branch_summary"
	MsgCompactionSummary MessageKind = "compaction_summary"
)

// Entry is one line of a session file after the header: EntryBase plus a
// tagged payload. Only the fields relevant to Kind/MessageKind are
// populated; unused fields are the zero value.
type Entry struct {
	ID           string    `json:"id"`
	ParentID     string    `json:"parentId,omitempty"`
	TimestampISO string    `json:"timestamp"`
	Kind         EntryKind `json:"type"`

	// EntryMessage payload.
	MessageKind MessageKind `json:"-"`

	// User/Assistant/ToolResult/BashExecution/Custom/BranchSummary/
	// CompactionSummary message content, shared across MessageKind
	// variants below.
	Text       string          `json:"text,omitempty"`
	Content    json.RawMessage `json:"content,omitempty"`
	Role       string          `json:"role,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	IsError    bool            `json:"isError,omitempty"`
	Command    string          `json:"command,omitempty"`
	Output     string          `json:"output,omitempty"`
	ExitCode   int             `json:"exitCode,omitempty"`
	CustomType string          `json:"customType,omitempty"`
	Display    string          `json:"display,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	FromID     string          `json:"fromId,omitempty"`
	Summary    string          `json:"summary,omitempty"`
	TokensBefore int           `json:"tokensBefore,omitempty"`

	// ModelChange.
	Provider string `json:"provider,omitempty"`
	ModelID  string `json:"modelId,omitempty"`

	// ThinkingLevelChange.
	ThinkingLevel string `json:"thinkingLevel,omitempty"`

	// SessionInfo.
	Name string `json:"name,omitempty"`

	// Label.
	TargetID string  `json:"targetId,omitempty"`
	Label    *string `json:"label,omitempty"`

	// Compaction.
	FirstKeptEntryID string `json:"firstKeptEntryId,omitempty"`
	FromHook         *bool  `json:"fromHook,omitempty"`

	// Custom (entry-level, distinct from MsgCustom).
	Data json.RawMessage `json:"data,omitempty"`
}

// entryWire is Entry's on-disk shape: the entry kind goes in the JSON
// "type" field, and a message entry carries its inner message kind in a
// separate "messageType" field.
type entryWire struct {
	ID        string `json:"id,omitempty"`
	ParentID  string `json:"parentId,omitempty"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`

	Text         string          `json:"text,omitempty"`
	Content      json.RawMessage `json:"content,omitempty"`
	Role         string          `json:"role,omitempty"`
	ToolCallID   string          `json:"toolCallId,omitempty"`
	ToolName     string          `json:"toolName,omitempty"`
	IsError      bool            `json:"isError,omitempty"`
	Command      string          `json:"command,omitempty"`
	Output       string          `json:"output,omitempty"`
	ExitCode     int             `json:"exitCode,omitempty"`
	CustomType   string          `json:"customType,omitempty"`
	Display      string          `json:"display,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	FromID       string          `json:"fromId,omitempty"`
	Summary      string          `json:"summary,omitempty"`
	TokensBefore int             `json:"tokensBefore,omitempty"`

	Provider string `json:"provider,omitempty"`
	ModelID  string `json:"modelId,omitempty"`

	ThinkingLevel string `json:"thinkingLevel,omitempty"`

	Name string `json:"name,omitempty"`

	TargetID string  `json:"targetId,omitempty"`
	Label    *string `json:"label,omitempty"`

	FirstKeptEntryID string `json:"firstKeptEntryId,omitempty"`
	FromHook         *bool  `json:"fromHook,omitempty"`

	Data json.RawMessage `json:"data,omitempty"`

	// MessageType carries the inner message-kind discriminator when
	// Type == "message".
	MessageType string `json:"messageType,omitempty"`
}

// messageKindToWire and wireToMessageKind translate the inner message
// discriminator used when Kind == EntryMessage.
var messageKindToWire = map[MessageKind]string{
	MsgUser:              "user",
	MsgAssistant:         "assistant",
	MsgToolResult:        "tool_result",
	MsgBashExecution:     "bash_execution",
	MsgCustom:            "custom",
	MsgBranchSummary:     "branch_summary",
	MsgCompactionSummary: "compaction_summary",
}

var wireToMessageKind = func() map[string]MessageKind {
	m := make(map[string]MessageKind, len(messageKindToWire))
	for k, v := range messageKindToWire {
		m[v] = k
	}
	return m
}()

// MarshalJSON serializes an Entry to its wire representation.
func (e Entry) MarshalJSON() ([]byte, error) {
	w := entryWire{
		ID:               e.ID,
		ParentID:         e.ParentID,
		Timestamp:        e.TimestampISO,
		Type:             string(e.Kind),
		Text:             e.Text,
		Content:          e.Content,
		Role:             e.Role,
		ToolCallID:       e.ToolCallID,
		ToolName:         e.ToolName,
		IsError:          e.IsError,
		Command:          e.Command,
		Output:           e.Output,
		ExitCode:         e.ExitCode,
		CustomType:       e.CustomType,
		Display:          e.Display,
		Details:          e.Details,
		FromID:           e.FromID,
		Summary:          e.Summary,
		TokensBefore:     e.TokensBefore,
		Provider:         e.Provider,
		ModelID:          e.ModelID,
		ThinkingLevel:    e.ThinkingLevel,
		Name:             e.Name,
		TargetID:         e.TargetID,
		Label:            e.Label,
		FirstKeptEntryID: e.FirstKeptEntryID,
		FromHook:         e.FromHook,
		Data:             e.Data,
	}
	if e.Kind == EntryMessage {
		w.MessageType = messageKindToWire[e.MessageKind]
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses an Entry, leaving MessageKind zero for non-message
// entries and for message entries with an unrecognized inner type (the
// loader treats that as an unknown variant to skip, not a parse error).
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w entryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Entry{
		ID:               w.ID,
		ParentID:         w.ParentID,
		TimestampISO:     w.Timestamp,
		Kind:             EntryKind(w.Type),
		Text:             w.Text,
		Content:          w.Content,
		Role:             w.Role,
		ToolCallID:       w.ToolCallID,
		ToolName:         w.ToolName,
		IsError:          w.IsError,
		Command:          w.Command,
		Output:           w.Output,
		ExitCode:         w.ExitCode,
		CustomType:       w.CustomType,
		Display:          w.Display,
		Details:          w.Details,
		FromID:           w.FromID,
		Summary:          w.Summary,
		TokensBefore:     w.TokensBefore,
		Provider:         w.Provider,
		ModelID:          w.ModelID,
		ThinkingLevel:    w.ThinkingLevel,
		Name:             w.Name,
		TargetID:         w.TargetID,
		Label:            w.Label,
		FirstKeptEntryID: w.FirstKeptEntryID,
		FromHook:         w.FromHook,
		Data:             w.Data,
	}
	if e.Kind == EntryMessage {
		e.MessageKind = wireToMessageKind[w.MessageType]
	}
	return nil
}

// KnownVariant reports whether the entry's (Kind, MessageKind) pair is one
// this loader understands. Unknown variants are skipped on load rather
// than aborting it.
func (e Entry) KnownVariant() bool {
	switch e.Kind {
	case EntryModelChange, EntryThinkingLevelChange, EntrySessionInfo,
		EntryLabel, EntryCompaction, EntryBranchSummary, EntryCustom:
		return true
	case EntryMessage:
		_, ok := messageKindToWire[e.MessageKind]
		return ok
	default:
		return false
	}
}

// Session is a header plus an ordered sequence of entries plus the
// current tip.
type Session struct {
	Header  SessionHeader
	Entries []Entry
	LeafID  string

	// path is the file this Session was loaded from or will be saved to;
	// empty until first save.
	path string

	byID map[string]int
}

// nowISO returns the current time as RFC 3339, the format entries and
// the header carry.
func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
