package journal

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// push appends an entry, stamping id/parent/timestamp, and retargets
// LeafID to it. Every append op in this file is a thin wrapper over
// push.
func (s *Session) push(e Entry) string {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.ParentID = s.LeafID
	if e.TimestampISO == "" {
		e.TimestampISO = nowISO()
	}
	if s.byID == nil {
		s.byID = map[string]int{}
	}
	s.byID[e.ID] = len(s.Entries)
	s.Entries = append(s.Entries, e)
	s.LeafID = e.ID
	return e.ID
}

// AppendUserMessage appends a user message entry.
func (s *Session) AppendUserMessage(text string) string {
	return s.push(Entry{Kind: EntryMessage, MessageKind: MsgUser, Text: text})
}

// AppendUserBlocksMessage appends a user message entry carrying
// structured content blocks rather than plain text.
func (s *Session) AppendUserBlocksMessage(content json.RawMessage) string {
	return s.push(Entry{Kind: EntryMessage, MessageKind: MsgUser, Content: content})
}

// AppendAssistantMessage appends an assistant message entry; content is
// the serialized []model.ContentBlock.
func (s *Session) AppendAssistantMessage(content json.RawMessage) string {
	return s.push(Entry{Kind: EntryMessage, MessageKind: MsgAssistant, Content: content})
}

// AppendToolResult appends a tool result entry.
func (s *Session) AppendToolResult(toolCallID, toolName string, content json.RawMessage, details json.RawMessage, isError bool) string {
	return s.push(Entry{
		Kind:        EntryMessage,
		MessageKind: MsgToolResult,
		ToolCallID:  toolCallID,
		ToolName:    toolName,
		Content:     content,
		Details:     details,
		IsError:     isError,
	})
}

// AppendBashExecution appends a bash_execution message entry.
func (s *Session) AppendBashExecution(command, output string, exitCode int) string {
	return s.push(Entry{
		Kind:        EntryMessage,
		MessageKind: MsgBashExecution,
		Command:     command,
		Output:      output,
		ExitCode:    exitCode,
	})
}

// AppendCustomMessage appends a message-level custom entry (display +
// content), distinct from push(Custom) which appends an entry-level
// custom entry carrying arbitrary Data.
func (s *Session) AppendCustomMessage(customType string, content json.RawMessage, display string, details json.RawMessage) string {
	return s.push(Entry{
		Kind:        EntryMessage,
		MessageKind: MsgCustom,
		CustomType:  customType,
		Content:     content,
		Display:     display,
		Details:     details,
	})
}

// AppendModelChange records a provider/model switch.
func (s *Session) AppendModelChange(provider, modelID string) string {
	return s.push(Entry{Kind: EntryModelChange, Provider: provider, ModelID: modelID})
}

// AppendThinkingLevelChange records a thinking-level switch.
func (s *Session) AppendThinkingLevelChange(level string) string {
	return s.push(Entry{Kind: EntryThinkingLevelChange, ThinkingLevel: level})
}

// AppendSessionInfo records a session rename (or clears it if name=="").
func (s *Session) AppendSessionInfo(name string) string {
	return s.push(Entry{Kind: EntrySessionInfo, Name: name})
}

// AppendCompaction records a compaction summary. fromHook may be nil;
// it is preserved round-trip but never interpreted.
func (s *Session) AppendCompaction(summary, firstKeptEntryID string, tokensBefore int, details json.RawMessage, fromHook *bool) string {
	return s.push(Entry{
		Kind:             EntryCompaction,
		Summary:          summary,
		FirstKeptEntryID: firstKeptEntryID,
		TokensBefore:     tokensBefore,
		Details:          details,
		FromHook:         fromHook,
	})
}

// AppendBranchSummary records an entry-level branch_summary entry
// describing a branch point (distinct from the inner MsgBranchSummary
// message variant, which is a SessionMessage carried inside an
// EntryMessage).
func (s *Session) AppendBranchSummary(fromID, summary string) string {
	return s.push(Entry{Kind: EntryBranchSummary, FromID: fromID, Summary: summary})
}

// AddLabel appends a label entry. label=nil clears a previously set
// label on the target entry.
func (s *Session) AddLabel(targetID string, label *string) string {
	return s.push(Entry{Kind: EntryLabel, TargetID: targetID, Label: label})
}

// Push appends a generic Custom entry carrying arbitrary opaque data.
func (s *Session) Push(customType string, data json.RawMessage) string {
	return s.push(Entry{Kind: EntryCustom, CustomType: customType, Data: data})
}

// Fork reassigns the session to a fresh id and detaches it from its
// on-disk file, recording the source session path as BranchedFrom. The
// next Save derives a new path, leaving the source file untouched.
func (s *Session) Fork(newID string) {
	if s.path != "" {
		s.Header.BranchedFrom = s.path
	}
	s.Header.ID = newID
	s.path = ""
}

// CreateBranchFrom validates that entryID exists, then retargets LeafID
// to it so the next append produces a second child of that ancestor.
func (s *Session) CreateBranchFrom(entryID string) error {
	if _, ok := s.byID[entryID]; !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	s.LeafID = entryID
	return nil
}

// GetPathToEntry returns the linearized ancestry from root to id,
// inclusive. The head has ParentID == "".
func (s *Session) GetPathToEntry(id string) ([]Entry, error) {
	idx, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}

	var reversed []Entry
	cur := s.Entries[idx]
	for {
		reversed = append(reversed, cur)
		if cur.ParentID == "" {
			break
		}
		parentIdx, ok := s.byID[cur.ParentID]
		if !ok {
			break
		}
		cur = s.Entries[parentIdx]
	}

	path := make([]Entry, len(reversed))
	for i, e := range reversed {
		path[len(reversed)-1-i] = e
	}
	return path, nil
}

// BranchSummary describes the branch graph derived from parent pointers.
type BranchSummary struct {
	// Leaves are entries that are not the ParentID of any other entry.
	Leaves []string
	// BranchPoints are entries with >= 2 children.
	BranchPoints []string
}

// Summarize derives leaves and branch points with a single pass over
// parent pointers, without materializing child lists eagerly.
func (s *Session) Summarize() BranchSummary {
	childCount := make(map[string]int, len(s.Entries))
	isParent := make(map[string]bool, len(s.Entries))
	for _, e := range s.Entries {
		if e.ParentID == "" {
			continue
		}
		childCount[e.ParentID]++
		isParent[e.ParentID] = true
	}

	var summary BranchSummary
	for _, e := range s.Entries {
		if !isParent[e.ID] {
			summary.Leaves = append(summary.Leaves, e.ID)
		}
		if childCount[e.ID] >= 2 {
			summary.BranchPoints = append(summary.BranchPoints, e.ID)
		}
	}
	return summary
}

// SessionName returns the most recently set display name for sess, or ""
// if no EntrySessionInfo entry has ever been appended.
func SessionName(sess *Session) string {
	name := ""
	for _, e := range sess.Entries {
		if e.Kind == EntrySessionInfo {
			name = e.Name
		}
	}
	return name
}

// EntryByID returns the entry with the given id, if present.
func (s *Session) EntryByID(id string) (Entry, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return Entry{}, false
	}
	return s.Entries[idx], true
}

// Path returns the file this session was loaded from or last saved to, or
// "" if it has never been saved.
func (s *Session) Path() string { return s.path }
