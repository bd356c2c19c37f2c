package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/openclaude/openclaude/internal/abort"
	"github.com/openclaude/openclaude/internal/journal"
	"github.com/openclaude/openclaude/internal/model"
)

// sessionIndexer is the subset of sessionindex.Index a bound AgentSession
// needs: one upsert per successful save. Expressed as an interface so tests can
// supply a null indexer and production code can pass a real
// *sessionindex.Index without an import cycle (sessionindex doesn't depend
// on agentloop).
type sessionIndexer interface {
	IndexSession(path string, sess *journal.Session) error
}

// AgentSession binds one Agent to one journal.Session, persisting only
// the messages a single invocation produced. Session access is serialized
// through mu around save/append sequences.
type AgentSession struct {
	mu      sync.Mutex
	Agent   *Agent
	Session *journal.Session
	Store   *journal.Store
	Index   sessionIndexer

	// replayOnly, when true, makes Prompt and RecordBashExecution skip
	// persistence. NewAgentSession leaves it false and nothing sets it.
	replayOnly bool
}

// NewAgentSession binds agent to sess, persisted through store.
func NewAgentSession(agent *Agent, sess *journal.Session, store *journal.Store) *AgentSession {
	return &AgentSession{Agent: agent, Session: sess, Store: store}
}

// WithIndex attaches a secondary session index that every successful Save
// also updates. Returns as for chaining.
func (as *AgentSession) WithIndex(index sessionIndexer) *AgentSession {
	as.Index = index
	return as
}

// Prompt runs one user turn and appends exactly the entries that turn
// produced to the bound session: the user message, then the assistant
// message(s) and tool results the loop generated, in the order they
// occurred.
func (as *AgentSession) Prompt(ctx context.Context, signal *abort.Signal, content model.UserContent, onEvent func(Event)) (*model.AssistantMessage, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	startIdx := len(as.Agent.Messages)

	final, runErr := as.Agent.Run(ctx, signal, content, onEvent)

	// Persist every message this invocation produced, even on error, so
	// a failed turn still leaves a replayable trail up to the failure
	// point.
	for _, msg := range as.Agent.Messages[startIdx:] {
		as.appendToSession(msg)
	}

	if as.Store != nil && !as.replayOnly {
		if err := as.Store.Save(ctx, as.Session); err != nil {
			if runErr != nil {
				return final, fmt.Errorf("%w (and save failed: %v)", runErr, err)
			}
			return final, fmt.Errorf("save session: %w", err)
		}
		// The index is a rebuildable cache: a failure here
		// never fails the turn, it only means list_sessions is stale until
		// the next successful save or an explicit rebuild.
		if as.Index != nil {
			_ = as.Index.IndexSession(as.Session.Path(), as.Session)
		}
	}

	return final, runErr
}

// RecordBashExecution appends a direct shell execution (the interactive
// "!" input mode) to the bound session and saves it, following the same
// persistence path as Prompt.
func (as *AgentSession) RecordBashExecution(ctx context.Context, command, output string, exitCode int) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	as.Session.AppendBashExecution(command, output, exitCode)
	if as.Store == nil || as.replayOnly {
		return nil
	}
	if err := as.Store.Save(ctx, as.Session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if as.Index != nil {
		_ = as.Index.IndexSession(as.Session.Path(), as.Session)
	}
	return nil
}

// appendToSession maps a model.Message onto the corresponding
// journal.Entry append operation.
func (as *AgentSession) appendToSession(msg model.Message) {
	switch msg.Kind {
	case model.MessageUser:
		if msg.UserContent.IsBlocks() {
			content, _ := json.Marshal(msg.UserContent.Blocks)
			as.Session.AppendUserBlocksMessage(content)
		} else {
			as.Session.AppendUserMessage(msg.UserContent.Text)
		}
	case model.MessageAssistant:
		content, _ := json.Marshal(msg.Assistant.Content)
		as.Session.AppendAssistantMessage(content)
	case model.MessageToolResult:
		content, _ := json.Marshal(msg.Content)
		as.Session.AppendToolResult(msg.ToolCallID, msg.ToolName, content, msg.Details, msg.IsError)
	case model.MessageCustom:
		content, _ := json.Marshal(msg.Content)
		as.Session.AppendCustomMessage(msg.CustomType, content, msg.Display, msg.Details)
	}
}

// ReplayMessages reconstructs model.Message history from the active
// branch of sess (the path from root to sess.LeafID), for seeding a
// fresh Agent.Messages before continuing a session.
func ReplayMessages(sess *journal.Session) ([]model.Message, error) {
	if sess.LeafID == "" {
		return nil, nil
	}
	path, err := sess.GetPathToEntry(sess.LeafID)
	if err != nil {
		return nil, err
	}

	var messages []model.Message
	for _, entry := range path {
		if entry.Kind != journal.EntryMessage {
			continue
		}
		msg, ok := entryToMessage(entry)
		if ok {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

func entryToMessage(entry journal.Entry) (model.Message, bool) {
	switch entry.MessageKind {
	case journal.MsgUser:
		if len(entry.Content) > 0 {
			var blocks []model.ContentBlock
			if err := json.Unmarshal(entry.Content, &blocks); err == nil {
				return model.NewUserBlocksMessage(blocks, 0), true
			}
		}
		return model.NewUserMessage(entry.Text, 0), true
	case journal.MsgAssistant:
		var content []model.ContentBlock
		_ = json.Unmarshal(entry.Content, &content)
		return model.NewAssistantMessage(model.AssistantMessage{Content: content}), true
	case journal.MsgToolResult:
		var content []model.ContentBlock
		_ = json.Unmarshal(entry.Content, &content)
		return model.NewToolResultMessage(entry.ToolCallID, entry.ToolName, content, entry.Details, entry.IsError, 0), true
	default:
		return model.Message{}, false
	}
}
