package agentloop

import (
	"context"
	"testing"

	"github.com/openclaude/openclaude/internal/journal"
	"github.com/openclaude/openclaude/internal/model"
)

func TestAgentSessionPersistsOnlyThisTurn(t *testing.T) {
	dir := t.TempDir()
	store := journal.NewStore(dir)
	sess := store.New("/work")

	scripted := &scriptedProvider{script: []model.AssistantMessage{
		{Content: []model.ContentBlock{model.TextBlock("hi")}, StopReason: model.StopStop},
	}}
	reg := newRegistry(t, t.TempDir())
	agent := &Agent{Provider: scripted, Registry: reg, Config: Config{MaxToolIterations: 4}}

	as := NewAgentSession(agent, sess, store)
	final, err := as.Prompt(context.Background(), nil, model.UserContent{Text: "hello"}, nil)
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if final.StopReason != model.StopStop {
		t.Fatalf("stop reason = %v", final.StopReason)
	}
	if len(sess.Entries) != 2 {
		t.Fatalf("entries = %d, want 2 (user, assistant)", len(sess.Entries))
	}

	reloaded, err := store.Load(store.Path(sess.Header.CWD, sess.Header.ID))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reloaded.Entries) != 2 {
		t.Fatalf("reloaded entries = %d, want 2", len(reloaded.Entries))
	}
}

// fakeIndexer records every IndexSession call so tests can assert the
// binding wires every successful save to the secondary index.
type fakeIndexer struct {
	calls []string
}

func (f *fakeIndexer) IndexSession(path string, sess *journal.Session) error {
	f.calls = append(f.calls, path)
	return nil
}

func TestAgentSessionIndexesOnSuccessfulSave(t *testing.T) {
	dir := t.TempDir()
	store := journal.NewStore(dir)
	sess := store.New("/work")

	scripted := &scriptedProvider{script: []model.AssistantMessage{
		{Content: []model.ContentBlock{model.TextBlock("hi")}, StopReason: model.StopStop},
	}}
	reg := newRegistry(t, t.TempDir())
	agent := &Agent{Provider: scripted, Registry: reg, Config: Config{MaxToolIterations: 4}}

	indexer := &fakeIndexer{}
	as := NewAgentSession(agent, sess, store).WithIndex(indexer)
	if _, err := as.Prompt(context.Background(), nil, model.UserContent{Text: "hello"}, nil); err != nil {
		t.Fatalf("Prompt: %v", err)
	}

	if len(indexer.calls) != 1 {
		t.Fatalf("IndexSession calls = %d, want 1", len(indexer.calls))
	}
	if indexer.calls[0] != sess.Path() {
		t.Fatalf("indexed path = %q, want %q", indexer.calls[0], sess.Path())
	}
}

func TestReplayMessagesReconstructsActiveBranch(t *testing.T) {
	dir := t.TempDir()
	store := journal.NewStore(dir)
	sess := store.New("/work")
	sess.AppendUserMessage("hi")
	sess.AppendAssistantMessage([]byte(`[{"type":"text","text":"hello there"}]`))

	messages, err := ReplayMessages(sess)
	if err != nil {
		t.Fatalf("ReplayMessages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(messages))
	}
	if messages[0].Kind != model.MessageUser || messages[0].UserContent.Text != "hi" {
		t.Fatalf("messages[0] = %+v", messages[0])
	}
	if messages[1].Kind != model.MessageAssistant || messages[1].Assistant.Text() != "hello there" {
		t.Fatalf("messages[1] = %+v", messages[1])
	}
}
