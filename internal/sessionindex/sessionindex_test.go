package sessionindex

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openclaude/openclaude/internal/journal"
)

func TestIndexAndListSessions(t *testing.T) {
	root := t.TempDir()
	store := journal.NewStore(root)

	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer idx.Close()

	older := store.New("/work/proj")
	older.AppendUserMessage("hi")
	require.NoError(t, store.Save(context.Background(), older))
	require.NoError(t, idx.IndexSession(store.Path(older.Header.CWD, older.Header.ID), older))

	time.Sleep(10 * time.Millisecond)

	newer := store.New("/work/proj")
	newer.AppendUserMessage("hi")
	newer.AppendAssistantMessage(nil)
	require.NoError(t, store.Save(context.Background(), newer))
	require.NoError(t, idx.IndexSession(store.Path(newer.Header.CWD, newer.Header.ID), newer))

	rows, err := idx.ListSessions("/work/proj")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, newer.Header.ID, rows[0].ID, "newest session first")
	require.Equal(t, 2, rows[0].MessageCount)
}

func TestRebuildRootToleratesLoss(t *testing.T) {
	root := t.TempDir()
	store := journal.NewStore(root)
	sess := store.New("/work")
	sess.AppendUserMessage("hi")
	require.NoError(t, store.Save(context.Background(), sess))

	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.RebuildRoot(root))
	rows, err := idx.ListSessions("")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
