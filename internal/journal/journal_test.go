package journal

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBranchingRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	sess := store.New("/work/proj")
	rootID := sess.AppendUserMessage("Root")
	aID := sess.AppendAssistantMessage([]byte(`[{"type":"text","text":"Branch A"}]`))

	require.NoError(t, sess.CreateBranchFrom(rootID))
	bID := sess.AppendAssistantMessage([]byte(`[{"type":"text","text":"Branch B"}]`))

	require.NoError(t, store.Save(context.Background(), sess))

	reloaded, err := store.Load(sess.path)
	require.NoError(t, err)
	require.Len(t, reloaded.Entries, 3)

	root, _ := reloaded.EntryByID(rootID)
	a, _ := reloaded.EntryByID(aID)
	b, _ := reloaded.EntryByID(bID)
	assert.Empty(t, root.ParentID)
	assert.Equal(t, rootID, a.ParentID)
	assert.Equal(t, rootID, b.ParentID)

	summary := reloaded.Summarize()
	assert.ElementsMatch(t, []string{aID, bID}, summary.Leaves)
	assert.Contains(t, summary.BranchPoints, rootID)
}

func TestGetPathToEntry(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	sess := store.New("/work")

	r := sess.AppendUserMessage("r")
	mid := sess.AppendAssistantMessage(nil)
	leaf := sess.AppendUserMessage("leaf")

	path, err := sess.GetPathToEntry(leaf)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, r, path[0].ID)
	assert.Equal(t, mid, path[1].ID)
	assert.Equal(t, leaf, path[len(path)-1].ID)
	assert.Empty(t, path[0].ParentID)
}

func TestLoadSkipsCorruptedLine(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	sess := store.New("/work")
	sess.AppendUserMessage("one")
	sess.AppendUserMessage("two")

	require.NoError(t, store.Save(context.Background(), sess))

	raw, err := os.ReadFile(sess.path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	// Inject a corrupt line after the header and first entry.
	withCorruption := make([]string, 0, len(lines)+1)
	withCorruption = append(withCorruption, lines[:2]...)
	withCorruption = append(withCorruption, "{ this is not json }")
	withCorruption = append(withCorruption, lines[2:]...)
	require.NoError(t, os.WriteFile(sess.path, []byte(strings.Join(withCorruption, "\n")+"\n"), 0o644))

	reloaded, err := store.Load(sess.path)
	require.NoError(t, err)
	assert.Len(t, reloaded.Entries, 2)
}

func TestLoadMissingFileIsSessionNotFound(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Load(store.Path("/nope", "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")
}

func TestBranchedFromAliasAcceptsParentSession(t *testing.T) {
	var h SessionHeader
	raw := []byte(`{"type":"session","version":3,"id":"x","timestamp":"2024-01-01T00:00:00Z","cwd":"/w","parentSession":"parent-id"}`)
	require.NoError(t, h.UnmarshalJSON(raw))
	assert.Equal(t, "parent-id", h.BranchedFrom)

	out, err := h.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "parentSession")
	assert.Contains(t, string(out), `"branchedFrom":"parent-id"`)
}

func TestEncodeDecodeCWDRoundTrip(t *testing.T) {
	for _, cwd := range []string{"/home/user/proj", "/tmp/a-b/c_d", "/weird path/with spaces"} {
		encoded := EncodeCWD(cwd)
		assert.NotContains(t, encoded, "/")
		decoded, err := DecodeCWD(encoded)
		require.NoError(t, err)
		assert.Equal(t, cwd, decoded)
	}
}
