package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/openclaude/openclaude/internal/testutil"
)

func TestLoadMissingFileReturnsEmptyStore(t *testing.T) {
	dir := t.TempDir()
	store, err := Load(filepath.Join(dir, "auth.json"))
	testutil.RequireNoError(t, err, "load")
	if len(store.Providers()) != 0 {
		t.Fatalf("expected empty store, got %v", store.Providers())
	}
}

func TestSetSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.json")

	store, err := Load(path)
	testutil.RequireNoError(t, err, "load")

	store.Set("anthropic", json.RawMessage(`{"token":"abc"}`))
	testutil.RequireNoError(t, store.Save(), "save")

	reloaded, err := Load(path)
	testutil.RequireNoError(t, err, "reload")

	cred, ok := reloaded.Get("anthropic")
	if !ok {
		t.Fatal("expected anthropic credential to round-trip")
	}
	var decoded struct {
		Token string `json:"token"`
	}
	testutil.RequireNoError(t, json.Unmarshal(cred, &decoded), "unmarshal credential")
	testutil.RequireEqual(t, decoded.Token, "abc", "token")
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.json")

	store, err := Load(path)
	testutil.RequireNoError(t, err, "load")
	store.Set("openai", json.RawMessage(`"x"`))
	testutil.RequireNoError(t, store.Save(), "save")

	entries, err := os.ReadDir(dir)
	testutil.RequireNoError(t, err, "readdir")
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("leftover temp file after save: %s", e.Name())
		}
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	store, err := Load(filepath.Join(dir, "auth.json"))
	testutil.RequireNoError(t, err, "load")
	store.Set("anthropic", json.RawMessage(`"x"`))
	store.Remove("anthropic")
	if _, ok := store.Get("anthropic"); ok {
		t.Fatal("expected credential removed")
	}
}
