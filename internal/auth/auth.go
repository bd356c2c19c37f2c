// Package auth implements OAuth credential storage: a single
// JSON file mapping provider name to an opaque credential payload, loaded
// once per process and saved atomically. Credentials are never echoed to
// history or session files.
package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Storage holds the provider→credential map backing a single auth file.
// Single-writer policy: the RPC front-end and the interactive
// host must not both mutate the same path concurrently — callers are
// responsible for honoring that, Storage only serializes its own method
// calls.
type Storage struct {
	mu    sync.Mutex
	path  string
	creds map[string]json.RawMessage
}

// DefaultPath returns the per-user auth file path, honoring
// PI_CODING_AGENT_DIR, matching the override journal.
// DefaultSessionsRoot and scanner.DefaultPackageDir use for their own
// per-user defaults.
func DefaultPath() string {
	if dir := os.Getenv("PI_CODING_AGENT_DIR"); dir != "" {
		return filepath.Join(dir, "auth.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".pi", "auth.json")
}

// Load reads the auth file at path, returning an empty store if the file
// does not exist or is empty.
func Load(path string) (*Storage, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Storage{path: path, creds: map[string]json.RawMessage{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &Storage{path: path, creds: map[string]json.RawMessage{}}, nil
	}
	var creds map[string]json.RawMessage
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("auth: parse %s: %w", path, err)
	}
	if creds == nil {
		creds = map[string]json.RawMessage{}
	}
	return &Storage{path: path, creds: creds}, nil
}

// Path returns the file this store loads from and saves to.
func (s *Storage) Path() string { return s.path }

// Get returns the raw credential payload for provider, if present.
func (s *Storage) Get(provider string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[provider]
	return cred, ok
}

// Set stores (or replaces) the credential payload for provider. Callers
// must call Save to persist the change.
func (s *Storage) Set(provider string, cred json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		s.creds = map[string]json.RawMessage{}
	}
	s.creds[provider] = cred
}

// Remove deletes provider's credential, if any. Callers must call Save to
// persist the change.
func (s *Storage) Remove(provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, provider)
}

// Providers returns the set of providers with a stored credential.
func (s *Storage) Providers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.creds))
	for name := range s.creds {
		names = append(names, name)
	}
	return names
}

// Save atomically writes the store to its path: serialize, write to a
// sibling temp file, then rename (the same write-temp-then-rename
// discipline the session journal uses, for the same crash-safety reason).
func (s *Storage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("auth: create dir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(s.creds, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".auth-*.tmp")
	if err != nil {
		return fmt.Errorf("auth: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("auth: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("auth: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("auth: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("auth: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("auth: rename: %w", err)
	}
	succeeded = true
	return nil
}
