package journal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// Store mediates load/save of Session files rooted at a sessions
// directory. It is safe to share across goroutines:
// every save acquires an advisory file-range lock scoped to the target
// path.
type Store struct {
	root string
}

// NewStore constructs a Store rooted at root. Pass "" to use
// DefaultSessionsRoot().
func NewStore(root string) *Store {
	if root == "" {
		root = DefaultSessionsRoot()
	}
	return &Store{root: root}
}

// Root returns the sessions root directory.
func (s *Store) Root() string { return s.root }

// ForSessionsRoot returns a copy of the Store rooted at a different
// directory (used by tests).
func (s *Store) ForSessionsRoot(root string) *Store {
	return &Store{root: root}
}

// New creates an empty, unsaved Session with a generated id.
func (s *Store) New(cwd string) *Session {
	return &Session{
		Header: SessionHeader{
			SchemaVersion: SchemaVersion,
			ID:            uuid.NewString(),
			TimestampISO:  nowISO(),
			CWD:           cwd,
		},
		byID: map[string]int{},
	}
}

// Path returns the on-disk path a session with this id/cwd would occupy.
func (s *Store) Path(cwd, id string) string {
	return PathFor(s.root, cwd, id)
}

// Load reads and parses a session file at path, skipping corrupt lines
// and unknown entry variants rather than aborting.
func (s *Store) Load(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, path)
		}
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		return nil, ErrEmptySession
	}
	var header SessionHeader
	if err := json.Unmarshal(bytes.TrimSpace(scanner.Bytes()), &header); err != nil {
		return nil, fmt.Errorf("parse session header: %w", err)
	}

	sess := &Session{Header: header, byID: map[string]int{}}

	pos := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			// Corrupted line: skip, continue.
			continue
		}
		if !entry.KnownVariant() {
			// Unknown entry variant: skip with a warning rather than
			// aborting the load.
			slog.Warn("journal: skipping unknown entry variant", "path", path, "type", entry.Kind)
			continue
		}
		if entry.ID == "" {
			// Deterministic derivation from position so old files
			// remain addressable.
			entry.ID = derivedEntryID(header.ID, pos)
		}
		sess.appendLoaded(entry)
		pos++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if len(sess.Entries) > 0 {
		sess.LeafID = sess.Entries[len(sess.Entries)-1].ID
	}
	sess.path = path
	return sess, nil
}

// derivedEntryID produces a stable id for an entry missing one on read.
func derivedEntryID(sessionID string, pos int) string {
	return sessionID + "#" + strconv.Itoa(pos)
}

// appendLoaded appends an already-validated entry during Load, without
// touching LeafID (the caller sets it once at the end).
func (s *Session) appendLoaded(e Entry) {
	s.byID[e.ID] = len(s.Entries)
	s.Entries = append(s.Entries, e)
}

// Save atomically persists the session: serialize to a sibling temp
// file, fsync, then rename. Concurrent savers are
// serialized with an advisory file-range lock so the file is never
// observed half-written; on any error the original file is left
// untouched.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if sess.path == "" {
		sess.path = s.Path(sess.Header.CWD, sess.Header.ID)
	}
	path := sess.path

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	lockPath := path + ".lock"
	lock := flock.New(lockPath)
	locked, err := lockWithContext(ctx, lock)
	if err != nil {
		return err
	}
	if !locked {
		return fmt.Errorf("journal: failed to acquire lock on %s", lockPath)
	}
	defer lock.Unlock()

	var buf bytes.Buffer
	headerBytes, err := json.Marshal(sess.Header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	buf.Write(headerBytes)
	buf.WriteByte('\n')
	for _, entry := range sess.Entries {
		entryBytes, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal entry %s: %w", entry.ID, err)
		}
		buf.Write(entryBytes)
		buf.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpPath := tmp.Name()
	// Clean up the temp file on any early return; the rename below
	// removes the need for this once it succeeds.
	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename session file: %w", err)
	}
	succeeded = true
	return nil
}

// lockWithContext acquires an exclusive flock, honoring ctx cancellation
// as a distinct aborted-lock error.
func lockWithContext(ctx context.Context, lock *flock.Flock) (bool, error) {
	done := make(chan error, 1)
	go func() {
		_, err := lock.TryLockContext(ctx, 5*time.Millisecond)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%w: %v", ErrLockAborted, ctx.Err())
	case err := <-done:
		if err != nil {
			if ctx.Err() != nil {
				return false, fmt.Errorf("%w: %v", ErrLockAborted, err)
			}
			return false, fmt.Errorf("journal: lock error: %w", err)
		}
		return lock.Locked(), nil
	}
}
