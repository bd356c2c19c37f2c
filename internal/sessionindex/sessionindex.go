// Package sessionindex implements the secondary per-project index that
// makes "list/resume my sessions in this project" O(scan) rather than
// O(parse-every-file). It is an authoritative cache: every
// successful journal.Store.Save should also call IndexSession, but the
// index can be rebuilt from scratch from the JSONL files at any time.
package sessionindex

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/openclaude/openclaude/internal/journal"
)

// SessionMeta is one index row.
type SessionMeta struct {
	Path           string
	ID             string
	CWD            string
	TimestampISO   string
	MessageCount   int
	LastModifiedMS int64
	SizeBytes      int64
	Name           string
}

// Index is a sqlite-backed cache of SessionMeta rows keyed by (cwd, id).
// Loss-tolerant: RebuildRoot re-derives every row from the JSONL files
// under a sessions root.
type Index struct {
	mu   sync.Mutex
	db   *sql.DB
	root string
}

// Open opens (creating if necessary) the index database under dbPath.
func Open(dbPath string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	// Index writes are serialized per sessions_root by our own mutex
	//; a single connection keeps sqlite's own locking out
	// of the way.
	db.SetMaxOpenConns(1)

	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) migrate() error {
	_, err := idx.db.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
	cwd TEXT NOT NULL,
	id TEXT NOT NULL,
	path TEXT NOT NULL,
	timestamp_iso TEXT NOT NULL,
	message_count INTEGER NOT NULL,
	last_modified_ms INTEGER NOT NULL,
	size_bytes INTEGER NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (cwd, id)
);
CREATE INDEX IF NOT EXISTS idx_sessions_cwd ON sessions(cwd);
CREATE INDEX IF NOT EXISTS idx_sessions_mtime ON sessions(last_modified_ms DESC);
`)
	if err != nil {
		return fmt.Errorf("migrate index schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// ForSessionsRoot records the sessions root this index caches metadata
// for, used by RebuildRoot. It does not change where the
// index database itself lives.
func (idx *Index) ForSessionsRoot(root string) *Index {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.root = root
	return idx
}

// IndexSession upserts a row for sess, computing message_count from the
// in-memory entries and mtime/size from the file on disk.
func (idx *Index) IndexSession(path string, sess *journal.Session) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat session file: %w", err)
	}

	messageCount := 0
	for _, e := range sess.Entries {
		if e.Kind == journal.EntryMessage {
			messageCount++
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, err = idx.db.Exec(`
INSERT INTO sessions (cwd, id, path, timestamp_iso, message_count, last_modified_ms, size_bytes, name)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(cwd, id) DO UPDATE SET
	path=excluded.path,
	timestamp_iso=excluded.timestamp_iso,
	message_count=excluded.message_count,
	last_modified_ms=excluded.last_modified_ms,
	size_bytes=excluded.size_bytes,
	name=excluded.name
`,
		sess.Header.CWD, sess.Header.ID, path, sess.Header.TimestampISO,
		messageCount, info.ModTime().UnixMilli(), info.Size(), journal.SessionName(sess))
	if err != nil {
		return fmt.Errorf("upsert session index row: %w", err)
	}
	return nil
}

// ListSessions returns rows, optionally filtered by cwd, ordered by
// last_modified_ms descending with id as a lexicographic tiebreak.
func (idx *Index) ListSessions(cwd string) ([]SessionMeta, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	query := `SELECT cwd, id, path, timestamp_iso, message_count, last_modified_ms, size_bytes, name FROM sessions`
	args := []any{}
	if cwd != "" {
		query += ` WHERE cwd = ?`
		args = append(args, cwd)
	}
	query += ` ORDER BY last_modified_ms DESC, id ASC`

	rows, err := idx.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query session index: %w", err)
	}
	defer rows.Close()

	var out []SessionMeta
	for rows.Next() {
		var m SessionMeta
		if err := rows.Scan(&m.CWD, &m.ID, &m.Path, &m.TimestampISO, &m.MessageCount, &m.LastModifiedMS, &m.SizeBytes, &m.Name); err != nil {
			return nil, fmt.Errorf("scan session index row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RebuildRoot recomputes every row from the JSONL files under root,
// tolerating a lost or corrupted database entirely.
func (idx *Index) RebuildRoot(root string) error {
	store := journal.NewStore(root)
	matches, err := filepath.Glob(filepath.Join(root, "*", "*.jsonl"))
	if err != nil {
		return fmt.Errorf("glob session files: %w", err)
	}
	for _, path := range matches {
		sess, err := store.Load(path)
		if err != nil {
			// A corrupt or unreadable file just doesn't get a row;
			// rebuilding tolerates loss.
			continue
		}
		if err := idx.IndexSession(path, sess); err != nil {
			continue
		}
	}
	return nil
}
