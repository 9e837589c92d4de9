// Package index implements the structured, queryable store derived from raw
// session captures. It is backed by a single SQLite file shared by every
// recording process; writers serialize through SQLite's write lock with a
// bounded retry window on top.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/hasuno2/Blackcell/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS logs (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		ts      TEXT NOT NULL,
		command TEXT NOT NULL,
		output  TEXT,
		session TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_logs_ts      ON logs(ts);
	CREATE INDEX IF NOT EXISTS idx_logs_session ON logs(session);

	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		tty        TEXT NOT NULL DEFAULT '',
		shell      TEXT NOT NULL DEFAULT '',
		log_path   TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL DEFAULT 'closed'
	);

	CREATE TABLE IF NOT EXISTS sync_state (
		session TEXT PRIMARY KEY,
		offset  INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
`

// tsLayout is how entry and session timestamps are persisted.
const tsLayout = time.RFC3339

// Store is a handle on the SQLite-backed index.
type Store struct {
	db    *sql.DB
	path  string
	clock clock.Clock
	log   *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock substitutes the clock used for retry backoff. Tests inject a
// mock so contention paths run without real sleeps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger attaches a logger for internal diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open opens (creating if needed) the index at path and ensures the schema.
// A database that fails SQLite's integrity check is reported as
// domain.ErrCorruptIndex; the caller is expected to discard the file and
// rebuild from raw logs.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create index dir: %v", domain.ErrStorageUnavailable, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open index: %v", domain.ErrStorageUnavailable, err)
	}

	s := &Store{db: db, path: path, clock: clock.New(), log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 1000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			if isCorrupt(err) {
				return nil, fmt.Errorf("%w: pragma %q: %v", domain.ErrCorruptIndex, p, err)
			}
			return nil, fmt.Errorf("%w: pragma %q: %v", domain.ErrStorageUnavailable, p, err)
		}
	}

	var check string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&check); err != nil || check != "ok" {
		db.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: integrity check: %v", domain.ErrCorruptIndex, err)
		}
		return nil, fmt.Errorf("%w: integrity check: %s", domain.ErrCorruptIndex, check)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: schema: %v", domain.ErrCorruptIndex, err)
	}

	return s, nil
}

// isCorrupt classifies SQLite errors that mean the database file itself is
// damaged rather than temporarily unavailable.
func isCorrupt(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "not a database") ||
		strings.Contains(msg, "malformed") ||
		strings.Contains(msg, "SQLITE_CORRUPT")
}

// Path returns the index file location.
func (s *Store) Path() string {
	return s.path
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Discard closes the store and removes the database file (with its WAL
// sidecars), the recovery path for a corrupt index.
func (s *Store) Discard() error {
	if err := s.db.Close(); err != nil {
		s.log.Warn("closing corrupt index", zap.Error(err))
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(s.path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove %s: %v", domain.ErrStorageUnavailable, s.path+suffix, err)
		}
	}
	return nil
}

// Reset deletes the index database files without opening them, used to
// recover from a database too corrupt to open.
func Reset(path string) error {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove %s: %v", domain.ErrStorageUnavailable, path+suffix, err)
		}
	}
	return nil
}

const rebuildMarkerKey = "rebuild_in_progress"

// SetRebuildMarker persists the build-in-progress flag. It is committed
// before destructive work starts so a crash mid-rebuild is detectable.
// Contention follows the same bounded-retry discipline as every other
// write, surfacing ErrIndexBusy rather than a raw driver error.
func (s *Store) SetRebuildMarker(ctx context.Context) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			rebuildMarkerKey, s.clock.Now().Format(tsLayout),
		)
		if err != nil {
			return fmt.Errorf("set rebuild marker: %w", err)
		}
		return nil
	})
}

// RebuildInterrupted reports whether a previous rebuild died before
// clearing its marker.
func (s *Store) RebuildInterrupted(ctx context.Context) (bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM meta WHERE key = ?", rebuildMarkerKey,
	).Scan(&v)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read rebuild marker: %w", err)
	}
	return true, nil
}
