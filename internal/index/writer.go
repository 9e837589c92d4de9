package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hasuno2/Blackcell/internal/domain"
)

// The index is written by many short-lived processes at once. SQLite admits
// one writer at a time; on contention we back off and retry within a bounded
// window, then surface domain.ErrIndexBusy so the per-prompt hook can drop
// the event instead of blocking the shell.
const (
	busyRetries = 5
	busyBackoff = 50 * time.Millisecond
)

// withWriteTx runs fn in a write transaction, retrying busy-lock failures
// with linear backoff before giving up with ErrIndexBusy.
func (s *Store) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt <= busyRetries; attempt++ {
		if attempt > 0 {
			s.clock.Sleep(time.Duration(attempt) * busyBackoff)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			if isBusy(err) {
				lastErr = err
				continue
			}
			return fmt.Errorf("%w: begin tx: %v", domain.ErrStorageUnavailable, err)
		}

		err = fn(tx)
		if err == nil {
			err = tx.Commit()
		} else {
			tx.Rollback()
		}
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", domain.ErrIndexBusy, lastErr)
}

// isBusy classifies SQLite write-lock contention (SQLITE_BUSY / LOCKED).
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// RecordCommand appends one completed command to the index. A session id
// the registry has never seen (index reset after the shell started) is
// re-registered from the metadata embedded in the id rather than failing;
// dropping realtime events would silently desynchronize the index from the
// raw log. An entry with identical session, timestamp and command is
// treated as a retried duplicate and suppressed.
//
// consumed is the raw log's size at record time: every byte up to it is
// represented by realtime entries, so the sync offset advances with the
// insert and a later incremental rebuild resumes past it instead of
// importing the same commands again. Zero means unknown and leaves the
// offset alone.
func (s *Store) RecordCommand(ctx context.Context, sessionID string, ts time.Time, command, output string, consumed int64) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}
	if ts.IsZero() {
		ts = s.clock.Now()
	}

	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if err := ensureSessionTx(tx, domain.ParseSessionID(sessionID)); err != nil {
			return err
		}

		tsText := ts.Format(tsLayout)
		var dup int
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM logs WHERE session = ? AND ts = ? AND command = ?)",
			sessionID, tsText, command,
		).Scan(&dup)
		if err != nil {
			return fmt.Errorf("duplicate check: %w", err)
		}
		if dup == 1 {
			s.log.Debug("suppressing duplicate command",
				zap.String("session", sessionID), zap.String("command", command))
			return advanceOffsetTx(ctx, tx, sessionID, consumed)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO logs (ts, command, output, session) VALUES (?, ?, ?, ?)",
			tsText, command, output, sessionID,
		)
		if err != nil {
			return fmt.Errorf("insert log entry: %w", err)
		}
		return advanceOffsetTx(ctx, tx, sessionID, consumed)
	})
}

// advanceOffsetTx moves a session's sync offset forward, never back. Both
// the forwarder and the rebuilder consume the raw log through this.
func advanceOffsetTx(ctx context.Context, tx *sql.Tx, sessionID string, consumed int64) error {
	if consumed <= 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO sync_state (session, offset) VALUES (?, ?)
		 ON CONFLICT(session) DO UPDATE SET offset = MAX(offset, excluded.offset)`,
		sessionID, consumed,
	)
	if err != nil {
		return fmt.Errorf("advance offset for %s: %w", sessionID, err)
	}
	return nil
}

// ensureSessionTx registers a session if absent, leaving existing rows
// untouched. Used by the forwarder and the rebuilder for sessions known
// only from raw logs.
func ensureSessionTx(tx *sql.Tx, sess domain.Session) error {
	started := sess.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	status := sess.Status
	if status == "" {
		status = domain.SessionClosed
	}
	_, err := tx.Exec(
		`INSERT INTO sessions (id, started_at, tty, shell, log_path, status)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		sess.ID, started.Format(tsLayout), sess.TTY, sess.Shell, sess.LogPath, string(status),
	)
	if err != nil {
		return fmt.Errorf("ensure session %s: %w", sess.ID, err)
	}
	return nil
}

// RegisterSession records a newly begun session in the registry. An
// existing row is refreshed; a session can only move back to open through
// an explicit registration by its recorder.
func (s *Store) RegisterSession(ctx context.Context, sess domain.Session) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, started_at, tty, shell, log_path, status)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				started_at = excluded.started_at,
				tty        = excluded.tty,
				shell      = excluded.shell,
				log_path   = excluded.log_path,
				status     = excluded.status`,
			sess.ID, sess.StartedAt.Format(tsLayout), sess.TTY, sess.Shell,
			sess.LogPath, string(sess.Status),
		)
		if err != nil {
			return fmt.Errorf("register session %s: %w", sess.ID, err)
		}
		return nil
	})
}

// CloseSession marks a session closed. Idempotent: closing an already
// closed or unknown session is a no-op, since the recorder may outlive an
// index reset.
func (s *Store) CloseSession(ctx context.Context, sessionID string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE sessions SET status = ? WHERE id = ?",
			string(domain.SessionClosed), sessionID,
		)
		if err != nil {
			return fmt.Errorf("close session %s: %w", sessionID, err)
		}
		return nil
	})
}
