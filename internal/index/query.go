package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hasuno2/Blackcell/internal/domain"
)

// Reads run outside the write lock (WAL mode), so a query may observe a
// slightly stale index but never blocks on an in-flight RecordCommand.

// ListSessions returns every registered session, most recent first, with
// its indexed command count.
func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.started_at, s.tty, s.shell, s.log_path, s.status,
		       COUNT(l.id)
		FROM sessions s
		LEFT JOIN logs l ON l.session = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC, s.id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// GetSession looks up one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.started_at, s.tty, s.shell, s.log_path, s.status,
		       COUNT(l.id)
		FROM sessions s
		LEFT JOIN logs l ON l.session = s.id
		WHERE s.id = ?
		GROUP BY s.id`,
		id,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return sess, err
}

// SessionEntries returns a session's indexed entries in append order.
func (s *Store) SessionEntries(ctx context.Context, sessionID string) ([]domain.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, ts, command, output, session FROM logs WHERE session = ? ORDER BY id ASC",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("session entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Search returns entries whose command or output contains keyword,
// case-insensitively, most recent first.
func (s *Store) Search(ctx context.Context, keyword string) ([]domain.LogEntry, error) {
	like := "%" + keyword + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, command, output, session
		FROM logs
		WHERE command LIKE ? OR output LIKE ?
		ORDER BY ts DESC, id DESC`,
		like, like,
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// SyncOffset returns the recorded consumption offset for a session's raw
// log, zero when none has been recorded yet.
func (s *Store) SyncOffset(ctx context.Context, sessionID string) (int64, error) {
	var offset int64
	err := s.db.QueryRowContext(ctx,
		"SELECT offset FROM sync_state WHERE session = ?", sessionID,
	).Scan(&offset)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sync offset: %w", err)
	}
	return offset, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		sess             domain.Session
		startedAt, state string
	)
	err := row.Scan(&sess.ID, &startedAt, &sess.TTY, &sess.Shell, &sess.LogPath, &state, &sess.Commands)
	if err != nil {
		return domain.Session{}, err
	}
	sess.Status = domain.SessionStatus(state)
	sess.StartedAt, _ = time.Parse(tsLayout, startedAt)
	return sess, nil
}

func scanEntries(rows *sql.Rows) ([]domain.LogEntry, error) {
	var entries []domain.LogEntry
	for rows.Next() {
		var (
			e      domain.LogEntry
			ts     string
			output sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Command, &output, &e.Session); err != nil {
			return nil, err
		}
		e.Output = output.String
		e.Timestamp, _ = time.Parse(tsLayout, ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
