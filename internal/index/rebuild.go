package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hasuno2/Blackcell/internal/capture"
	"github.com/hasuno2/Blackcell/internal/domain"
	"github.com/hasuno2/Blackcell/internal/logstore"
)

// RebuildMode selects how the migrator reconciles the index with raw logs.
type RebuildMode int

const (
	// ModeAuto picks incremental normally, or full reset when a previous
	// rebuild was interrupted and left its marker behind.
	ModeAuto RebuildMode = iota
	// ModeIncremental resumes every raw log from its recorded offset.
	ModeIncremental
	// ModeFullReset discards all entries and offsets, then reimports every
	// raw log from byte 0.
	ModeFullReset
)

func (m RebuildMode) String() string {
	switch m {
	case ModeIncremental:
		return "incremental"
	case ModeFullReset:
		return "full-reset"
	default:
		return "auto"
	}
}

// RebuildStats summarizes one rebuild pass.
type RebuildStats struct {
	Mode     RebuildMode // effective mode after auto resolution
	Files    int
	Sessions int
	Entries  int
}

// parseConcurrency bounds how many raw logs are parsed at once during a
// rebuild. Inserts always serialize on the single index writer.
const parseConcurrency = 4

type parsedFile struct {
	file    logstore.LogFile
	session domain.Session
	offset  int64
	res     capture.Result
	ts      time.Time // timestamp attributed to every rebuilt entry
	err     error
}

// Rebuild reparses raw capture files into the index.
//
// Incremental rebuilds only append and advance offsets monotonically, so
// they run under ordinary write transactions. A full reset performs its
// delete-and-reimport inside a single write transaction: a concurrent
// RecordCommand cannot land between deletion and re-creation, and a crash
// rolls the whole reset back while the persisted marker forces the next
// rebuild to start over.
func (s *Store) Rebuild(ctx context.Context, logs *logstore.Store, mode RebuildMode) (RebuildStats, error) {
	if mode == ModeAuto {
		interrupted, err := s.RebuildInterrupted(ctx)
		if err != nil {
			return RebuildStats{}, err
		}
		if interrupted {
			s.log.Warn("previous rebuild was interrupted, forcing full reset")
			mode = ModeFullReset
		} else {
			mode = ModeIncremental
		}
	}
	stats := RebuildStats{Mode: mode}

	files, err := logs.List()
	if err != nil {
		return stats, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	stats.Files = len(files)
	if len(files) == 0 && mode != ModeFullReset {
		return stats, nil
	}

	openSessions, err := s.sessionStatuses(ctx)
	if err != nil {
		return stats, err
	}
	offsets := map[string]int64{}
	if mode == ModeIncremental {
		if offsets, err = s.syncOffsets(ctx); err != nil {
			return stats, err
		}
	}

	parsed := make([]parsedFile, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parseConcurrency)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p := parsedFile{file: f, session: domain.ParseSessionID(f.Session), offset: offsets[f.Session]}
			p.session.LogPath = f.Path

			// An open session's trailing command may still be producing
			// output; hold it back for a later pass. Closed or unregistered
			// sessions can no longer grow, so their tail is flushed.
			flush := !openSessions[f.Session]
			p.res, p.err = capture.ParseFile(f.Path, p.offset, flush)

			p.ts = p.session.StartedAt
			if p.ts.IsZero() {
				p.ts = f.ModTime
			}
			parsed[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	for i := range parsed {
		if parsed[i].res.Incomplete {
			s.log.Debug("trailing data withheld until the session closes",
				zap.String("session", parsed[i].file.Session))
		}
	}

	if mode == ModeFullReset {
		return s.applyFullReset(ctx, stats, parsed)
	}
	return s.applyIncremental(ctx, stats, parsed)
}

func (s *Store) applyFullReset(ctx context.Context, stats RebuildStats, parsed []parsedFile) (RebuildStats, error) {
	if err := s.SetRebuildMarker(ctx); err != nil {
		return stats, err
	}

	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM logs"); err != nil {
			return fmt.Errorf("reset logs: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM sync_state"); err != nil {
			return fmt.Errorf("reset sync state: %w", err)
		}

		for i := range parsed {
			n, err := importFileTx(ctx, tx, &parsed[i], 0)
			if err != nil {
				return err
			}
			if n > 0 {
				stats.Sessions++
			}
			stats.Entries += n
		}

		// Clearing the marker inside the transaction makes "rebuild
		// finished" atomic with the rebuilt content.
		if _, err := tx.ExecContext(ctx, "DELETE FROM meta WHERE key = ?", rebuildMarkerKey); err != nil {
			return fmt.Errorf("clear rebuild marker: %w", err)
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	s.log.Info("full index reset complete",
		zap.Int("files", stats.Files), zap.Int("entries", stats.Entries))
	return stats, nil
}

func (s *Store) applyIncremental(ctx context.Context, stats RebuildStats, parsed []parsedFile) (RebuildStats, error) {
	for i := range parsed {
		p := &parsed[i]
		err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
			n, err := importFileTx(ctx, tx, p, p.offset)
			if err != nil {
				return err
			}
			if n > 0 {
				stats.Sessions++
			}
			stats.Entries += n
			return nil
		})
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// importFileTx registers the file's session, appends its parsed entries and
// advances the sync offset. Offsets only ever move forward; a shorter parse
// (e.g. a concurrently pruned file) never rewinds indexed state.
func importFileTx(ctx context.Context, tx *sql.Tx, p *parsedFile, prevOffset int64) (int, error) {
	if p.err != nil {
		// Unreadable file: skip, leave its offset alone, keep going. The raw
		// log is still the source of truth for a later pass.
		return 0, nil
	}
	if err := ensureSessionTx(tx, p.session); err != nil {
		return 0, err
	}

	tsText := p.ts.Format(tsLayout)
	for _, e := range p.res.Entries {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO logs (ts, command, output, session) VALUES (?, ?, ?, ?)",
			tsText, e.Command, e.Output, p.file.Session,
		); err != nil {
			return 0, fmt.Errorf("import %s: %w", p.file.Session, err)
		}
	}

	if p.res.Consumed > prevOffset {
		if err := advanceOffsetTx(ctx, tx, p.file.Session, p.res.Consumed); err != nil {
			return 0, err
		}
	}
	return len(p.res.Entries), nil
}

func (s *Store) sessionStatuses(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM sessions WHERE status = ?", string(domain.SessionOpen))
	if err != nil {
		return nil, fmt.Errorf("load session statuses: %w", err)
	}
	defer rows.Close()

	open := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		open[id] = true
	}
	return open, rows.Err()
}

func (s *Store) syncOffsets(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT session, offset FROM sync_state")
	if err != nil {
		return nil, fmt.Errorf("load sync offsets: %w", err)
	}
	defer rows.Close()

	offsets := map[string]int64{}
	for rows.Next() {
		var session string
		var offset int64
		if err := rows.Scan(&session, &offset); err != nil {
			return nil, err
		}
		offsets[session] = offset
	}
	return offsets, rows.Err()
}
