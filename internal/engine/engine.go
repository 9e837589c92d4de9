// Package engine ties the raw log store and the structured index together
// behind the operations the CLI exposes. Raw logs always win: any conflict
// between keeping the session recording and keeping the index in sync is
// resolved in favor of recording, because the index is rebuildable.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/hasuno2/Blackcell/internal/capture"
	"github.com/hasuno2/Blackcell/internal/domain"
	"github.com/hasuno2/Blackcell/internal/index"
	"github.com/hasuno2/Blackcell/internal/logstore"
)

// Config carries the engine's externally supplied settings. The engine
// holds no global state; everything is read once at process start.
type Config struct {
	LogRoot    string
	IndexPath  string
	MaxLogSize int64
	Logger     *zap.Logger
	Clock      clock.Clock
}

// Engine reconciles the two stores to answer session and search queries.
type Engine struct {
	logs       *logstore.Store
	idx        *index.Store
	log        *zap.Logger
	clock      clock.Clock
	maxLogSize int64
}

// New opens the engine's stores. An index that fails integrity checks is
// discarded and rebuilt from raw logs instead of aborting.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	logs := logstore.New(cfg.LogRoot)

	idx, err := index.Open(cfg.IndexPath, index.WithLogger(logger), index.WithClock(clk))
	if errors.Is(err, domain.ErrCorruptIndex) {
		logger.Warn("index failed integrity check, rebuilding from raw logs", zap.Error(err))
		if rerr := index.Reset(cfg.IndexPath); rerr != nil {
			return nil, rerr
		}
		idx, err = index.Open(cfg.IndexPath, index.WithLogger(logger), index.WithClock(clk))
		if err == nil {
			if _, err = idx.Rebuild(ctx, logs, index.ModeFullReset); err != nil {
				idx.Close()
				return nil, fmt.Errorf("rebuild after corruption: %w", err)
			}
		}
	}
	if err != nil {
		return nil, err
	}

	return &Engine{
		logs:       logs,
		idx:        idx,
		log:        logger,
		clock:      clk,
		maxLogSize: cfg.MaxLogSize,
	}, nil
}

// Close releases the index handle.
func (e *Engine) Close() error {
	return e.idx.Close()
}

// LogRoot returns the raw log root directory.
func (e *Engine) LogRoot() string {
	return e.logs.Root()
}

// IndexPath returns the structured index file location.
func (e *Engine) IndexPath() string {
	return e.idx.Path()
}

// BeginSession allocates a day-bucketed log file and registers an open
// session. Pruning runs opportunistically here, never mid-write. Index
// registration is best effort: a busy index does not stop the recording,
// since the forwarder re-registers unknown sessions on first use.
func (e *Engine) BeginSession(ctx context.Context, tty, shell string, pid int) (domain.Session, error) {
	if e.maxLogSize > 0 {
		if _, err := e.Prune(ctx, e.maxLogSize); err != nil {
			e.log.Warn("opportunistic prune failed", zap.Error(err))
		}
	}

	sess, err := e.logs.Allocate(e.clock.Now(), tty, shell, pid)
	if err != nil {
		return domain.Session{}, err
	}

	if err := e.idx.RegisterSession(ctx, sess); err != nil {
		e.log.Warn("session registration deferred", zap.String("session", sess.ID), zap.Error(err))
	}
	return sess, nil
}

// EndSession marks a session closed. Idempotent by contract.
func (e *Engine) EndSession(ctx context.Context, sessionID string) error {
	return e.idx.CloseSession(ctx, sessionID)
}

// RecordCommand forwards one completed command into the index. The caller
// (the per-prompt hook path) treats any error as log-and-continue.
//
// The raw log's current size rides along as the consumed offset: the bytes
// on disk at this moment are exactly the commands the hook has already
// forwarded, so a later incremental rebuild resumes after them rather than
// importing the same commands a second time.
func (e *Engine) RecordCommand(ctx context.Context, sessionID string, ts time.Time, command, output string) error {
	var consumed int64
	if path, ok := e.logs.PathFor(sessionID); ok {
		if info, err := os.Stat(path); err == nil {
			consumed = info.Size()
		}
	}

	err := e.idx.RecordCommand(ctx, sessionID, ts, command, output, consumed)
	if errors.Is(err, domain.ErrIndexBusy) {
		e.log.Warn("index busy, dropping realtime event; rebuild recovers it from the raw log",
			zap.String("session", sessionID))
	}
	return err
}

// ListSessions returns the registry's sessions, most recent first. When the
// registry and the on-disk log set disagree (manual deletions, unindexed
// files) the discrepancies come back as warnings and the registry's view
// still stands.
func (e *Engine) ListSessions(ctx context.Context) ([]domain.Session, []string, error) {
	sessions, err := e.idx.ListSessions(ctx)
	if err != nil {
		return nil, nil, err
	}

	var warnings []string
	files, err := e.logs.List()
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("cannot scan log root: %v", err))
		return sessions, warnings, nil
	}

	onDisk := make(map[string]bool, len(files))
	for _, f := range files {
		onDisk[f.Session] = true
	}
	registered := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		registered[s.ID] = true
		if s.LogPath != "" && !onDisk[s.ID] {
			warnings = append(warnings, fmt.Sprintf("raw log for session %s is missing on disk", s.ID))
		}
	}
	for _, f := range files {
		if !registered[f.Session] {
			warnings = append(warnings, fmt.Sprintf("log file %s is not indexed yet (run migrate)", f.Path))
		}
	}
	return sessions, warnings, nil
}

// LastSession returns the most recently started session.
func (e *Engine) LastSession(ctx context.Context) (domain.Session, error) {
	sessions, _, err := e.ListSessions(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	if len(sessions) == 0 {
		return domain.Session{}, fmt.Errorf("%w: no sessions recorded", domain.ErrSessionNotFound)
	}
	return sessions[0], nil
}

// ShowSession returns a session's entries in order. A session the index
// has no entries for (stale or reset index) falls back to parsing its raw
// log on the fly, without mutating the index.
func (e *Engine) ShowSession(ctx context.Context, sessionID string) ([]domain.LogEntry, error) {
	sess, err := e.idx.GetSession(ctx, sessionID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}

	if err == nil && sess.Commands > 0 {
		return e.idx.SessionEntries(ctx, sessionID)
	}

	path, ok := e.logs.PathFor(sessionID)
	if !ok {
		if err != nil {
			return nil, err // genuinely unknown
		}
		return nil, nil // registered session with no commands yet
	}

	e.log.Debug("index has no entries for session, parsing raw log", zap.String("session", sessionID))
	return e.parseRaw(sessionID, path, 0)
}

// parseRaw derives entries straight from a raw log for read-only fallback
// paths, starting at offset. The trailing command is flushed; a live
// session may show its in-flight command here, which is fine for display.
func (e *Engine) parseRaw(sessionID, path string, offset int64) ([]domain.LogEntry, error) {
	res, err := capture.ParseFile(path, offset, true)
	if err != nil {
		return nil, fmt.Errorf("%w: read raw log: %v", domain.ErrStorageUnavailable, err)
	}

	ts := domain.ParseSessionID(sessionID).StartedAt
	entries := make([]domain.LogEntry, 0, len(res.Entries))
	for i, pe := range res.Entries {
		entries = append(entries, domain.LogEntry{
			ID:        int64(i + 1),
			Timestamp: ts,
			Command:   pe.Command,
			Output:    pe.Output,
			Session:   sessionID,
		})
	}
	return entries, nil
}

// Search matches keyword against command and output text, case-insensitive
// substring. Indexed sessions are answered from the index; sessions present
// only as raw files are scanned directly so a stale index never hides
// matches.
func (e *Engine) Search(ctx context.Context, keyword string) ([]domain.SearchHit, []string, error) {
	entries, err := e.idx.Search(ctx, keyword)
	if err != nil {
		return nil, nil, err
	}

	sessions, err := e.idx.ListSessions(ctx)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]domain.Session, len(sessions))
	indexed := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		byID[s.ID] = s
		indexed[s.ID] = s.Commands > 0
	}

	hits := make([]domain.SearchHit, 0, len(entries))
	for _, entry := range entries {
		sess, ok := byID[entry.Session]
		if !ok {
			sess = domain.ParseSessionID(entry.Session)
		}
		hits = append(hits, domain.SearchHit{Session: sess, Entry: entry})
	}

	var warnings []string
	files, err := e.logs.List()
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("cannot scan log root: %v", err))
		return hits, warnings, nil
	}

	// Sessions absent from the index are scanned whole; indexed sessions
	// still get their tail beyond the sync offset scanned, so commands the
	// hook has not forwarded yet are searchable too.
	needle := strings.ToLower(keyword)
	for _, f := range files {
		var offset int64
		if indexed[f.Session] {
			if offset, err = e.idx.SyncOffset(ctx, f.Session); err != nil {
				warnings = append(warnings, fmt.Sprintf("cannot read sync offset for %s: %v", f.Session, err))
				continue
			}
			if offset >= f.Size {
				continue
			}
		}
		raw, err := e.parseRaw(f.Session, f.Path, offset)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("cannot scan %s: %v", f.Path, err))
			continue
		}
		sess, ok := byID[f.Session]
		if !ok {
			sess = domain.ParseSessionID(f.Session)
			sess.LogPath = f.Path
		}
		for _, entry := range raw {
			if strings.Contains(strings.ToLower(entry.Command), needle) ||
				strings.Contains(strings.ToLower(entry.Output), needle) {
				hits = append(hits, domain.SearchHit{Session: sess, Entry: entry})
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Entry.Timestamp.After(hits[j].Entry.Timestamp)
	})
	return hits, warnings, nil
}

// Rebuild reconciles the index with the raw logs.
func (e *Engine) Rebuild(ctx context.Context, mode index.RebuildMode) (index.RebuildStats, error) {
	return e.idx.Rebuild(ctx, e.logs, mode)
}

// Prune removes oversized raw logs belonging to closed sessions. Open
// sessions are exempt regardless of size. Per-file failures are reported
// in the results, never fatal.
func (e *Engine) Prune(ctx context.Context, maxBytes int64) ([]logstore.PruneResult, error) {
	sessions, err := e.idx.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	open := map[string]bool{}
	for _, s := range sessions {
		if s.Status == domain.SessionOpen {
			open[s.ID] = true
		}
	}

	results, err := e.logs.PruneOversized(maxBytes, func(id string) bool { return open[id] })
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.Err != nil {
			e.log.Warn("prune failed for file", zap.String("path", r.Path), zap.Error(r.Err))
		} else {
			e.log.Info("pruned oversized log", zap.String("path", r.Path), zap.Int64("size", r.Size))
		}
	}
	return results, nil
}
