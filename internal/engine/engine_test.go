package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasuno2/Blackcell/internal/domain"
	"github.com/hasuno2/Blackcell/internal/index"
)

func newTestEngine(t *testing.T, maxLogSize int64) (*Engine, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 8, 26, 9, 0, 0, 0, time.Local))

	e, err := New(context.Background(), Config{
		LogRoot:    filepath.Join(t.TempDir(), "logs"),
		IndexPath:  filepath.Join(t.TempDir(), "blackcell.db"),
		MaxLogSize: maxLogSize,
		Clock:      mock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e, mock
}

func appendRaw(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestTwoSessionScenario(t *testing.T) {
	e, mock := newTestEngine(t, 0)
	ctx := context.Background()

	s1, err := e.BeginSession(ctx, "tty1", "bash", 100)
	require.NoError(t, err)
	mock.Add(time.Minute)
	s2, err := e.BeginSession(ctx, "tty2", "bash", 200)
	require.NoError(t, err)

	require.NoError(t, e.RecordCommand(ctx, s1.ID, mock.Now(), "ls", ""))
	mock.Add(time.Second)
	require.NoError(t, e.RecordCommand(ctx, s2.ID, mock.Now(), "cd /tmp", ""))

	sessions, warnings, err := e.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, sessions, 2)
	assert.Equal(t, s2.ID, sessions[0].ID) // most recent first
	assert.Equal(t, s1.ID, sessions[1].ID)

	entries, err := e.ShowSession(ctx, s1.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ls", entries[0].Command)

	last, err := e.LastSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, s2.ID, last.ID)
}

func TestRecordCommandRealtimeVisibility(t *testing.T) {
	e, mock := newTestEngine(t, 0)
	ctx := context.Background()

	sess, err := e.BeginSession(ctx, "/dev/pts/5", "zsh", 42)
	require.NoError(t, err)

	require.NoError(t, e.RecordCommand(ctx, sess.ID, mock.Now(), "git status", "clean"))

	entries, err := e.ShowSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "git status", entries[0].Command)
	assert.Equal(t, "clean", entries[0].Output)
}

func TestRecordCommandUnknownSession(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	ctx := context.Background()

	// The index was reset after this shell started; the forwarder must not
	// drop the event.
	id := "20250826-080000-_dev_pts_9-bash"
	require.NoError(t, e.RecordCommand(ctx, id, time.Now(), "echo hi", "hi"))

	sessions, _, err := e.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)
	assert.Equal(t, "bash", sessions[0].Shell)
}

func TestEndSessionIdempotent(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	ctx := context.Background()

	sess, err := e.BeginSession(ctx, "tty1", "bash", 1)
	require.NoError(t, err)

	require.NoError(t, e.EndSession(ctx, sess.ID))
	require.NoError(t, e.EndSession(ctx, sess.ID))
	require.NoError(t, e.EndSession(ctx, "unknown-session"))
}

func TestShowSessionRawFallback(t *testing.T) {
	e, mock := newTestEngine(t, 0)
	ctx := context.Background()

	sess, err := e.BeginSession(ctx, "tty1", "bash", 1)
	require.NoError(t, err)
	require.NoError(t, e.EndSession(ctx, sess.ID))
	appendRaw(t, sess.LogPath, "$ make build\nok\n$ make test\nPASS\n")

	// Nothing was forwarded, so the index is stale for this session.
	entries, err := e.ShowSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "make build", entries[0].Command)
	assert.Equal(t, "PASS", entries[1].Output)

	// The fallback must not have written anything into the index.
	sessions, _, err := e.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Zero(t, sessions[0].Commands)

	_ = mock
}

func TestShowSessionNotFound(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	_, err := e.ShowSession(context.Background(), "20990101-000000-tty-bash")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSearchFallsBackToRawLogs(t *testing.T) {
	e, mock := newTestEngine(t, 0)
	ctx := context.Background()

	indexed, err := e.BeginSession(ctx, "tty1", "bash", 1)
	require.NoError(t, err)
	require.NoError(t, e.RecordCommand(ctx, indexed.ID, mock.Now(), "kubectl get pods", "none"))

	mock.Add(time.Minute)
	stale, err := e.BeginSession(ctx, "tty2", "bash", 2)
	require.NoError(t, err)
	require.NoError(t, e.EndSession(ctx, stale.ID))
	appendRaw(t, stale.LogPath, "$ kubectl delete pod web\npod deleted\n")

	hits, warnings, err := e.Search(ctx, "KUBECTL")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, hits, 2)

	bySession := map[string]string{}
	for _, h := range hits {
		bySession[h.Session.ID] = h.Entry.Command
	}
	assert.Equal(t, "kubectl get pods", bySession[indexed.ID])
	assert.Equal(t, "kubectl delete pod web", bySession[stale.ID])

	hits, _, err = e.Search(ctx, "no-such-thing")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestPruneScenario(t *testing.T) {
	e, mock := newTestEngine(t, 0)
	ctx := context.Background()

	closed, err := e.BeginSession(ctx, "tty1", "bash", 1)
	require.NoError(t, err)
	require.NoError(t, e.EndSession(ctx, closed.ID))

	mock.Add(time.Minute)
	open, err := e.BeginSession(ctx, "tty2", "bash", 2)
	require.NoError(t, err)

	big := make([]byte, 6_000_000)
	require.NoError(t, os.WriteFile(closed.LogPath, big, 0o644))
	require.NoError(t, os.WriteFile(open.LogPath, big, 0o644))

	results, err := e.Prune(ctx, 5_000_000)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, closed.LogPath, results[0].Path)
	require.NoError(t, results[0].Err)

	_, statErr := os.Stat(open.LogPath)
	assert.NoError(t, statErr, "open session's file must be untouched")
	_, statErr = os.Stat(closed.LogPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBeginSessionPrunesOpportunistically(t *testing.T) {
	e, mock := newTestEngine(t, 5_000_000)
	ctx := context.Background()

	old, err := e.BeginSession(ctx, "tty1", "bash", 1)
	require.NoError(t, err)
	require.NoError(t, e.EndSession(ctx, old.ID))
	require.NoError(t, os.WriteFile(old.LogPath, make([]byte, 6_000_000), 0o644))

	mock.Add(time.Minute)
	_, err = e.BeginSession(ctx, "tty2", "bash", 2)
	require.NoError(t, err)

	_, statErr := os.Stat(old.LogPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestListSessionsWarnsOnDiskMismatch(t *testing.T) {
	e, mock := newTestEngine(t, 0)
	ctx := context.Background()

	sess, err := e.BeginSession(ctx, "tty1", "bash", 1)
	require.NoError(t, err)
	require.NoError(t, os.Remove(sess.LogPath)) // manual deletion

	mock.Add(time.Minute)
	sessions, warnings, err := e.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1, "listing proceeds with the registry's view")
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], sess.ID)
}

func TestNewRecoversFromCorruptIndex(t *testing.T) {
	logRoot := filepath.Join(t.TempDir(), "logs")
	indexPath := filepath.Join(t.TempDir(), "blackcell.db")
	ctx := context.Background()

	// Seed a raw log the recovery rebuild should pick up.
	dayDir := filepath.Join(logRoot, "2025", "08", "26")
	require.NoError(t, os.MkdirAll(dayDir, 0o755))
	sessID := "20250826-100000-tty1-bash"
	require.NoError(t, os.WriteFile(filepath.Join(dayDir, sessID+".log"), []byte("$ ls\nfile\n"), 0o644))

	require.NoError(t, os.WriteFile(indexPath, []byte("garbage garbage garbage garbage garbage"), 0o644))

	e, err := New(ctx, Config{LogRoot: logRoot, IndexPath: indexPath})
	require.NoError(t, err)
	defer e.Close()

	entries, err := e.ShowSession(ctx, sessID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ls", entries[0].Command)

	sessions, _, err := e.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].Commands)
}

func TestRebuildThroughEngine(t *testing.T) {
	e, mock := newTestEngine(t, 0)
	ctx := context.Background()

	sess, err := e.BeginSession(ctx, "tty1", "bash", 1)
	require.NoError(t, err)
	require.NoError(t, e.EndSession(ctx, sess.ID))
	appendRaw(t, sess.LogPath, "$ du -sh .\n120M\n")

	stats, err := e.Rebuild(ctx, index.ModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)

	entries, err := e.ShowSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "du -sh .", entries[0].Command)

	_ = mock
}

func TestIncrementalRebuildAfterLiveSessionConverges(t *testing.T) {
	e, mock := newTestEngine(t, 0)
	ctx := context.Background()

	// A live shell: the script writes the raw log, then the prompt hook
	// forwards the completed command.
	sess, err := e.BeginSession(ctx, "tty1", "bash", 1)
	require.NoError(t, err)
	appendRaw(t, sess.LogPath, "$ ls\nfile\n")
	require.NoError(t, e.RecordCommand(ctx, sess.ID, mock.Now(), "ls", ""))
	require.NoError(t, e.EndSession(ctx, sess.ID))

	stats, err := e.Rebuild(ctx, index.ModeIncremental)
	require.NoError(t, err)
	assert.Zero(t, stats.Entries, "forwarded commands must not be imported twice")

	entries, err := e.ShowSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ls", entries[0].Command)

	// A full reset over the same raw logs derives the same command history.
	_, err = e.Rebuild(ctx, index.ModeFullReset)
	require.NoError(t, err)
	entries, err = e.ShowSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ls", entries[0].Command)
}

func TestSearchScansUnforwardedTail(t *testing.T) {
	e, mock := newTestEngine(t, 0)
	ctx := context.Background()

	sess, err := e.BeginSession(ctx, "tty1", "bash", 1)
	require.NoError(t, err)
	appendRaw(t, sess.LogPath, "$ kubectl get pods\nnone\n")
	require.NoError(t, e.RecordCommand(ctx, sess.ID, mock.Now(), "kubectl get pods", "none"))

	// A command the hook never got to forward, still only in the raw log.
	appendRaw(t, sess.LogPath, "$ kubectl delete pod web\npod deleted\n")

	hits, warnings, err := e.Search(ctx, "kubectl")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, hits, 2, "indexed hit plus the raw tail, each exactly once")

	commands := map[string]bool{}
	for _, h := range hits {
		commands[h.Entry.Command] = true
	}
	assert.True(t, commands["kubectl get pods"])
	assert.True(t, commands["kubectl delete pod web"])
}

func TestLastSessionEmpty(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	_, err := e.LastSession(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
