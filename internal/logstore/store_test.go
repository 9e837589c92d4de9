package logstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasuno2/Blackcell/internal/domain"
)

func TestAllocateCreatesDayBucket(t *testing.T) {
	root := t.TempDir()
	store := New(root)

	start := time.Date(2025, 8, 26, 15, 30, 0, 0, time.Local)
	sess, err := store.Allocate(start, "/dev/pts/3", "bash", 1234)
	require.NoError(t, err)

	assert.Equal(t, "20250826-153000-_dev_pts_3-bash", sess.ID)
	assert.Equal(t, domain.SessionOpen, sess.Status)
	assert.Equal(t, filepath.Join(root, "2025", "08", "26", sess.ID+".log"), sess.LogPath)

	info, err := os.Stat(sess.LogPath)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestAllocateSameSecondCollision(t *testing.T) {
	store := New(t.TempDir())
	start := time.Date(2025, 8, 26, 15, 30, 0, 0, time.Local)

	first, err := store.Allocate(start, "/dev/pts/3", "bash", 1111)
	require.NoError(t, err)
	second, err := store.Allocate(start, "/dev/pts/3", "bash", 2222)
	require.NoError(t, err)

	assert.NotEqual(t, first.LogPath, second.LogPath)
	assert.Equal(t, "20250826-153000-_dev_pts_3-bash-2222", second.ID)

	// Distinct terminals in the same second never collide to begin with.
	third, err := store.Allocate(start, "/dev/pts/4", "bash", 1111)
	require.NoError(t, err)
	assert.Equal(t, "20250826-153000-_dev_pts_4-bash", third.ID)
}

func TestAllocateStorageUnavailable(t *testing.T) {
	root := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(root, []byte("not a dir"), 0o644))

	store := New(root)
	_, err := store.Allocate(time.Now(), "/dev/pts/1", "bash", 1)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestListSortsByEmbeddedTimestamp(t *testing.T) {
	store := New(t.TempDir())

	newer, err := store.Allocate(time.Date(2025, 8, 26, 10, 0, 0, 0, time.Local), "/dev/pts/1", "bash", 1)
	require.NoError(t, err)
	older, err := store.Allocate(time.Date(2025, 8, 25, 10, 0, 0, 0, time.Local), "/dev/pts/1", "bash", 1)
	require.NoError(t, err)

	files, err := store.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, older.ID, files[0].Session)
	assert.Equal(t, newer.ID, files[1].Session)
}

func TestListMissingRoot(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "never-created"))
	files, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestPathFor(t *testing.T) {
	store := New(t.TempDir())
	sess, err := store.Allocate(time.Date(2025, 8, 26, 12, 0, 0, 0, time.Local), "/dev/pts/2", "zsh", 1)
	require.NoError(t, err)

	path, ok := store.PathFor(sess.ID)
	assert.True(t, ok)
	assert.Equal(t, sess.LogPath, path)

	_, ok = store.PathFor("20990101-000000-_dev_pts_9-bash")
	assert.False(t, ok)
	_, ok = store.PathFor("garbage")
	assert.False(t, ok)
}

func TestPruneOversizedSkipsOpenSessions(t *testing.T) {
	store := New(t.TempDir())
	start := time.Date(2025, 8, 26, 9, 0, 0, 0, time.Local)

	closed, err := store.Allocate(start, "/dev/pts/1", "bash", 1)
	require.NoError(t, err)
	open, err := store.Allocate(start.Add(time.Minute), "/dev/pts/2", "bash", 2)
	require.NoError(t, err)

	big := make([]byte, 6_000_000)
	require.NoError(t, os.WriteFile(closed.LogPath, big, 0o644))
	require.NoError(t, os.WriteFile(open.LogPath, big, 0o644))

	results, err := store.PruneOversized(5_000_000, func(id string) bool {
		return id == open.ID
	})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, closed.LogPath, results[0].Path)
	assert.NoError(t, results[0].Err)

	_, statErr := os.Stat(closed.LogPath)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(open.LogPath)
	assert.NoError(t, statErr)
}

func TestPruneOversizedLeavesSmallFiles(t *testing.T) {
	store := New(t.TempDir())
	sess, err := store.Allocate(time.Now(), "/dev/pts/1", "bash", 1)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(sess.LogPath, []byte("$ ls\n"), 0o644))

	results, err := store.PruneOversized(5_000_000, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
