// Package logstore manages the day-bucketed directories of raw session
// capture files. Files here are the durable source of truth; the structured
// index is always re-derivable from them.
package logstore

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hasuno2/Blackcell/internal/domain"
)

// Store is a handle on the raw log root. It never deletes or rewrites an
// open session's file; appends are done by the single owning recorder
// process, not through this type.
type Store struct {
	root string
}

// New returns a store rooted at the given directory. The directory is
// created lazily on the first Allocate.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the log root directory.
func (s *Store) Root() string {
	return s.root
}

// LogFile describes one raw capture file on disk.
type LogFile struct {
	Path    string
	Session string // file stem, which is the session id
	Size    int64
	ModTime time.Time
}

// Allocate creates the day-bucket directory for start and an exclusive log
// file for a new session. A same-second collision on the same terminal is
// resolved by folding the recorder's pid into the name.
func (s *Store) Allocate(start time.Time, tty, shell string, pid int) (domain.Session, error) {
	dir := filepath.Join(s.root, start.Format("2006"), start.Format("01"), start.Format("02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.Session{}, fmt.Errorf("%w: create day bucket %s: %v", domain.ErrStorageUnavailable, dir, err)
	}

	id := domain.NewSessionID(start, tty, shell, 0)
	f, err := os.OpenFile(filepath.Join(dir, id+".log"), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if os.IsExist(err) {
		id = domain.NewSessionID(start, tty, shell, pid)
		f, err = os.OpenFile(filepath.Join(dir, id+".log"), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: create log file: %v", domain.ErrStorageUnavailable, err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	sess := domain.ParseSessionID(id)
	sess.StartedAt = start
	sess.TTY = domain.SanitizeTTY(tty)
	sess.Shell = shell
	sess.LogPath = path
	sess.Status = domain.SessionOpen
	return sess, nil
}

// List walks the log root and returns every capture file, oldest first.
// Ordering uses the start time embedded in the name, falling back to mtime
// for files that predate the naming scheme.
func (s *Store) List() ([]LogFile, error) {
	var files []LogFile

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.root {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".log") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil // deleted mid-walk
		}
		files = append(files, LogFile{
			Path:    path,
			Session: strings.TrimSuffix(d.Name(), ".log"),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan log root %s: %w", s.root, err)
	}

	sort.Slice(files, func(i, j int) bool {
		return sortKey(files[i]).Before(sortKey(files[j]))
	})
	return files, nil
}

func sortKey(f LogFile) time.Time {
	if ts := domain.ParseSessionID(f.Session).StartedAt; !ts.IsZero() {
		return ts
	}
	return f.ModTime
}

// PathFor computes the expected on-disk path for a session id from its
// embedded start time. The day bucket is fixed at creation, so this never
// needs a directory scan. ok is false when no such file exists.
func (s *Store) PathFor(sessionID string) (string, bool) {
	start := domain.ParseSessionID(sessionID).StartedAt
	if start.IsZero() {
		return "", false
	}
	path := filepath.Join(
		s.root,
		start.Format("2006"), start.Format("01"), start.Format("02"),
		sessionID+".log",
	)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}
