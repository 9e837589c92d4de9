package domain

import (
	"fmt"
	"strings"
	"time"
)

// SessionStatus tracks whether a session is still being recorded.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

// SessionIDTimeLayout is the timestamp prefix used in session ids and
// raw log file names (YYYYMMDD-HHMMSS).
const SessionIDTimeLayout = "20060102-150405"

// Session is one recorded terminal lifetime. The id doubles as the raw log
// file stem, so it is fully recoverable from the file name alone.
type Session struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	TTY       string        `json:"tty"`
	Shell     string        `json:"shell"`
	LogPath   string        `json:"log_path,omitempty"`
	Status    SessionStatus `json:"status"`
	Commands  int           `json:"commands"` // indexed command count, 0 when unknown
}

// SanitizeTTY turns a terminal device path into a filename-safe token.
func SanitizeTTY(tty string) string {
	tty = strings.TrimSpace(tty)
	if tty == "" {
		return "notty"
	}
	return strings.ReplaceAll(tty, "/", "_")
}

// NewSessionID derives the session id from its start time, terminal device
// and shell kind. pid disambiguates two shells on the same terminal starting
// within the same second; pass 0 to omit it.
func NewSessionID(start time.Time, tty, shell string, pid int) string {
	id := fmt.Sprintf("%s-%s-%s", start.Format(SessionIDTimeLayout), SanitizeTTY(tty), shell)
	if pid > 0 {
		id = fmt.Sprintf("%s-%d", id, pid)
	}
	return id
}

// ParseSessionID recovers session metadata from an id (or a log file stem).
// Unknown shapes still produce a usable session with zero start time.
func ParseSessionID(id string) Session {
	s := Session{ID: id, Status: SessionClosed}

	parts := strings.Split(id, "-")
	if len(parts) < 2 {
		return s
	}
	start, err := time.ParseInLocation(SessionIDTimeLayout, parts[0]+"-"+parts[1], time.Local)
	if err != nil {
		return s
	}
	s.StartedAt = start

	rest := parts[2:]
	// Trailing numeric component is the disambiguating pid, not the shell.
	if len(rest) > 1 && isDigits(rest[len(rest)-1]) {
		rest = rest[:len(rest)-1]
	}
	if len(rest) > 0 {
		s.Shell = rest[len(rest)-1]
		s.TTY = strings.Join(rest[:len(rest)-1], "-")
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
