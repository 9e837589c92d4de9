package domain

import "time"

// LogEntry is one completed command parsed out of a session capture, as
// stored in the structured index. Immutable once written; the raw log
// remains the source of truth.
type LogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"ts"`
	Command   string    `json:"command"`
	Output    string    `json:"output,omitempty"`
	Session   string    `json:"session"`
}

// SearchHit pairs a matching entry with the session it belongs to.
type SearchHit struct {
	Session Session  `json:"session"`
	Entry   LogEntry `json:"entry"`
}
