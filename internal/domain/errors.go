package domain

import "errors"

// Engine-wide error taxonomy. Callers classify failures with errors.Is and
// decide between hard failure (storage), soft failure (busy index) and
// degraded reads (stale or missing index).
var (
	// ErrStorageUnavailable marks a failure to create or write the log root
	// or the index file. Fatal to the triggering operation, never retried
	// silently.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrIndexBusy is returned when the index write lock could not be
	// acquired within the bounded retry window. The per-prompt hook treats
	// it as log-and-continue.
	ErrIndexBusy = errors.New("index busy")

	// ErrSessionNotFound marks a query against an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrCorruptIndex means the index failed integrity checks at open and
	// a full rebuild from raw logs is required.
	ErrCorruptIndex = errors.New("corrupt index")
)
