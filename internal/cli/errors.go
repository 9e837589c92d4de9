package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hasuno2/Blackcell/internal/domain"
)

func (g *Globals) jsonMode() bool {
	return g != nil && g.Format == "json"
}

// emitJSON writes v as one NDJSON line to stdout.
func emitJSON(globals *Globals, v any) error {
	return json.NewEncoder(globals.Stdout).Encode(v)
}

// outputError normalizes error emission across commands so failures always
// carry a stable code alongside the human-readable message.
func outputError(globals *Globals, code, message string) error {
	if globals.jsonMode() {
		emitJSON(globals, map[string]string{"type": "error", "code": code, "message": message}) //nolint:errcheck
	} else if globals != nil {
		fmt.Fprintf(globals.Stderr, "Error [%s]: %s\n", code, message)
	}
	return errors.New(message)
}

// errorCode maps domain sentinels to the stable failure codes commands emit.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrStorageUnavailable):
		return "STORAGE_UNAVAILABLE"
	case errors.Is(err, domain.ErrIndexBusy):
		return "INDEX_BUSY"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "SESSION_NOT_FOUND"
	case errors.Is(err, domain.ErrCorruptIndex):
		return "CORRUPT_INDEX"
	default:
		return "INTERNAL_ERROR"
	}
}
