package cli

import (
	"context"

	"github.com/hasuno2/Blackcell/internal/config"
	"github.com/hasuno2/Blackcell/internal/index"
)

// MigrateCmd synchronizes the structured index with the raw logs. The
// default mode resumes incrementally from stored offsets; an interrupted
// earlier run upgrades it to a full reset automatically.
type MigrateCmd struct {
	Reset bool `help:"Discard indexed entries and reimport every raw log"`
}

// Run executes the migrate command.
func (c *MigrateCmd) Run(globals *Globals) error {
	ctx := context.Background()
	eng, err := globals.openEngine(ctx)
	if err != nil {
		return outputError(globals, errorCode(err), err.Error())
	}
	defer eng.Close()

	mode := index.ModeAuto
	if c.Reset {
		mode = index.ModeFullReset
	}

	stats, err := eng.Rebuild(ctx, mode)
	if err != nil {
		return outputError(globals, errorCode(err), err.Error())
	}

	if globals.jsonMode() {
		return emitJSON(globals, map[string]any{
			"type": "migrate", "mode": stats.Mode.String(),
			"files": stats.Files, "sessions": stats.Sessions, "entries": stats.Entries,
		})
	}
	globals.Info("Synchronized index (%s): %d files, %d sessions, %d entries imported",
		stats.Mode, stats.Files, stats.Sessions, stats.Entries)
	return nil
}

// PruneCmd deletes oversized raw logs of closed sessions.
type PruneCmd struct {
	MaxSize int64 `help:"Size threshold in bytes (default: configured max_log_size)"`
}

// Run executes the prune command.
func (c *PruneCmd) Run(globals *Globals) error {
	ctx := context.Background()
	eng, err := globals.openEngine(ctx)
	if err != nil {
		return outputError(globals, errorCode(err), err.Error())
	}
	defer eng.Close()

	maxSize := c.MaxSize
	if maxSize <= 0 && globals.Config != nil {
		maxSize = globals.Config.MaxLogSize
	}
	if maxSize <= 0 {
		maxSize = config.DefaultMaxLogSize
	}

	results, err := eng.Prune(ctx, maxSize)
	if err != nil {
		return outputError(globals, errorCode(err), err.Error())
	}

	removed := 0
	for _, r := range results {
		if r.Err != nil {
			if !globals.Quiet {
				globals.Info("Skipped %s: %v", r.Path, r.Err)
			}
			continue
		}
		removed++
		globals.Debug("removed %s (%d bytes)", r.Path, r.Size)
	}
	globals.Info("Pruned %d oversized log file(s)", removed)
	return nil
}
