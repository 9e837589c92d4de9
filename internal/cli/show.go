package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hasuno2/Blackcell/internal/domain"
	"github.com/hasuno2/Blackcell/internal/engine"
)

// ShowCmd prints the commands of one session. The session may be named by
// its id or by its 1-based position in the sessions listing.
type ShowCmd struct {
	Session string `arg:"" help:"Session id or listing position"`
	Output  bool   `short:"o" help:"Include captured command output"`
}

// Run executes the show command.
func (c *ShowCmd) Run(globals *Globals) error {
	ctx := context.Background()
	eng, err := globals.openEngine(ctx)
	if err != nil {
		return outputError(globals, errorCode(err), err.Error())
	}
	defer eng.Close()

	id := c.Session
	if _, nerr := strconv.Atoi(id); nerr == nil {
		sessions, _, lerr := eng.ListSessions(ctx)
		if lerr != nil {
			return outputError(globals, errorCode(lerr), lerr.Error())
		}
		id, err = resolveSessionRef(sessions, c.Session)
		if err != nil {
			return outputError(globals, errorCode(err), err.Error())
		}
	}

	return showEntries(ctx, globals, eng, id, c.Output)
}

// LastCmd prints the most recent session.
type LastCmd struct {
	Output bool `short:"o" help:"Include captured command output"`
}

// Run executes the last command.
func (c *LastCmd) Run(globals *Globals) error {
	ctx := context.Background()
	eng, err := globals.openEngine(ctx)
	if err != nil {
		return outputError(globals, errorCode(err), err.Error())
	}
	defer eng.Close()

	sess, err := eng.LastSession(ctx)
	if errors.Is(err, domain.ErrSessionNotFound) {
		if !globals.jsonMode() {
			globals.Info("No sessions recorded yet")
		}
		return nil
	}
	if err != nil {
		return outputError(globals, errorCode(err), err.Error())
	}

	return showEntries(ctx, globals, eng, sess.ID, c.Output)
}

func showEntries(ctx context.Context, globals *Globals, eng *engine.Engine, id string, withOutput bool) error {
	entries, err := eng.ShowSession(ctx, id)
	if err != nil {
		return outputError(globals, errorCode(err), err.Error())
	}

	if globals.jsonMode() {
		for _, e := range entries {
			if err := emitJSON(globals, e); err != nil {
				return err
			}
		}
		return nil
	}

	globals.Info("Session %s (%d commands)", styleSessionID(globals, id), len(entries))
	for _, e := range entries {
		fmt.Fprintf(globals.Stdout, "  [%s] %s\n", e.Timestamp.Format("15:04:05"), e.Command)
		if withOutput && e.Output != "" {
			for _, line := range strings.Split(e.Output, "\n") {
				fmt.Fprintf(globals.Stdout, "      %s\n", line)
			}
		}
	}
	return nil
}
