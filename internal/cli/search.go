package cli

import (
	"context"
	"fmt"
)

// SearchCmd searches commands and captured output across all sessions.
type SearchCmd struct {
	Keyword string `arg:"" help:"Substring to search for (case-insensitive)"`
}

// Run executes the search command.
func (c *SearchCmd) Run(globals *Globals) error {
	ctx := context.Background()
	eng, err := globals.openEngine(ctx)
	if err != nil {
		return outputError(globals, errorCode(err), err.Error())
	}
	defer eng.Close()

	hits, warnings, err := eng.Search(ctx, c.Keyword)
	if err != nil {
		return outputError(globals, errorCode(err), err.Error())
	}
	for _, w := range warnings {
		if !globals.Quiet {
			fmt.Fprintf(globals.Stderr, "Warning: %s\n", w)
		}
	}

	if globals.jsonMode() {
		for _, h := range hits {
			if err := emitJSON(globals, h); err != nil {
				return err
			}
		}
		return nil
	}

	if len(hits) == 0 {
		globals.Info("No matches for %q", c.Keyword)
		return nil
	}

	globals.Info("%d matches for %q", len(hits), c.Keyword)
	for _, h := range hits {
		fmt.Fprintf(globals.Stdout, "%s  [%s] %s\n",
			styleSessionID(globals, h.Session.ID),
			h.Entry.Timestamp.Format("2006-01-02 15:04:05"),
			h.Entry.Command)
	}
	return nil
}
