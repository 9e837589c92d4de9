package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"

	"github.com/hasuno2/Blackcell/internal/domain"
)

var sessionIDStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))

// useColor reports whether output should be styled. Only real terminals
// get color; pipes and redirects stay plain.
func useColor(globals *Globals) bool {
	if globals.NoColor {
		return false
	}
	f, ok := globals.Stdout.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func styleSessionID(globals *Globals, id string) string {
	if useColor(globals) {
		return sessionIDStyle.Render(id)
	}
	return id
}

// SessionsCmd lists recorded sessions, newest first.
type SessionsCmd struct {
	Limit int `default:"0" help:"Max sessions to show (0 = all)"`
}

// Run executes the sessions command.
func (c *SessionsCmd) Run(globals *Globals) error {
	ctx := context.Background()
	eng, err := globals.openEngine(ctx)
	if err != nil {
		return outputError(globals, errorCode(err), err.Error())
	}
	defer eng.Close()

	sessions, warnings, err := eng.ListSessions(ctx)
	if err != nil {
		return outputError(globals, errorCode(err), err.Error())
	}
	for _, w := range warnings {
		if !globals.Quiet {
			fmt.Fprintf(globals.Stderr, "Warning: %s\n", w)
		}
	}

	if len(sessions) == 0 {
		if !globals.jsonMode() {
			globals.Info("No sessions recorded yet")
			globals.Info("Log directory: %s", eng.LogRoot())
		}
		return nil
	}
	if c.Limit > 0 && len(sessions) > c.Limit {
		sessions = sessions[:c.Limit]
	}

	if globals.jsonMode() {
		for _, s := range sessions {
			if err := emitJSON(globals, s); err != nil {
				return err
			}
		}
		return nil
	}

	tbl := tablewriter.NewTable(globals.Stdout)
	tbl.Header("#", "SESSION", "STARTED", "SHELL", "STATUS", "COMMANDS")
	for i, s := range sessions {
		tbl.Append([]string{
			strconv.Itoa(i + 1),
			styleSessionID(globals, s.ID),
			s.StartedAt.Format("2006-01-02 15:04:05"),
			s.Shell,
			string(s.Status),
			strconv.Itoa(s.Commands),
		})
	}
	return tbl.Render()
}

// resolveSessionRef turns a numeric listing position (1-based, as printed
// by the sessions command) into a session id. Non-numeric refs pass
// through unchanged.
func resolveSessionRef(sessions []domain.Session, ref string) (string, error) {
	n, err := strconv.Atoi(ref)
	if err != nil {
		return ref, nil
	}
	if n < 1 || n > len(sessions) {
		return "", fmt.Errorf("session index %d out of range (1-%d): %w", n, len(sessions), domain.ErrSessionNotFound)
	}
	return sessions[n-1].ID, nil
}
