package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// BeginCmd allocates a new capture session and prints eval-able shell
// statements exporting BLACKCELL_SESSION and BLACKCELL_LOGFILE. The rc
// snippet evals its output, so on any failure it prints nothing and exits
// zero: a broken index must never break the user's shell startup.
type BeginCmd struct {
	Shell string `required:"" help:"Shell kind (bash, zsh, fish)"`
	TTY   string `help:"Terminal device path"`
	PID   int    `help:"Shell process id"`
}

// Run executes the _begin command.
func (c *BeginCmd) Run(globals *Globals) error {
	eng, err := globals.openEngine(context.Background())
	if err != nil {
		globals.log().Warn("session start skipped", zap.Error(err))
		return nil
	}
	defer eng.Close()

	sess, err := eng.BeginSession(context.Background(), c.TTY, c.Shell, c.PID)
	if err != nil {
		globals.log().Warn("session start skipped", zap.Error(err))
		return nil
	}

	if c.Shell == "fish" {
		fmt.Fprintf(globals.Stdout, "set -gx BLACKCELL_SESSION %q\n", sess.ID)
		fmt.Fprintf(globals.Stdout, "set -gx BLACKCELL_LOGFILE %q\n", sess.LogPath)
	} else {
		fmt.Fprintf(globals.Stdout, "export BLACKCELL_SESSION=%q\n", sess.ID)
		fmt.Fprintf(globals.Stdout, "export BLACKCELL_LOGFILE=%q\n", sess.LogPath)
	}
	return nil
}

// EndCmd marks a capture session closed. Fire and forget: the snippet runs
// it as the shell exits, so errors are logged and swallowed.
type EndCmd struct {
	Session string `arg:"" help:"Session id to close"`
}

// Run executes the _end command.
func (c *EndCmd) Run(globals *Globals) error {
	eng, err := globals.openEngine(context.Background())
	if err != nil {
		globals.log().Warn("session close skipped", zap.Error(err))
		return nil
	}
	defer eng.Close()

	if err := eng.EndSession(context.Background(), c.Session); err != nil {
		globals.log().Warn("session close skipped",
			zap.String("session", c.Session), zap.Error(err))
	}
	return nil
}

// RecordCmd forwards one completed command line into the index. Invoked by
// the per-prompt hook after every command, so it always exits zero; a busy
// or broken index only costs realtime visibility, never shell usability.
type RecordCmd struct {
	Command string `arg:"" optional:"" help:"Command line as reported by shell history"`
	Session string `help:"Session id (default: $BLACKCELL_SESSION)"`
}

// Run executes the _record command.
func (c *RecordCmd) Run(globals *Globals) error {
	session := c.Session
	if session == "" {
		session = os.Getenv("BLACKCELL_SESSION")
	}
	command := normalizeHistoryLine(c.Command)
	if session == "" || command == "" {
		return nil
	}

	eng, err := globals.openEngine(context.Background())
	if err != nil {
		globals.log().Warn("command record skipped", zap.Error(err))
		return nil
	}
	defer eng.Close()

	if err := eng.RecordCommand(context.Background(), session, globals.Clock.Now(), command, ""); err != nil {
		globals.log().Warn("command record skipped",
			zap.String("session", session), zap.Error(err))
	}
	return nil
}

// normalizeHistoryLine strips the leading history number bash's `history 1`
// prepends ("  123  ls -la" -> "ls -la"). Lines without a number pass
// through trimmed.
func normalizeHistoryLine(line string) string {
	line = strings.TrimSpace(line)
	i := 0
	for i < len(line) && unicode.IsDigit(rune(line[i])) {
		i++
	}
	if i > 0 && i < len(line) && unicode.IsSpace(rune(line[i])) {
		return strings.TrimSpace(line[i:])
	}
	return line
}
