package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/hasuno2/Blackcell/internal/config"
	"github.com/hasuno2/Blackcell/internal/engine"
)

// CLI is the root command structure for blackcell.
type CLI struct {
	// Global flags
	Format  string `short:"f" default:"text" enum:"text,json" help:"Output format"`
	Quiet   bool   `short:"q" help:"Suppress non-essential output"`
	Verbose bool   `short:"v" help:"Show debug output (retries, sync offsets, internal state)"`
	NoColor bool   `help:"Disable colored output"`

	Version VersionCmd `cmd:"" help:"Show version information"`

	// Commands
	Install   InstallCmd   `cmd:"" help:"Install the shell capture hook into your rc file"`
	Uninstall UninstallCmd `cmd:"" help:"Remove the shell capture hook from all rc files"`
	Doctor    DoctorCmd    `cmd:"" help:"Check system requirements and configuration"`
	Sessions  SessionsCmd  `cmd:"" help:"List recorded sessions"`
	Show      ShowCmd      `cmd:"" help:"Show the commands of one session"`
	Last      LastCmd      `cmd:"" help:"Show the most recent session"`
	Search    SearchCmd    `cmd:"" help:"Search commands and output across all sessions"`
	Migrate   MigrateCmd   `cmd:"" help:"Synchronize the index with the raw logs"`
	Prune     PruneCmd     `cmd:"" help:"Delete oversized raw logs of closed sessions"`

	// Hook plumbing, invoked by the rc snippet rather than by people.
	Begin  BeginCmd  `cmd:"" name:"_begin" hidden:"" help:"Start a capture session (hook internal)"`
	End    EndCmd    `cmd:"" name:"_end" hidden:"" help:"Close a capture session (hook internal)"`
	Record RecordCmd `cmd:"" name:"_record" hidden:"" help:"Record one completed command (hook internal)"`
}

// Globals holds shared state for all commands.
type Globals struct {
	Format  string
	Quiet   bool
	Verbose bool
	NoColor bool
	Stdout  io.Writer
	Stderr  io.Writer
	Config  *config.Config
	Logger  *zap.Logger
	Clock   clock.Clock
}

// NewGlobals creates a Globals instance with config fallbacks applied for
// flags that were not set on the command line.
func NewGlobals(cli *CLI, cfg *config.Config, logger *zap.Logger) *Globals {
	g := &Globals{
		Format:  cli.Format,
		Quiet:   cli.Quiet,
		Verbose: cli.Verbose,
		NoColor: cli.NoColor,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Config:  cfg,
		Logger:  logger,
		Clock:   clock.New(),
	}
	if cfg != nil {
		if !cli.Quiet && cfg.Quiet {
			g.Quiet = true
		}
		if !cli.Verbose && cfg.Verbose {
			g.Verbose = true
		}
		if !cli.NoColor && cfg.NoColor {
			g.NoColor = true
		}
	}
	return g
}

// openEngine builds an engine from the effective configuration.
func (g *Globals) openEngine(ctx context.Context) (*engine.Engine, error) {
	cfg := g.Config
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.Normalize()
	return engine.New(ctx, engine.Config{
		LogRoot:    cfg.LogRoot,
		IndexPath:  cfg.IndexPath,
		MaxLogSize: cfg.MaxLogSize,
		Logger:     g.log(),
		Clock:      g.Clock,
	})
}

func (g *Globals) log() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

// Debug prints a debug message if verbose mode is enabled.
func (g *Globals) Debug(format string, args ...interface{}) {
	if g.Verbose {
		fmt.Fprintf(g.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// Info prints a message unless quiet mode is enabled.
func (g *Globals) Info(format string, args ...interface{}) {
	if !g.Quiet {
		fmt.Fprintf(g.Stdout, format+"\n", args...)
	}
}

// VersionCmd shows version information.
type VersionCmd struct{}

// Run executes the version command.
func (v *VersionCmd) Run(globals *Globals) error {
	if globals.jsonMode() {
		return emitJSON(globals, map[string]string{
			"type": "version", "version": Version, "commit": Commit,
		})
	}
	fmt.Fprintf(globals.Stdout, "blackcell version %s (%s)\n", Version, Commit)
	return nil
}

// Version information (set at build time)
var (
	Version = "dev"
	Commit  = "none"
)
