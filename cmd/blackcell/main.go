package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hasuno2/Blackcell/internal/cli"
	"github.com/hasuno2/Blackcell/internal/config"
)

const quickStart = `blackcell - terminal session recorder with a searchable index

START HERE:
  blackcell install                     Hook your shell, then open a new terminal

Every command you run is captured to append-only raw logs and indexed
for search. Useful commands:
  blackcell sessions                    List recorded sessions
  blackcell last                        Show the most recent session
  blackcell search <keyword>            Search across all sessions
  blackcell doctor                      Check your setup
`

func main() {
	// Show quick start if no args provided
	if len(os.Args) == 1 {
		fmt.Print(quickStart)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.Default()
	}

	var c cli.CLI
	ctx := kong.Parse(&c,
		kong.Name("blackcell"),
		kong.Description("Record terminal sessions to append-only raw logs and keep a searchable index in sync.\n\nSTART HERE: blackcell install"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
	)

	globals := cli.NewGlobals(&c, cfg, newLogger(c.Verbose || cfg.Verbose))
	defer globals.Logger.Sync() //nolint:errcheck // stderr sync failure is uninteresting

	if err := ctx.Run(globals); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger. Diagnostics go to stderr so the
// eval'd output of the hook commands stays clean on stdout.
func newLogger(verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core)
}
