package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/hasuno2/Blackcell/internal/config"
	"github.com/hasuno2/Blackcell/internal/hook"
	"github.com/hasuno2/Blackcell/internal/logstore"
)

// DoctorCmd checks system requirements and configuration.
type DoctorCmd struct{}

// checkResult represents a single diagnostic check.
type checkResult struct {
	Name    string
	Status  string // "ok", "warning", "error"
	Message string
}

// Run executes the doctor command.
func (c *DoctorCmd) Run(globals *Globals) error {
	cfg := globals.Config
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.Normalize()

	checks := []checkResult{
		c.checkShell(),
		c.checkHook(),
		c.checkScriptBinary(),
		c.checkLogDir(cfg),
		c.checkRecentLog(globals, cfg),
		c.checkIndex(globals),
	}

	errorCount, warnCount := 0, 0
	for _, check := range checks {
		switch check.Status {
		case "error":
			errorCount++
		case "warning":
			warnCount++
		}
	}

	fmt.Fprintln(globals.Stdout, "blackcell Doctor")
	fmt.Fprintln(globals.Stdout, "================")
	fmt.Fprintln(globals.Stdout)

	for _, check := range checks {
		var icon string
		switch check.Status {
		case "ok":
			icon = "✓"
		case "warning":
			icon = "⚠"
		case "error":
			icon = "✗"
		}
		fmt.Fprintf(globals.Stdout, "%s %s\n", icon, check.Name)
		if check.Message != "" {
			fmt.Fprintf(globals.Stdout, "  %s\n", check.Message)
		}
	}

	fmt.Fprintln(globals.Stdout)
	if errorCount == 0 && warnCount == 0 {
		fmt.Fprintln(globals.Stdout, "All checks passed!")
	} else {
		fmt.Fprintf(globals.Stdout, "Errors: %d, Warnings: %d\n", errorCount, warnCount)
	}
	return nil
}

func (c *DoctorCmd) checkShell() checkResult {
	shell := hook.DetectShell()
	if shell == "" {
		return checkResult{
			Name:    "Supported shell",
			Status:  "error",
			Message: fmt.Sprintf("SHELL=%q is not a supported shell (bash, zsh, fish)", os.Getenv("SHELL")),
		}
	}
	return checkResult{Name: "Supported shell", Status: "ok", Message: shell}
}

func (c *DoctorCmd) checkHook() checkResult {
	shell := hook.DetectShell()
	if shell == "" {
		return checkResult{Name: "Capture hook installed", Status: "warning", Message: "shell undetected, skipped"}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return checkResult{Name: "Capture hook installed", Status: "error", Message: err.Error()}
	}
	if !(hook.Installer{Home: home}).Installed(shell) {
		return checkResult{
			Name:    "Capture hook installed",
			Status:  "warning",
			Message: "run 'blackcell install' to start recording sessions",
		}
	}
	return checkResult{Name: "Capture hook installed", Status: "ok"}
}

func (c *DoctorCmd) checkScriptBinary() checkResult {
	path, err := exec.LookPath("script")
	if err != nil {
		return checkResult{
			Name:    "script binary",
			Status:  "error",
			Message: "'script' not found on PATH; raw capture needs it",
		}
	}
	return checkResult{Name: "script binary", Status: "ok", Message: path}
}

func (c *DoctorCmd) checkLogDir(cfg *config.Config) checkResult {
	info, err := os.Stat(cfg.LogRoot)
	if os.IsNotExist(err) {
		return checkResult{
			Name:    "Log directory",
			Status:  "warning",
			Message: fmt.Sprintf("%s does not exist yet (created on first session)", cfg.LogRoot),
		}
	}
	if err != nil {
		return checkResult{Name: "Log directory", Status: "error", Message: err.Error()}
	}
	if !info.IsDir() {
		return checkResult{
			Name:    "Log directory",
			Status:  "error",
			Message: fmt.Sprintf("%s exists but is not a directory", cfg.LogRoot),
		}
	}
	return checkResult{Name: "Log directory", Status: "ok", Message: cfg.LogRoot}
}

func (c *DoctorCmd) checkRecentLog(globals *Globals, cfg *config.Config) checkResult {
	files, err := logstore.New(cfg.LogRoot).List()
	if err != nil || len(files) == 0 {
		return checkResult{Name: "Recent session", Status: "warning", Message: "no recorded sessions found"}
	}
	last := files[len(files)-1]
	age := globals.Clock.Now().Sub(last.ModTime)
	if age > 7*24*time.Hour {
		return checkResult{
			Name:    "Recent session",
			Status:  "warning",
			Message: fmt.Sprintf("newest session is %s old (%s)", age.Truncate(time.Hour), filepath.Base(last.Path)),
		}
	}
	return checkResult{Name: "Recent session", Status: "ok", Message: last.Session}
}

func (c *DoctorCmd) checkIndex(globals *Globals) checkResult {
	eng, err := globals.openEngine(context.Background())
	if err != nil {
		return checkResult{Name: "Structured index", Status: "error", Message: err.Error()}
	}
	defer eng.Close()
	return checkResult{Name: "Structured index", Status: "ok", Message: eng.IndexPath()}
}
