package cli

import (
	"os"

	"github.com/hasuno2/Blackcell/internal/hook"
)

// InstallCmd injects the capture snippet into the user's shell rc file.
type InstallCmd struct {
	Shell string `help:"Shell to install for (bash, zsh, fish; default: autodetect)"`
}

// Run executes the install command.
func (c *InstallCmd) Run(globals *Globals) error {
	shell := c.Shell
	if shell == "" {
		shell = hook.DetectShell()
	}
	if shell == "" {
		return outputError(globals, "UNSUPPORTED_SHELL",
			"could not detect a supported shell; pass --shell bash|zsh|fish")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return outputError(globals, "INTERNAL_ERROR", err.Error())
	}

	installer := hook.Installer{Home: home}
	rcPath, wrote, err := installer.Install(shell)
	if err != nil {
		return outputError(globals, "INSTALL_ERROR", err.Error())
	}

	if !wrote {
		globals.Info("Capture hook already installed in %s", rcPath)
		return nil
	}
	globals.Info("Installed capture hook into %s", rcPath)
	globals.Info("Open a new terminal to start recording sessions")
	return nil
}

// UninstallCmd removes the capture snippet from every supported rc file.
type UninstallCmd struct{}

// Run executes the uninstall command.
func (c *UninstallCmd) Run(globals *Globals) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return outputError(globals, "INTERNAL_ERROR", err.Error())
	}

	modified, err := hook.Installer{Home: home}.Uninstall()
	if err != nil {
		return outputError(globals, "UNINSTALL_ERROR", err.Error())
	}

	if len(modified) == 0 {
		globals.Info("No capture hook found")
		return nil
	}
	for _, path := range modified {
		globals.Info("Removed capture hook from %s", path)
	}
	return nil
}
