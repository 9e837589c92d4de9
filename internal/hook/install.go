package hook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Installer injects and removes the managed snippet in shell rc files.
// Home is explicit so tests never touch the real rc files.
type Installer struct {
	Home string
}

// Install injects the snippet for the given shell kind into its rc file.
// Returns the rc path and whether anything was written (false when the
// snippet is already present).
func (in Installer) Install(shell string) (string, bool, error) {
	sh, ok := Shells[shell]
	if !ok {
		return "", false, fmt.Errorf("unsupported shell %q", shell)
	}

	rcPath := sh.RCPath(in.Home)
	current, err := readRC(rcPath)
	if err != nil {
		return rcPath, false, err
	}
	if strings.Contains(current, StartMarker) {
		return rcPath, false, nil
	}

	if err := writeRC(rcPath, injectSnippet(current, sh.Snippet())); err != nil {
		return rcPath, false, err
	}
	if shell == "bash" {
		if err := in.ensureBashProfileSourcesBashrc(); err != nil {
			return rcPath, true, err
		}
	}
	return rcPath, true, nil
}

// Uninstall removes the snippet from every supported shell's rc file.
// Returns the rc paths that were actually modified.
func (in Installer) Uninstall() ([]string, error) {
	var modified []string
	for _, sh := range Shells {
		rcPath := sh.RCPath(in.Home)
		current, err := readRC(rcPath)
		if err != nil {
			return modified, err
		}
		if current == "" {
			continue
		}
		cleaned, removed := removeSnippet(current)
		if !removed {
			continue
		}
		if err := writeRC(rcPath, cleaned); err != nil {
			return modified, err
		}
		modified = append(modified, rcPath)
	}
	return modified, nil
}

// Installed reports whether the snippet markers are present for the shell.
func (in Installer) Installed(shell string) bool {
	sh, ok := Shells[shell]
	if !ok {
		return false
	}
	content, err := readRC(sh.RCPath(in.Home))
	if err != nil {
		return false
	}
	return strings.Contains(content, StartMarker) && strings.Contains(content, EndMarker)
}

func readRC(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func writeRC(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// injectSnippet places the snippet before the first non-comment line so it
// runs ahead of prompt frameworks that take over PROMPT_COMMAND.
func injectSnippet(content, snippet string) string {
	if content == "" {
		return snippet
	}

	lines := strings.SplitAfter(content, "\n")
	insertAt := len(lines)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			insertAt = i
			break
		}
	}

	var b strings.Builder
	for i, line := range lines {
		if i == insertAt {
			if i > 0 && !strings.HasSuffix(lines[i-1], "\n") {
				b.WriteString("\n")
			}
			b.WriteString(snippet)
		}
		b.WriteString(line)
	}
	if insertAt == len(lines) {
		if !strings.HasSuffix(content, "\n") {
			b.WriteString("\n")
		}
		b.WriteString(snippet)
	}

	out := b.String()
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}

// removeSnippet strips the marker-delimited block, reporting whether one
// was found.
func removeSnippet(content string) (string, bool) {
	lines := strings.SplitAfter(content, "\n")
	start, end := -1, -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if start == -1 && trimmed == StartMarker {
			start = i
			continue
		}
		if start != -1 && trimmed == EndMarker {
			end = i
			break
		}
	}
	if start == -1 || end == -1 {
		return content, false
	}

	cleaned := strings.Join(append(append([]string{}, lines[:start]...), lines[end+1:]...), "")
	if cleaned != "" && !strings.HasSuffix(cleaned, "\n") {
		cleaned += "\n"
	}
	return cleaned, true
}

// ensureBashProfileSourcesBashrc makes bash login shells pick up .bashrc,
// where the snippet lives.
func (in Installer) ensureBashProfileSourcesBashrc() error {
	profile := filepath.Join(in.Home, ".bash_profile")
	const marker = "# Added by Blackcell to ensure bash login shells load .bashrc"
	const sourceLine = "if [ -f \"$HOME/.bashrc\" ]; then\n    source \"$HOME/.bashrc\"\nfi\n"

	content, err := readRC(profile)
	if err != nil {
		return err
	}
	if strings.Contains(content, ".bashrc") {
		return nil
	}
	if content != "" {
		content += "\n"
	}
	return writeRC(profile, content+marker+"\n"+sourceLine)
}
