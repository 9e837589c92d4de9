// Package hook manages the shell-startup integration: the rc-file snippet
// that starts raw capture for new interactive shells and fires the
// per-prompt forwarder after every completed command.
package hook

import (
	"os"
	"path/filepath"
	"strings"
)

// Markers delimit the managed block inside the user's rc file.
const (
	StartMarker = "# >>> BLACKCELL START >>>"
	EndMarker   = "# <<< BLACKCELL END <<<"
)

// Shell describes one supported shell integration.
type Shell struct {
	Name    string
	RCFile  string // relative to the user's home directory
	snippet string
}

const bashSnippet = StartMarker + `
if [ -t 1 ] && [ -z "$BLACKCELL_ACTIVE" ] && [ "${SHELL##*/}" = "bash" ]; then
    case "$-" in
    *i*) ;;
    *) return ;;
    esac
    export BLACKCELL_ACTIVE=1
    eval "$(blackcell _begin --shell bash --tty "$(tty 2>/dev/null || echo notty)" --pid $$)"
    if [ -n "$BLACKCELL_SESSION" ]; then
        export BLACKCELL_LAST_HISTCMD="$HISTCMD"
        BLACKCELL_PROMPT_COMMAND='if [ "$BLACKCELL_LAST_HISTCMD" != "$HISTCMD" ]; then blackcell _record "$(history 1)"; BLACKCELL_LAST_HISTCMD="$HISTCMD"; fi'
        if [ -n "$PROMPT_COMMAND" ]; then
            BLACKCELL_PROMPT_COMMAND="$BLACKCELL_PROMPT_COMMAND; $PROMPT_COMMAND"
        fi
        export PROMPT_COMMAND="$BLACKCELL_PROMPT_COMMAND"
        script -af "$BLACKCELL_LOGFILE"
        blackcell _end "$BLACKCELL_SESSION"
        exit
    fi
fi
` + EndMarker + "\n"

const zshSnippet = StartMarker + `
if [[ -t 1 && -z "$BLACKCELL_ACTIVE" && "${SHELL##*/}" = "zsh" ]]; then
    case "$-" in
    *i*) ;;
    *) return ;;
    esac
    export BLACKCELL_ACTIVE=1
    eval "$(blackcell _begin --shell zsh --tty "$(tty 2>/dev/null || echo notty)" --pid $$)"
    if [[ -n "$BLACKCELL_SESSION" ]]; then
        export BLACKCELL_LAST_COMMAND=""
        typeset -ga precmd_functions
        function __blackcell_precmd() {
            local cmd
            cmd="$(fc -ln -1 2>/dev/null | tail -n 1 | sed -e 's/^[[:space:]]*//')"
            if [[ -n "$cmd" && "$BLACKCELL_LAST_COMMAND" != "$cmd" ]]; then
                BLACKCELL_LAST_COMMAND="$cmd"
                blackcell _record "$cmd"
            fi
        }
        if [[ -z "${precmd_functions[(r)__blackcell_precmd]}" ]]; then
            precmd_functions+=(__blackcell_precmd)
        fi
        script -af "$BLACKCELL_LOGFILE"
        blackcell _end "$BLACKCELL_SESSION"
        exit
    fi
fi
` + EndMarker + "\n"

const fishSnippet = StartMarker + `
if status --is-interactive; and test -z "$BLACKCELL_ACTIVE"; and test (basename "$SHELL") = "fish"
    set -gx BLACKCELL_ACTIVE 1
    eval (blackcell _begin --shell fish --tty (tty 2>/dev/null; or echo notty) --pid %self | string collect)
    if test -n "$BLACKCELL_SESSION"
        functions -q __blackcell_postexec; and functions -e __blackcell_postexec
        function __blackcell_postexec --on-event fish_postexec
            set -l last_cmd (history --max=1 | string trim)
            if test -n "$last_cmd"
                blackcell _record "$last_cmd"
            end
        end
        script -af "$BLACKCELL_LOGFILE"
        blackcell _end "$BLACKCELL_SESSION"
        exit
    end
end
` + EndMarker + "\n"

// Shells lists the supported integrations, keyed by shell kind.
var Shells = map[string]Shell{
	"bash": {Name: "bash", RCFile: ".bashrc", snippet: bashSnippet},
	"zsh":  {Name: "zsh", RCFile: ".zshrc", snippet: zshSnippet},
	"fish": {Name: "fish", RCFile: filepath.Join(".config", "fish", "config.fish"), snippet: fishSnippet},
}

// Snippet returns the managed rc block for this shell.
func (s Shell) Snippet() string {
	return s.snippet
}

// RCPath returns the absolute rc file path under home.
func (s Shell) RCPath(home string) string {
	return filepath.Join(home, s.RCFile)
}

// DetectShell returns the user's shell kind, honoring the BLACKCELL_SHELL
// override. Empty when the shell is unsupported or undetectable.
func DetectShell() string {
	for _, env := range []string{"BLACKCELL_SHELL", "SHELL"} {
		name := strings.ToLower(filepath.Base(os.Getenv(env)))
		if _, ok := Shells[name]; ok {
			return name
		}
	}
	return ""
}
