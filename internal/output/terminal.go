package output

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Plain reports whether output to f should skip colors and borders: when
// asked to, when NO_COLOR or CLICOLOR=0 is set, or when f is not a terminal.
// It also drops lipgloss to the ASCII profile so nothing else emits escapes.
func Plain(f *os.File, noColor bool) bool {
	plain := noColor || termenv.EnvNoColor() || os.Getenv("TERM") == "dumb" || !term.IsTerminal(int(f.Fd()))
	if plain {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	return plain
}
