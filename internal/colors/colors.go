// Package colors colors fxstore terminal output. Color is used only when stdout is a
// terminal, unless overridden by NO_COLOR or FORCE_COLOR.
package colors

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ANSI color codes
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	red    = "\033[91m"
	green  = "\033[92m"
	yellow = "\033[93m"
	blue   = "\033[94m"
	cyan   = "\033[96m"
	gray   = "\033[90m"
)

var enabled = detect()

func detect() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	if strings.ToLower(os.Getenv("TERM")) == "dumb" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// SetEnabled forces color output on or off.
func SetEnabled(on bool) { enabled = on }

// Enabled reports whether output is colored.
func Enabled() bool { return enabled }

func colorize(text, color string) string {
	if !enabled {
		return text
	}
	return color + text + reset
}

func Bold(text string) string    { return colorize(text, bold) }
func Red(text string) string     { return colorize(text, red) }
func Green(text string) string   { return colorize(text, green) }
func Yellow(text string) string  { return colorize(text, yellow) }
func Cyan(text string) string    { return colorize(text, cyan) }
func Gray(text string) string    { return colorize(text, gray) }
func Blue(text string) string    { return colorize(text, blue) }
func Success(text string) string { return Green(text) }
func Warning(text string) string { return Yellow(text) }

// Op renders a sync operation name: removals red, directory creation blue, copies green.
func Op(kind string) string {
	switch kind {
	case "remove":
		return Red(kind)
	case "mkdir":
		return Blue(kind)
	case "copy":
		return Green(kind)
	default:
		return kind
	}
}
