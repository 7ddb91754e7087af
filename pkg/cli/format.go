// Package cli provides terminal formatting helpers for the cmlkit command.
package cli

import (
	"os"
	"strings"
)

// colorEnabled is false when NO_COLOR env var is set (per no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

// Green wraps s in ANSI green. Returns s unchanged when NO_COLOR is set.
func Green(s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[32m" + s + "\033[0m"
}

// Yellow wraps s in ANSI yellow. Returns s unchanged when NO_COLOR is set.
func Yellow(s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[33m" + s + "\033[0m"
}

// Red wraps s in ANSI red. Returns s unchanged when NO_COLOR is set.
func Red(s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[31m" + s + "\033[0m"
}

// Bold wraps s in ANSI bold. Returns s unchanged when NO_COLOR is set.
func Bold(s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

// Dim wraps s in ANSI dim. Returns s unchanged when NO_COLOR is set.
func Dim(s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[2m" + s + "\033[0m"
}

// DotPad pads name with dots to the given width.
// Example: DotPad("base_url", 20) → "base_url ..........."
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	dots := width - len(name) - 1
	return name + " " + strings.Repeat(".", dots)
}

// State colors a lab or node state: running states green, transitional
// states yellow, failures red. Anything else is returned unchanged.
func State(state string) string {
	switch state {
	case "RUNNING", "STARTED", "BOOTED":
		return Green(state)
	case "BOOTING", "QUEUED", "DEFINED":
		return Yellow(state)
	case "FAILED", "ERROR", "UNKNOWN":
		return Red(state)
	case "STOPPED":
		return Dim(state)
	}
	return state
}

// Mark renders a success flag as a colored "ok" or "FAIL".
func Mark(ok bool) string {
	if ok {
		return Green("ok")
	}
	return Red("FAIL")
}
