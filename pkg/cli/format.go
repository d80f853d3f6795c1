// Package cli provides the table and color helpers used by the wcmpd
// commands.
package cli

import (
	"os"
	"strings"
)

// colorEnabled is false when NO_COLOR is set (see no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

const reset = "\033[0m"

func paint(sgr, s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[" + sgr + "m" + s + reset
}

// Green, Yellow, Red, Bold and Dim wrap s in the ANSI attribute of the same
// name, or return it unchanged when color is disabled.
func Green(s string) string  { return paint("32", s) }
func Yellow(s string) string { return paint("33", s) }
func Red(s string) string    { return paint("31", s) }
func Bold(s string) string   { return paint("1", s) }
func Dim(s string) string    { return paint("2", s) }

// Status renders a response code, green on success and red otherwise.
func Status(code string, ok bool) string {
	if ok {
		return Green(code)
	}
	return Red(code)
}

// DotPad pads name with dots to the given width.
// Example: DotPad("step 3", 12) -> "step 3 ....."
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	dots := width - len(name) - 1
	return name + " " + strings.Repeat(".", dots)
}
