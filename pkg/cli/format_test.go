package cli

import (
	"strings"
	"testing"
)

func TestDotPad(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		width    int
		expected string
	}{
		{"normal case", "step 3", 12, "step 3 ....."},
		{"name equals width minus one", "abcde", 6, "abcde"},
		{"name longer than width", "very-long-name", 5, "very-long-name"},
		{"empty string", "", 10, " " + strings.Repeat(".", 9)},
		{"zero width", "x", 0, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DotPad(tt.input, tt.width); got != tt.expected {
				t.Errorf("DotPad(%q, %d) = %q, want %q", tt.input, tt.width, got, tt.expected)
			}
		})
	}
}

func withColor(t *testing.T, enabled bool) {
	t.Helper()
	saved := colorEnabled
	colorEnabled = enabled
	t.Cleanup(func() { colorEnabled = saved })
}

func TestColorFunctions(t *testing.T) {
	withColor(t, true)
	tests := []struct {
		name   string
		fn     func(string) string
		prefix string
	}{
		{"Green", Green, "\033[32m"},
		{"Yellow", Yellow, "\033[33m"},
		{"Red", Red, "\033[31m"},
		{"Bold", Bold, "\033[1m"},
		{"Dim", Dim, "\033[2m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn("hello")
			if got != tt.prefix+"hello\033[0m" {
				t.Errorf("%s(hello) = %q", tt.name, got)
			}
		})
	}
}

func TestNoColor(t *testing.T) {
	withColor(t, false)
	for _, fn := range []func(string) string{Green, Yellow, Red, Bold, Dim} {
		if got := fn("plain"); got != "plain" {
			t.Errorf("got %q with color disabled", got)
		}
	}
}

func TestStatus(t *testing.T) {
	withColor(t, true)
	if got := Status("SWSS_RC_SUCCESS", true); got != Green("SWSS_RC_SUCCESS") {
		t.Errorf("Status(ok) = %q", got)
	}
	if got := Status("SWSS_RC_FULL", false); got != Red("SWSS_RC_FULL") {
		t.Errorf("Status(failed) = %q", got)
	}
}
