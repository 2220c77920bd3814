package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

func init() {
	// NO_COLOR disables color; otherwise keep it even when piped.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// out is where command output goes. Tests swap it.
var out io.Writer = os.Stdout

func success(format string, a ...any) {
	green.Fprintf(out, "✓ %s\n", fmt.Sprintf(format, a...))
}

func warning(format string, a ...any) {
	yellow.Fprintf(out, "⚠ %s\n", fmt.Sprintf(format, a...))
}

func failure(format string, a ...any) {
	red.Fprintf(out, "✗ %s\n", fmt.Sprintf(format, a...))
}

func heading(format string, a ...any) {
	cyan.Fprintf(out, "%s\n", fmt.Sprintf(format, a...))
}

func detail(label, value string) {
	fmt.Fprintf(out, "  %-12s %s\n", label+":", value)
}

func printJSON(v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// truncate shortens s to max runes, marking the cut with "...".
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func renderProgressBar(percent float64, width int) string {
	filled := int(percent / 100.0 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return "[" + bar + "]"
}
