package cmd

import (
	"fmt"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	cyan   = color.New(color.FgCyan)
	red    = color.New(color.FgRed)
	faint  = color.New(color.Faint)
)

// success prints a confirmation line.
func success(format string, a ...any) {
	green.Printf("  → "+format+"\n", a...)
}

// notice prints something the user should act on.
func notice(format string, a ...any) {
	yellow.Printf("  ⚠ "+format+"\n", a...)
}

// problem prints an error line.
func problem(format string, a ...any) {
	red.Printf("  ✗ "+format+"\n", a...)
}

// formatElapsed renders seconds as "1h 2m 3s", dropping leading zero units.
func formatElapsed(seconds int64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
