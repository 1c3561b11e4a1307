package main

import (
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	Green      = color.New(color.FgGreen).SprintFunc()
	Yellow     = color.New(color.FgYellow).SprintFunc()
	Cyan       = color.New(color.FgCyan).SprintFunc()
	Gray       = color.New(color.FgHiBlack).SprintFunc()
	Bold       = color.New(color.Bold).SprintFunc()
	BoldRed    = color.New(color.FgRed, color.Bold).SprintFunc()
	BoldGreen  = color.New(color.FgGreen, color.Bold).SprintFunc()
	BoldYellow = color.New(color.FgYellow, color.Bold).SprintFunc()
)

// configureColors disables color when asked to, when NO_COLOR is set or
// when w is not a terminal. FORCE_COLOR wins over terminal detection.
func configureColors(w io.Writer, disabled bool) {
	switch {
	case disabled || os.Getenv("NO_COLOR") != "":
		color.NoColor = true
	case os.Getenv("FORCE_COLOR") != "":
		color.NoColor = false
	default:
		color.NoColor = !isTerminal(w)
	}
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}
