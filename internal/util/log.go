package util

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// ANSI color codes
const (
	Reset    = "\033[0m"
	Bold     = "\033[1m"
	Dim      = "\033[2m"
	Red      = "\033[31m"
	Green    = "\033[32m"
	Yellow   = "\033[33m"
	Cyan     = "\033[36m"
	BoldRed  = "\033[1;31m"
	BoldCyan = "\033[1;36m"
)

var (
	outMu  sync.Mutex
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// colorEnabled returns true if stderr is a TTY and NO_COLOR is not set.
var colorEnabled = sync.OnceValue(func() bool {
	return isColorTerminal(os.Stderr)
})

// stdoutColorEnabled returns true if stdout is a TTY and NO_COLOR is not set.
var stdoutColorEnabled = sync.OnceValue(func() bool {
	return isColorTerminal(os.Stdout)
})

func isColorTerminal(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// SetOutput redirects console output (used by tests and by commands that
// write through cobra's writers). It returns a function restoring the
// previous writers.
func SetOutput(out, errOut io.Writer) func() {
	outMu.Lock()
	prevOut, prevErr := stdout, stderr
	stdout, stderr = out, errOut
	outMu.Unlock()

	return func() {
		outMu.Lock()
		stdout, stderr = prevOut, prevErr
		outMu.Unlock()
	}
}

func writeErr(line string) {
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintln(stderr, line)
}

func writeOut(line string) {
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintln(stdout, line)
}

// colorize wraps msg in ANSI color codes if color is enabled for stderr.
func colorize(c, msg string) string {
	if !colorEnabled() {
		return msg
	}
	return c + msg + Reset
}

// StdoutColorEnabled returns true if stdout is a TTY and NO_COLOR is not set.
func StdoutColorEnabled() bool {
	return stdoutColorEnabled()
}

// colorizeStdout wraps msg in ANSI color codes if color is enabled for stdout.
func colorizeStdout(c, msg string) string {
	if !stdoutColorEnabled() {
		return msg
	}
	return c + msg + Reset
}

// Log prints an informational message to stderr with a cyan bold "==>" prefix.
func Log(msg string, args ...interface{}) {
	formatted := fmt.Sprintf(msg, args...)
	writeErr(fmt.Sprintf("%s %s", colorize(BoldCyan, "==>"), formatted))
}

// Success prints a success message to stderr with a green "==>" prefix.
func Success(msg string, args ...interface{}) {
	formatted := fmt.Sprintf(msg, args...)
	writeErr(fmt.Sprintf("%s %s", colorize(Green, "==>"), colorize(Green, formatted)))
}

// Section prints a bold section header to stdout (e.g., "==> suggestion").
func Section(msg string, args ...interface{}) {
	formatted := fmt.Sprintf(msg, args...)
	writeOut(colorizeStdout(Bold, "==> "+formatted))
}

// Error prints an error message to stderr without exiting.
func Error(msg string, args ...interface{}) {
	formatted := fmt.Sprintf(msg, args...)
	writeErr(fmt.Sprintf("%s %s", colorize(BoldRed, "ERROR:"), colorize(BoldRed, formatted)))
}

// Warn prints a warning message to stderr.
func Warn(msg string, args ...interface{}) {
	formatted := fmt.Sprintf(msg, args...)
	writeErr(fmt.Sprintf("%s %s", colorize(Yellow, "WARN:"), colorize(Yellow, formatted)))
}

// Colorf formats a string with the given color for stdout output.
func Colorf(c, format string, args ...interface{}) string {
	formatted := fmt.Sprintf(format, args...)
	return colorizeStdout(c, formatted)
}

// StatusTableRow represents a single row in a status table.
type StatusTableRow struct {
	Name   string
	Status string // Display text for status column
	Detail string // Extra info (PID, port, log path)
	Ok     bool   // true = green, false = red
}

// StatusTable prints rows as an aligned, colored table to stdout.
func StatusTable(rows []StatusTableRow) {
	if len(rows) == 0 {
		return
	}

	// Column widths use raw text length, not ANSI-colored length
	nameW, statusW := 0, 0
	for _, r := range rows {
		if len(r.Name) > nameW {
			nameW = len(r.Name)
		}
		if len(r.Status) > statusW {
			statusW = len(r.Status)
		}
	}

	for _, r := range rows {
		c := Green
		if !r.Ok {
			c = Red
		}
		// pad before coloring so escapes don't skew alignment
		status := colorizeStdout(c, fmt.Sprintf("%-*s", statusW, r.Status))
		detail := ""
		if r.Detail != "" {
			detail = colorizeStdout(Dim, r.Detail)
		}
		writeOut(fmt.Sprintf("  %-*s  %s  %s", nameW, r.Name, status, detail))
	}
}
