package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/opal-lang/beast/core/diag"
)

// CLIError represents a formatted CLI error with context
type CLIError struct {
	Message string
	Details string // Additional context
	Hint    string // How to fix it
}

// Error implements the error interface
func (e *CLIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Details != "" {
		b.WriteString("\n")
		b.WriteString(e.Details)
	}
	if e.Hint != "" {
		b.WriteString("\n")
		b.WriteString(e.Hint)
	}
	return b.String()
}

// errReported marks a failure whose diagnostics were already printed.
type errReported struct {
	count int
}

func (e *errReported) Error() string {
	if e.count == 1 {
		return "1 error"
	}
	return fmt.Sprintf("%d errors", e.count)
}

// FormatError formats an error for CLI output with colors
func FormatError(w io.Writer, err error, useColor bool) {
	if err == nil {
		return
	}

	var reported *errReported
	var cliErr *CLIError
	var list diag.List
	switch {
	case errors.As(err, &reported):
		_, _ = fmt.Fprintf(w, "%s%s\n", diag.Colorize("Error: ", diag.ColorRed, useColor), reported.Error())
	case errors.As(err, &cliErr):
		formatCLIError(w, cliErr, useColor)
	case errors.As(err, &list):
		_, _ = fmt.Fprint(w, diag.ErrorFormatter{Compact: true, Color: useColor}.FormatAll(list))
	default:
		_, _ = fmt.Fprintf(w, "%s%s\n", diag.Colorize("Error: ", diag.ColorRed, useColor), err.Error())
	}
}

// formatCLIError formats CLI errors
func formatCLIError(w io.Writer, err *CLIError, useColor bool) {
	_, _ = fmt.Fprintf(w, "%s%s\n", diag.Colorize("Error: ", diag.ColorRed, useColor), err.Message)

	if err.Details != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n", err.Details)
	}

	if err.Hint != "" {
		_, _ = fmt.Fprintf(w, "%s%s\n", diag.Colorize("Hint: ", diag.ColorYellow, useColor), err.Hint)
	}
}

// reporter prints diagnostics with the source line they point at.
type reporter struct {
	w       io.Writer
	sources map[string][]byte // Source text by diagnostic filename
	color   bool
	compact bool
}

// report prints l and returns an error counting its entries, or nil.
func (r *reporter) report(l diag.List) error {
	if len(l) == 0 {
		return nil
	}
	for i, d := range l {
		if i > 0 && !r.compact {
			_, _ = fmt.Fprintln(r.w)
		}
		f := diag.ErrorFormatter{Source: r.sources[d.Filename], Compact: r.compact, Color: r.color}
		_, _ = fmt.Fprint(r.w, f.Format(d))
	}
	return &errReported{count: len(l)}
}
