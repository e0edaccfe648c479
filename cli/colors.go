package main

import (
	"io"
	"os"
)

// colorEnabled reports whether ANSI colors should be written to w. Colors
// need a terminal and are off with --no-color or a non-empty NO_COLOR.
func colorEnabled(w io.Writer, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
