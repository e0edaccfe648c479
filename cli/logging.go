package main

import (
	"io"
	"log/slog"
	"os"
)

// debugEnv enables debug logging like --debug.
const debugEnv = "BEAST_DEBUG"

// newLogger returns a text logger on w without timestamps or levels. Debug
// records are only emitted when debug is set or BEAST_DEBUG is non-empty.
func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug || os.Getenv(debugEnv) != "" {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Remove timestamp and level for cleaner output
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}
