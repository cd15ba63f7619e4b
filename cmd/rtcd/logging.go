package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// parseLevel accepts slog level names in any case and defaults to info
func parseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// setupLogger builds the process logger. format is "text" or "json" (default);
// debug level adds source locations.
func setupLogger(w io.Writer, level, format string) *slog.Logger {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug}

	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", appName, "version", Version, "pid", os.Getpid())
}
