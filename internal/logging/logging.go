// Package logging builds the slog logger shared by the CLI commands.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps debug, info, warn (or warning) and error to a slog level.
// An empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New returns a text logger writing to w at the given level. Unknown levels
// fall back to info.
func New(w io.Writer, level string) *slog.Logger {
	lvl, err := ParseLevel(level)
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	if err != nil {
		logger.Warn("falling back to info", "error", err)
	}
	return logger
}

// Component returns l tagged with a component name.
func Component(l *slog.Logger, name string) *slog.Logger {
	return l.With("component", name)
}
