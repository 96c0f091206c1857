package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/steveyegge/cutover/internal/config"
)

// newLogger builds the process logger from log.format / log.level and the
// --verbose and --quiet flags. One-shot commands never log below floor
// unless --verbose is set.
func newLogger(w io.Writer, floor slog.Level) *slog.Logger {
	level := logLevel()
	if !verboseFlag && level < floor {
		level = floor
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(config.GetString(config.KeyLogFormat), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func logLevel() slog.Level {
	switch {
	case verboseFlag:
		return slog.LevelDebug
	case quietFlag:
		return slog.LevelError
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(config.GetString(config.KeyLogLevel))); err != nil {
		return slog.LevelWarn
	}
	return level
}
