// Copyright 2021 Daniel Erat.
// All rights reserved.

// Package logging provides Musium's process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New returns a text-handler slog.Logger writing to w at the given level.
// Musium runs as a standalone daemon rather than inside App Engine, so
// there's no request-scoped logging context to hang messages off of;
// every call site instead attaches relevant fields directly, e.g.
// logger.Error("scan failed", "path", p, "err", err).
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Default returns a logger writing to stderr at the info level.
func Default() *slog.Logger {
	return New(os.Stderr, slog.LevelInfo)
}

// Fatal logs msg and args at the error level and then terminates the
// process. It's used for invariant violations that spec.md requires to
// abort the daemon with a diagnostic rather than attempt to continue
// (e.g. frozen-index corruption or an id collision among accepted files).
func Fatal(l *slog.Logger, msg string, args ...interface{}) {
	l.Error(msg, args...)
	os.Exit(1)
}
