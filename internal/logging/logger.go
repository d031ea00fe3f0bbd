// Package logging wraps log/slog with the field names used across the
// module.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with CrackMNIST-specific context.
type Logger struct {
	*slog.Logger
}

// New returns a Logger for handler. A nil handler writes text to stderr at
// info level.
func New(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger writes JSON records to w.
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger writes human-readable records to w.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NoopLogger discards everything.
func NoopLogger() *Logger {
	return New(slog.DiscardHandler)
}

// OrNoop returns l, or a no-op logger when l is nil.
func OrNoop(l *Logger) *Logger {
	if l == nil {
		return NoopLogger()
	}
	return l
}

// ParseLevel maps debug, info, warn and error to a level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(s))
	return l, err
}

// WithComponent tags records with the emitting package.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name)}
}

// WithVariant tags records with a dataset variant.
func (l *Logger) WithVariant(pixels int, size string) *Logger {
	return &Logger{Logger: l.Logger.With("pixels", pixels, "size", size)}
}

// WithPath tags records with a file path.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{Logger: l.Logger.With("path", path)}
}

// LogFetch logs the outcome of a file acquisition.
func (l *Logger) LogFetch(ctx context.Context, url, dest string, bytes int64, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "fetch failed",
			"url", url,
			"dest", dest,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "fetch completed",
		"url", url,
		"dest", dest,
		"bytes", bytes,
		"elapsed", elapsed,
	)
}

// LogOpen logs the outcome of opening a backing file.
func (l *Logger) LogOpen(ctx context.Context, path string, samples int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"path", path,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "dataset opened",
		"path", path,
		"samples", samples,
	)
}
