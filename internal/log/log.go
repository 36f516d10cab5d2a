// Package log is the structured logger used across smallbiz-web. It sits on
// log/slog and adds trace correlation, captured stacks for errors and masking
// of admin credentials.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type Logger interface {
	With(kv ...any) Logger

	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, err error, msg string, kv ...any)

	Sync() error
}

type Options struct {
	App     string
	Version string
	Commit  string

	Level slog.Level
	// StacktraceLevel is the lowest level that gets a "stack" attribute.
	// Zero means error.
	StacktraceLevel slog.Level
	JSON            bool
	Writer          io.Writer

	// ErrorLinks adds an "error_links" attribute with the origin of each
	// wrap in an error chain, capped at MaxErrorLinks (default 8).
	ErrorLinks    bool
	MaxErrorLinks int

	// Redact adds attribute keys whose values are masked, on top of
	// DefaultRedactKeys.
	Redact []string
}

// DefaultRedactKeys are always masked. Matching is case-insensitive.
var DefaultRedactKeys = []string{
	"password",
	"secret",
	"authorization",
	"cookie",
	"set-cookie",
	"admin_session",
}

const redacted = "[redacted]"

func New(opts Options) (Logger, error) { return newSlogLogger(opts) }

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
}
