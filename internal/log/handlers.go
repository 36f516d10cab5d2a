package log

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// traceHandler adds trace_id and span_id when ctx carries a valid span context.
type traceHandler struct{ next slog.Handler }

func (h traceHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}

func (h traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.next.Handle(ctx, r)
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{next: h.next.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{next: h.next.WithGroup(name)}
}

// stackHandler adds a "stack" attribute at or above level. The stack carried
// by the "err" attribute wins over the stack of the logging call.
type stackHandler struct {
	next  slog.Handler
	level slog.Level
}

type stackCarrier interface {
	StackPCs() []uintptr
}

func (h stackHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}

func (h stackHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < h.level {
		return h.next.Handle(ctx, r)
	}

	var pcs []uintptr
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != "err" {
			return true
		}
		if sc, ok := a.Value.Any().(stackCarrier); ok {
			pcs = sc.StackPCs()
		}
		return false
	})
	if len(pcs) == 0 {
		pcs = make([]uintptr, 64)
		// runtime.Callers, Handle
		pcs = pcs[:runtime.Callers(2, pcs)]
	}

	r.AddAttrs(slog.String("stack", formatStack(pcs)))
	return h.next.Handle(ctx, r)
}

func (h stackHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return stackHandler{next: h.next.WithAttrs(attrs), level: h.level}
}

func (h stackHandler) WithGroup(name string) slog.Handler {
	return stackHandler{next: h.next.WithGroup(name), level: h.level}
}

// internalFrame reports frames of the logging machinery itself. withErrors
// also skips the error wrapping package.
func internalFrame(fn string, withErrors bool) bool {
	if strings.HasPrefix(fn, "log/slog.") {
		return true
	}
	if i := strings.Index(fn, "/internal/log."); i >= 0 {
		rest := fn[i+len("/internal/log."):]
		for _, p := range []string{"(*slogLogger).", "stackHandler.", "traceHandler."} {
			if strings.HasPrefix(rest, p) {
				return true
			}
		}
	}
	return withErrors && strings.Contains(fn, "/internal/xerrors.")
}

// formatStack renders pcs as "func\n\tfile:line" pairs, starting at the first
// frame outside the logger and stopping at the runtime.
func formatStack(pcs []uintptr) string {
	frames := runtime.CallersFrames(pcs)
	var b strings.Builder
	started := false
	for {
		fr, more := frames.Next()
		if strings.HasPrefix(fr.Function, "runtime.") {
			break
		}
		if !started && fr.Function != "" && !internalFrame(fr.Function, false) {
			started = true
		}
		if started {
			fmt.Fprintf(&b, "%s\n\t%s:%d\n", fr.Function, fr.File, fr.Line)
		}
		if !more {
			break
		}
	}
	return strings.TrimSpace(b.String())
}
