package log

import "context"

type loggerKey struct{}

// WithContext stores l in ctx for FromContext. A nil l leaves ctx unchanged.
func WithContext(ctx context.Context, l Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the request-scoped logger, or Nop when none was stored.
func FromContext(ctx context.Context) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
			return l
		}
	}
	return Nop()
}
