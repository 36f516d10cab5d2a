package httpmw

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/smallbiz-web/internal/log"
)

// RequestLogger stores a logger carrying the request identity in the
// request context. It reads the request ID and client IP set by the
// middleware before it.
func RequestLogger(base log.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reqID := RequestIDFromContext(ctx)
			peer := r.RemoteAddr
			if host, _, err := net.SplitHostPort(peer); err == nil {
				peer = host
			}
			client := ClientIPFromContext(ctx)
			if client == "" {
				client = peer
			}
			scheme := requestScheme(r)

			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.String("request_id", reqID),
					attribute.String("client.address", client),
					attribute.String("network.peer.address", peer),
					attribute.String("url.scheme", scheme),
				)
			}

			L := base.With(
				"request_id", reqID,
				"client.address", client,
				"network.peer.address", peer,
				"server.address", r.Host,
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
				"url.scheme", scheme,
			)
			next.ServeHTTP(w, r.WithContext(log.WithContext(ctx, L)))
		})
	}
}

// AccessLog writes one "http request" record per request through the
// request logger. Quiet paths are skipped and 5xx responses log at warn.
// It also times the response write in a "response.write" child span.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &recorder{ResponseWriter: w, ctx: r.Context(), start: start}

			next.ServeHTTP(rec, r)
			rec.endWriteSpan()

			if quietPath(r.URL.Path) {
				return
			}

			status := rec.statusCode()
			kv := []any{
				"http.response.status_code", status,
				"http.server.request.duration", time.Since(start).Seconds(),
				"http.response.body.size", rec.bytes,
				"http.request.body.size", max(r.ContentLength, 0),
				"http.route", RouteLabel(r),
			}
			ctx := r.Context()
			L := log.FromContext(ctx)
			if status >= http.StatusInternalServerError {
				L.Warn(ctx, "http request", kv...)
				return
			}
			L.Info(ctx, "http request", kv...)
		})
	}
}

// requestScheme prefers X-Forwarded-Proto, which ClientIP has already
// removed unless it came from a trusted proxy.
func requestScheme(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-Proto"); xf != "" {
		first, _, _ := strings.Cut(xf, ",")
		switch s := strings.ToLower(strings.TrimSpace(first)); s {
		case "http", "https":
			return s
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// recorder captures the status and size of a response and the time spent
// blocked writing it.
type recorder struct {
	http.ResponseWriter
	status int
	bytes  int64

	ctx     context.Context
	start   time.Time
	span    trace.Span
	began   bool
	blocked time.Duration
	err     error
}

func (rw *recorder) statusCode() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

func (rw *recorder) beginWriteSpan() {
	if rw.began {
		return
	}
	rw.began = true
	if !trace.SpanFromContext(rw.ctx).IsRecording() {
		return
	}
	_, rw.span = otel.Tracer("smallbiz-web/httpmw").Start(rw.ctx, "response.write",
		trace.WithAttributes(attribute.Float64("http.server.ttfb_seconds", time.Since(rw.start).Seconds())),
	)
}

func (rw *recorder) endWriteSpan() {
	if rw.span == nil {
		return
	}
	rw.span.SetAttributes(
		attribute.Int("http.response.status_code", rw.statusCode()),
		attribute.Int64("http.response.body.size", rw.bytes),
		attribute.Float64("http.server.write.block_seconds", rw.blocked.Seconds()),
	)
	if rw.err != nil {
		rw.span.RecordError(rw.err)
		rw.span.SetStatus(codes.Error, rw.err.Error())
	}
	rw.span.End()
}

func (rw *recorder) WriteHeader(code int) {
	rw.beginWriteSpan()
	if rw.status == 0 {
		rw.status = code
	}
	t := time.Now()
	rw.ResponseWriter.WriteHeader(code)
	rw.blocked += time.Since(t)
}

func (rw *recorder) Write(b []byte) (int, error) {
	rw.beginWriteSpan()
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	t := time.Now()
	n, err := rw.ResponseWriter.Write(b)
	rw.blocked += time.Since(t)
	rw.bytes += int64(n)
	if err != nil && rw.err == nil {
		rw.err = err
	}
	return n, err
}

func (rw *recorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *recorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("httpmw: response writer cannot hijack")
}

func (rw *recorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }
