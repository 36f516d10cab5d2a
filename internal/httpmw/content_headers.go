package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const shortHashLen = 12

// ContentInfo describes the last loaded content document. Implemented by
// content.Store.
type ContentInfo interface {
	ContentSource() string
	ContentHash() string
}

// ContentHeaders sets X-Content-Source and X-Content-Hash (first 12 hex
// characters) on every response, and the full values on the server span.
// Nothing is set before the first load. The values describe the most recent
// load, which may be older than the response.
func ContentHeaders(info ContentInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if info == nil {
				next.ServeHTTP(w, r)
				return
			}
			source, hash := info.ContentSource(), info.ContentHash()
			span := trace.SpanFromContext(r.Context())
			if source != "" {
				w.Header().Set("X-Content-Source", source)
				span.SetAttributes(attribute.String("content.source", source))
			}
			if hash != "" {
				w.Header().Set("X-Content-Hash", hash[:min(len(hash), shortHashLen)])
				span.SetAttributes(attribute.String("content.hash", hash))
			}
			next.ServeHTTP(w, r)
		})
	}
}
