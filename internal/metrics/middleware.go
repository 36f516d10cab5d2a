package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/smallbiz-web/internal/httpmw"
)

// sizeWriter records the status and body size written by the handler.
type sizeWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *sizeWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *sizeWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.size += n
	return n, err
}

func (w *sizeWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Middleware records in-flight requests, totals, latency, response size and
// 5xx errors. Routes are labelled with httpmw.RouteLabel so unmatched paths
// collapse into a fixed set of values.
//
// It runs outside the chi router, so it seeds a route context the router
// fills in; the matched pattern is then readable once next returns.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if chi.RouteContext(r.Context()) == nil {
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext()))
		}

		m.inflight.Inc()
		defer m.inflight.Dec()

		sw := &sizeWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		code := sw.status
		if code == 0 {
			code = http.StatusOK
		}
		route := httpmw.RouteLabel(r)
		method := methodLabel(r.Method)

		m.reqTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
		if code >= http.StatusInternalServerError {
			m.errorsTotal.WithLabelValues(method, route).Inc()
		}
		observe(r.Context(), m.reqDur.WithLabelValues(method, route), time.Since(start).Seconds())
		m.respBytes.WithLabelValues(method, route).Observe(float64(sw.size))
	})
}

// methodLabel folds unknown methods into one value.
func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return method
	}
	return "OTHER"
}

// observe attaches the trace ID of a sampled span as an exemplar.
func observe(ctx context.Context, o prometheus.Observer, v float64) {
	sc := trace.SpanContextFromContext(ctx)
	if eo, ok := o.(prometheus.ExemplarObserver); ok && sc.IsValid() && sc.IsSampled() {
		eo.ObserveWithExemplar(v, prometheus.Labels{"trace_id": sc.TraceID().String()})
		return
	}
	o.Observe(v)
}
