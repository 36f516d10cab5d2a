package httpmw

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/smallbiz-web/internal/log"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	_, _ = io.WriteString(w, "ok")
})

// RequestID

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"none", "", false},
		{"well formed", "alb-1.2_3", true},
		{"spaces", "a b", false},
		{"newline", "abc\nlevel=ERROR", false},
		{"too long", strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if got != seen || got == "" {
				t.Fatalf("header %q, context %q", got, seen)
			}
			if tt.keep != (got == tt.incoming) {
				t.Fatalf("incoming %q gave %q", tt.incoming, got)
			}
			if !tt.keep && len(got) != 36 {
				t.Fatalf("generated id %q is not a uuid", got)
			}
		})
	}
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	if RequestIDFromContext(context.Background()) != "" {
		t.Fatal("want empty")
	}
	ctx := context.Background()
	if WithRequestID(ctx, "") != ctx {
		t.Fatal("empty id should not change the context")
	}
}

// ClientIP

func TestResolveClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		hops   int
		want   string
		keepFw bool
	}{
		{"direct public", "203.0.113.5:1234", "1.1.1.1", 1, "203.0.113.5", false},
		{"private peer no hops", "10.0.0.2:1234", "1.1.1.1", 0, "10.0.0.2", false},
		{"one proxy", "10.0.0.2:1234", "198.51.100.7", 1, "198.51.100.7", true},
		{"one proxy spoofed prefix", "10.0.0.2:1234", "6.6.6.6, 198.51.100.7", 1, "198.51.100.7", true},
		{"two proxies", "10.0.0.2:1234", "198.51.100.7, 192.0.2.44", 2, "198.51.100.7", true},
		{"chain too short", "10.0.0.2:1234", "198.51.100.7", 2, "10.0.0.2", false},
		{"garbage entry", "10.0.0.2:1234", "not-an-ip", 1, "10.0.0.2", true},
		{"loopback proxy", "127.0.0.1:1234", "198.51.100.7", 1, "198.51.100.7", true},
		{"no xff", "10.0.0.2:1234", "", 1, "10.0.0.2", true},
		{"mapped v4", "[::ffff:203.0.113.5]:1234", "", 0, "203.0.113.5", false},
		{"v6", "[2001:db8::1]:443", "", 0, "2001:db8::1", false},
		{"no port", "203.0.113.5", "", 0, "203.0.113.5", false},
		{"empty", "", "", 0, "0.0.0.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			req.Header.Set("X-Forwarded-Proto", "https")

			if got := resolveClientIP(req, tt.hops); got != tt.want {
				t.Fatalf("ip = %q, want %q", got, tt.want)
			}
			if kept := req.Header.Get("X-Forwarded-Proto") != ""; kept != tt.keepFw {
				t.Fatalf("forwarded headers kept = %v, want %v", kept, tt.keepFw)
			}
		})
	}
}

func TestClientIP_Middleware(t *testing.T) {
	var seen string
	h := ClientIP(ClientIPOptions{TrustedHops: 1})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = ClientIPFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "172.16.4.4:999"
	req.Header.Set("X-Forwarded-For", "198.51.100.20")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "198.51.100.20" {
		t.Fatalf("client ip = %q", seen)
	}
}

// MaxBody

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/", strings.NewReader("12345678")))
	if readErr != nil {
		t.Fatalf("at limit: %v", readErr)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/", strings.NewReader("123456789")))
	var tooLarge *http.MaxBytesError
	if !errors.As(readErr, &tooLarge) || tooLarge.Limit != 8 {
		t.Fatalf("over limit: %v", readErr)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if readErr != nil {
		t.Fatalf("no body: %v", readErr)
	}
}

// Recover

func TestRecover(t *testing.T) {
	calls := 0
	h := Recover(nil, func() { calls++ })(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("template exploded"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError || calls != 1 {
		t.Fatalf("status %d calls %d", rec.Code, calls)
	}
}

func TestRecover_AbortHandlerRepanics(t *testing.T) {
	h := Recover(log.Nop(), nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want ErrAbortHandler", r)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

// ContentHeaders

type contentInfo struct{ source, hash string }

func (c contentInfo) ContentSource() string { return c.source }
func (c contentInfo) ContentHash() string { return c.hash }

func TestContentHeaders(t *testing.T) {
	tests := []struct {
		name       string
		info       ContentInfo
		wantSource string
		wantHash   string
	}{
		{"loaded", contentInfo{"blob", "9f86d081884c7d659a2feaa0c55ad015"}, "blob", "9f86d081884c"},
		{"short hash", contentInfo{"file", "abc"}, "file", "abc"},
		{"before first load", contentInfo{}, "", ""},
		{"nil info", nil, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ContentHeaders(tt.info)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			if rec.Body.String() != "ok" {
				t.Fatal("next not called")
			}
			if got := rec.Header().Get("X-Content-Source"); got != tt.wantSource {
				t.Errorf("source = %q, want %q", got, tt.wantSource)
			}
			if got := rec.Header().Get("X-Content-Hash"); got != tt.wantHash {
				t.Errorf("hash = %q, want %q", got, tt.wantHash)
			}
		})
	}
}

// Routes and tracing

func TestRouteLabel(t *testing.T) {
	r := chi.NewRouter()
	var got string
	capture := func(w http.ResponseWriter, r *http.Request) { got = RouteLabel(r) }
	r.Get("/api/admin/content", capture)
	r.NotFound(capture)

	tests := map[string]string{
		"/api/admin/content":        "/api/admin/content",
		"/":                         RouteIndex,
		"/index.html":               RouteIndex,
		"/static/site.css":          RouteStatic,
		"/wp-login.php":             RouteUnmatched,
		"/static-but-not-really":    RouteUnmatched,
		"/api/admin/does-not-exist": RouteUnmatched,
	}
	for path, want := range tests {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
		if got != want {
			t.Errorf("RouteLabel(%s) = %q, want %q", path, got, want)
		}
	}
}

func TestTraced(t *testing.T) {
	for p, want := range map[string]bool{
		"/":                  true,
		"/api/admin/content": true,
		"/-/ready":           false,
		"/favicon.ico":       false,
		"/static/site.CSS":   false,
		"/static/app.js":     false,
	} {
		if got := Traced(httptest.NewRequest(http.MethodGet, p, nil)); got != want {
			t.Errorf("Traced(%s) = %v", p, got)
		}
	}
}

func TestTraceResponseHeaders(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: trace.TraceID{0xaa}, SpanID: trace.SpanID{0xbb}})
	h := TraceResponseHeaders("", "")(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(trace.ContextWithSpanContext(req.Context(), sc))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("X-Trace-Id") != sc.TraceID().String() || rec.Header().Get("X-Span-Id") != sc.SpanID().String() {
		t.Fatalf("headers = %v", rec.Header())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Trace-Id") != "" {
		t.Fatal("trace header without a span")
	}
}
