// Package httpserver assembles the public listener: the chi router with the
// admin routes, the site handler as its fallback, and the middleware stack.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/smallbiz-web/internal/health"
	"github.com/keithlinneman/smallbiz-web/internal/httpmw"
	"github.com/keithlinneman/smallbiz-web/internal/xerrors"
)

// compressible are the response types gzip/deflate is applied to.
var compressible = []string{
	"text/html",
	"text/css",
	"application/javascript",
	"text/javascript",
	"application/json",
	"image/svg+xml",
	"image/x-icon",
}

func newRouter(opts *Options) chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.Compress(5, compressible...),
		httpmw.AnnotateHTTPRoute,
		httpmw.AccessLog(),
	)

	if opts.Health != nil {
		r.Get("/-/healthy", health.Handler(opts.Health, "ok"))
	}
	if opts.Readiness != nil {
		r.Get("/-/ready", health.Handler(opts.Readiness, "ready"))
	}
	if opts.APIRoutes != nil {
		opts.APIRoutes(r)
	}
	if opts.SiteHandler != nil {
		r.NotFound(opts.SiteHandler.ServeHTTP)
		r.MethodNotAllowed(opts.SiteHandler.ServeHTTP)
	}
	return r
}

// NewHandler returns the router wrapped in the public middleware stack.
func NewHandler(opts *Options) http.Handler {
	L := opts.logger()

	// innermost first
	var stack []func(http.Handler) http.Handler
	stack = append(stack, httpmw.RequestLogger(L))
	if opts.MetricsMW != nil {
		stack = append(stack, opts.MetricsMW)
	}
	stack = append(stack, httpmw.TraceResponseHeaders("", ""))
	if opts.ContentInfo != nil {
		stack = append(stack, httpmw.ContentHeaders(opts.ContentInfo))
	}
	stack = append(stack, func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "http.server",
			otelhttp.WithFilter(httpmw.Traced),
			// AnnotateHTTPRoute renames the span once the route is known
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
		)
	})
	if opts.RateLimitMW != nil {
		stack = append(stack, opts.RateLimitMW)
	}
	stack = append(stack,
		httpmw.ClientIP(opts.ClientIPOpts),
		httpmw.RequestID(""),
	)
	if opts.UseRecoverMW {
		stack = append(stack, httpmw.Recover(L, opts.OnPanic))
	}
	stack = append(stack, httpmw.SecurityHeaders(opts.Security))

	var h http.Handler = newRouter(opts)
	for _, mw := range stack {
		h = mw(h)
	}
	return h
}

const (
	DefaultReadHeaderTimeout = 5 * time.Second
	// DefaultReadTimeout leaves room for a 5 MB image upload on a slow uplink.
	DefaultReadTimeout    = 30 * time.Second
	DefaultWriteTimeout   = 15 * time.Second
	DefaultIdleTimeout    = 60 * time.Second
	DefaultMaxHeaderBytes = 1 << 20
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start listens on opts.Port (DefaultPort when zero) and serves NewHandler
// in the background. The returned stop func shuts the server down once.
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	L := opts.logger()
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := fmt.Sprintf(":%d", port)

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen on %s", addr)
	}
	srv := NewServer(addr, NewHandler(opts))

	go func() {
		L.Info(ctx, "http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	return func(sctx context.Context) error {
		var err error
		once.Do(func() {
			L.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			err = srv.Shutdown(c)
		})
		return err
	}, nil
}
