// Package opshttp runs the operator listener: health, readiness, metrics,
// build and content diagnostics, and optionally pprof. It only answers
// loopback and private peers.
package opshttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/keithlinneman/smallbiz-web/internal/content"
	"github.com/keithlinneman/smallbiz-web/internal/health"
	"github.com/keithlinneman/smallbiz-web/internal/httpmw"
	"github.com/keithlinneman/smallbiz-web/internal/log"
	"github.com/keithlinneman/smallbiz-web/internal/version"
	"github.com/keithlinneman/smallbiz-web/internal/xerrors"
)

const DefaultPort = 9000

// ContentMeta exposes the last content load. Implemented by content.Store.
type ContentMeta interface {
	Meta() (content.Meta, bool)
	Backend() content.Source
}

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe

	// Build is served on /-/info.
	Build version.Info
	// Content adds the last content load to /-/info when set.
	Content ContentMeta

	UseRecoverMW bool
	OnPanic      func()
}

// NewHandler builds the ops routes behind the private network filter.
func NewHandler(L log.Logger, opts *Options) http.Handler {
	mux := http.NewServeMux()

	for _, p := range []string{"/healthz", "/-/healthy"} {
		mux.Handle(p, health.Handler(opts.Health, "ok"))
	}
	for _, p := range []string{"/readyz", "/-/ready"} {
		mux.Handle(p, health.Handler(opts.Readiness, "ready"))
	}
	mux.HandleFunc("/-/info", infoHandler(opts))

	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}
	if opts.EnablePprof {
		RegisterPprof(mux)
	} else {
		mux.HandleFunc("/debug/pprof/", http.NotFound)
	}

	var h http.Handler = requireNonPublicNetwork(L, mux)
	if opts.UseRecoverMW {
		h = httpmw.Recover(L, opts.OnPanic)(h)
	}
	return h
}

type infoResponse struct {
	Build   version.Info  `json:"build"`
	Backend string        `json:"content_backend,omitempty"`
	Content *content.Meta `json:"content"`
}

func infoHandler(opts *Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := infoResponse{Build: opts.Build}
		if opts.Content != nil {
			resp.Backend = string(opts.Content.Backend())
			if m, ok := opts.Content.Meta(); ok {
				resp.Content = &m
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// Start listens on opts.Port (DefaultPort when zero) and serves NewHandler.
// The returned stop func shuts the server down once; later calls return nil.
func Start(ctx context.Context, L log.Logger, opts *Options) (func(context.Context) error, error) {
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := fmt.Sprintf(":%d", port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(L, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// cpu profiles default to 30s
		WriteTimeout:   40 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen ops on %s", addr)
	}

	go func() {
		L.Info(ctx, "ops http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L.Error(ctx, err, "ops http server error")
		}
	}()

	var once sync.Once
	return func(sctx context.Context) error {
		var err error
		once.Do(func() {
			L.Info(sctx, "ops http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			err = srv.Shutdown(c)
		})
		return err
	}, nil
}
