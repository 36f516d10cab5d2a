// Package health holds the liveness and readiness checks served on the ops
// and public listeners.
//
// Readiness for smallbiz-web is the shutdown gate plus the content store: a
// pod that cannot load its content document reports not ready with the
// load error as the reason.
package health

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/keithlinneman/smallbiz-web/internal/xerrors"
)

// Probe returns nil when healthy and the reason otherwise.
type Probe interface {
	Check(ctx context.Context) error
}

type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// OK always passes.
var OK CheckFunc = func(context.Context) error { return nil }

// Failing always fails with reason.
func Failing(reason string) CheckFunc {
	err := errors.New(reason)
	return func(context.Context) error { return err }
}

// All passes when every non-nil probe passes and returns the first failure.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Named prefixes failures of p with name, e.g. "content: ...".
func Named(name string, p Probe) CheckFunc {
	return func(ctx context.Context) error {
		return xerrors.Wrap(p.Check(ctx), name)
	}
}

// Gate fails readiness once Close is called so load balancers stop routing
// to the instance before its listeners shut down.
type Gate struct {
	reason atomic.Pointer[string]
}

// Close makes the gate fail with reason ("draining" when empty). Later calls
// replace the reason.
func (g *Gate) Close(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.reason.Store(&reason)
}

func (g *Gate) Closed() bool { return g.reason.Load() != nil }

func (g *Gate) Check(context.Context) error {
	if r := g.reason.Load(); r != nil {
		return errors.New(*r)
	}
	return nil
}

// Handler serves 200 with okBody when p passes and 503 with the failure
// reason otherwise. A nil p always passes.
func Handler(p Probe, okBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(err.Error() + "\n"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(okBody + "\n"))
	}
}
