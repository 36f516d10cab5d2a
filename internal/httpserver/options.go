package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/smallbiz-web/internal/health"
	"github.com/keithlinneman/smallbiz-web/internal/httpmw"
	"github.com/keithlinneman/smallbiz-web/internal/log"
)

const DefaultPort = 8080

type Options struct {
	Logger log.Logger
	Port   int

	Health    health.Probe
	Readiness health.Probe

	// APIRoutes mounts the admin API and pages on the root router.
	APIRoutes func(chi.Router)
	// SiteHandler serves every request no route matched: the public page,
	// static assets and the 404 page.
	SiteHandler http.Handler

	// ContentInfo feeds X-Content-Source and X-Content-Hash.
	ContentInfo httpmw.ContentInfo

	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	Security     httpmw.SecurityOptions
}

func (o *Options) logger() log.Logger {
	if o.Logger == nil {
		return log.Nop()
	}
	return o.Logger
}
