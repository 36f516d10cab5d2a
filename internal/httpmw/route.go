package httpmw

import (
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Route labels for requests no chi route matched. The public site is served
// from the router's NotFound handler, so these cover every site request.
const (
	RouteIndex     = "/"
	RouteStatic    = "/static/*"
	RouteUnmatched = "unmatched"
)

// RouteLabel returns a bounded name for the route r was served by: the chi
// pattern when one matched, otherwise one of the Route* constants.
func RouteLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" && p != "/*" {
			return p
		}
	}
	switch p := r.URL.Path; {
	case p == "" || p == "/" || p == "/index.html":
		return RouteIndex
	case strings.HasPrefix(p, "/static/"):
		return RouteStatic
	}
	return RouteUnmatched
}

// quietPath reports paths left out of access logs and traces: health
// checks, browser probes and static assets.
func quietPath(p string) bool {
	switch p {
	case "/-/healthy", "/-/ready", "/favicon.ico", "/favicon.svg", "/robots.txt":
		return true
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".css", ".js", ".png", ".jpg", ".jpeg", ".webp", ".gif", ".svg", ".ico", ".woff", ".woff2", ".map":
		return true
	}
	return false
}

// Traced reports whether otelhttp should start a span for r.
func Traced(r *http.Request) bool { return !quietPath(r.URL.Path) }
