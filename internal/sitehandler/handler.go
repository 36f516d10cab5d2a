package sitehandler

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/keithlinneman/smallbiz-web/internal/cryptoutil"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

type Handler struct {
	opts  Options
	index *template.Template
}

func New(opts *Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	t, err := parseTemplate(opts.TemplateFS, opts.IndexTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return &Handler{opts: *opts, index: t}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// hardening: only allow GET/HEAD
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch p := r.URL.Path; {
	case p == "" || p == "/" || p == "/index.html":
		h.serveIndex(w, r)
	case strings.HasPrefix(p, "/static/") && h.opts.StaticFS != nil:
		h.serveStatic(w, r, strings.TrimPrefix(p, "/static"))
	default:
		h.serveNotFound(w, r)
	}
}

func (h *Handler) serveIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := h.opts.Content.GetContent(ctx)
	if err != nil {
		h.opts.Logger.Warn(ctx, "content unavailable, serving maintenance page", "error", err)
		h.serveMaintenance(w, r)
		return
	}

	now := h.opts.Now().In(h.opts.Location)
	var buf bytes.Buffer
	if err := h.index.Execute(&buf, newPage(doc, now)); err != nil {
		h.opts.Logger.Error(ctx, err, "render index page")
		h.serveMaintenance(w, r)
		return
	}

	etag := `W/"` + cryptoutil.SHA256Hex(buf.Bytes())[:16] + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", h.opts.HTMLCacheControl)
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(buf.Bytes())
}

// etagMatches applies the weak comparison If-None-Match uses.
func etagMatches(header, etag string) bool {
	for cand := range strings.SplitSeq(header, ",") {
		cand = strings.TrimSpace(cand)
		if cand == "*" || strings.TrimPrefix(cand, "W/") == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}

func (h *Handler) serveStatic(w http.ResponseWriter, r *http.Request, urlPath string) {
	file, ok := resolveStatic(urlPath, h.opts.StaticFS)
	if !ok {
		h.serveNotFound(w, r)
		return
	}
	if cc := cacheControlForFile(file, h.opts); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	http.ServeFileFS(w, r, h.opts.StaticFS, file)
}

func (h *Handler) serveMaintenance(w http.ResponseWriter, r *http.Request) {
	// Maintenance should never be cached.
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", "60")

	serveFileWithStatus(w, r, http.StatusServiceUnavailable, h.opts.FallbackFS, h.opts.MaintenanceFile)
}

func (h *Handler) serveNotFound(w http.ResponseWriter, r *http.Request) {
	// avoid caching 404 responses
	w.Header().Set("Cache-Control", "no-store")

	if existsFile(h.opts.FallbackFS, h.opts.Fallback404File) {
		serveFileWithStatus(w, r, http.StatusNotFound, h.opts.FallbackFS, h.opts.Fallback404File)
		return
	}

	// last resort: plain text
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("404 page not found"))
}

// we want to serve a file but force an HTTP status code (404/503)
// but http.ServeFileFS writes a status code on its own so wrapping
// ResponseWriter and overriding the first WriteHeader call here
type statusOverrideWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusOverrideWriter) WriteHeader(code int) {
	if w.wroteHeader {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(w.status)
}

func (w *statusOverrideWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(w.status)
	}
	return w.ResponseWriter.Write(b)
}

func serveFileWithStatus(w http.ResponseWriter, r *http.Request, status int, fsys fs.FS, name string) {
	sw := &statusOverrideWriter{ResponseWriter: w, status: status}
	http.ServeFileFS(sw, r, fsys, name)
}
