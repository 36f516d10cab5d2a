package adminhttp

import (
	"context"
	"encoding/json"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/smallbiz-web/internal/auth"
	"github.com/keithlinneman/smallbiz-web/internal/blobstore"
	"github.com/keithlinneman/smallbiz-web/internal/httpmw"
	"github.com/keithlinneman/smallbiz-web/internal/log"
	"github.com/keithlinneman/smallbiz-web/internal/xerrors"
)

// Per-route request body limits.
const (
	LoginBodyLimit   = 4 << 10
	ContentBodyLimit = 1 << 20
	// outer cap for the upload stream; the image itself is limited to
	// media.MaxUploadSize while it is read
	UploadBodyLimit = 16 << 20
)

const (
	LoginPath     = "/admin/login"
	DashboardPath = "/admin"

	// debugListLimit caps the object listing on the storage debug route.
	debugListLimit = 100
)

type Options struct {
	Logger   log.Logger
	Auth     *auth.Authenticator
	Content  ContentStore
	Uploader Uploader
	Usage    UsageReporter
	// Blobs is nil when no bucket is configured.
	Blobs   blobstore.Store
	Metrics Metrics

	// TemplateFS holds login.html and admin.html.
	TemplateFS fs.FS

	// LoginLimit, when set, wraps the login endpoint, e.g. a strict per-IP
	// rate limiter.
	LoginLimit func(http.Handler) http.Handler

	// Location and Now date the export file name.
	Location *time.Location
	Now      func() time.Time
}

// API implements the admin JSON endpoints and serves the admin pages.
type API struct {
	opts      Options
	logger    log.Logger
	loginPage *template.Template
	dashPage  *template.Template
}

// NewAPI creates the admin API. Auth, Content, Uploader, Usage and
// TemplateFS are required.
func NewAPI(opts Options) (*API, error) {
	if opts.Auth == nil || opts.Content == nil || opts.Uploader == nil || opts.Usage == nil {
		return nil, xerrors.New("adminhttp: Auth, Content, Uploader and Usage are required")
	}
	if opts.TemplateFS == nil {
		return nil, xerrors.New("adminhttp: TemplateFS is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	login, err := template.ParseFS(opts.TemplateFS, "login.html")
	if err != nil {
		return nil, xerrors.Wrap(err, "adminhttp: parse login page")
	}
	dash, err := template.ParseFS(opts.TemplateFS, "admin.html")
	if err != nil {
		return nil, xerrors.Wrap(err, "adminhttp: parse dashboard page")
	}

	return &API{
		opts:      opts,
		logger:    opts.Logger,
		loginPage: login,
		dashPage:  dash,
	}, nil
}

// RegisterRoutes attaches the admin endpoints and pages to the router
func (api *API) RegisterRoutes(r chi.Router) {
	login := []func(http.Handler) http.Handler{httpmw.MaxBody(LoginBodyLimit)}
	if api.opts.LoginLimit != nil {
		login = append([]func(http.Handler) http.Handler{api.opts.LoginLimit}, login...)
	}
	r.With(login...).Post("/api/admin/login", api.HandleLogin)
	r.Post("/api/admin/logout", api.HandleLogout)

	r.Group(func(r chi.Router) {
		r.Use(api.opts.Auth.Require)
		r.Use(noStore)

		r.Get("/api/admin/content", api.HandleGetContent)
		r.With(httpmw.MaxBody(ContentBodyLimit)).Put("/api/admin/content", api.HandlePutContent)
		r.Get("/api/admin/content/export", api.HandleExport)
		r.With(httpmw.MaxBody(UploadBodyLimit)).Post("/api/admin/upload", api.HandleUpload)
		r.Get("/api/admin/blob-usage", api.HandleBlobUsage)
		r.Get("/api/admin/debug/storage", api.HandleStorageDebug)
	})

	r.Get(LoginPath, api.HandleLoginPage)
	r.With(api.opts.Auth.RequirePage(LoginPath)).Get(DashboardPath, api.HandleDashboard)
}

func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if w.Header().Get("Cache-Control") == "" {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}

func (api *API) writeError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	api.writeJSON(ctx, w, status, errorResponse{Error: msg})
}

func (api *API) renderPage(w http.ResponseWriter, r *http.Request, t *template.Template) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Robots-Tag", "noindex")
	if err := t.Execute(w, nil); err != nil {
		api.logger.Error(r.Context(), xerrors.Wrapf(err, "render %s", t.Name()), "admin page render failed")
	}
}
