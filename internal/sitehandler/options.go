package sitehandler

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/keithlinneman/smallbiz-web/internal/content"
	"github.com/keithlinneman/smallbiz-web/internal/log"
)

// ContentProvider returns the current content document.
type ContentProvider interface {
	GetContent(ctx context.Context) (*content.Document, error)
}

type Options struct {
	Logger log.Logger
	// Current content document
	Content ContentProvider

	// TemplateFS holds the page template, StaticFS is served under /static/,
	// FallbackFS holds the maintenance page and fallback 404
	TemplateFS fs.FS
	StaticFS   fs.FS
	FallbackFS fs.FS

	// Location is the site timezone for the announcement date window.
	// Defaults to time.Local.
	Location *time.Location
	Now      func() time.Time

	IndexTemplate   string // default: "index.html" (read from TemplateFS)
	MaintenanceFile string // default: "maintenance.html"
	Fallback404File string // default: "404.html"

	// Cache policies applied by file extension.
	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=86400"
	OtherCacheControl string // default: "public, max-age=3600"
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.IndexTemplate == "" {
		o.IndexTemplate = "index.html"
	}
	if o.MaintenanceFile == "" {
		o.MaintenanceFile = "maintenance.html"
	}
	if o.Fallback404File == "" {
		o.Fallback404File = "404.html"
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		// static assets are not fingerprinted so keep them short lived
		o.AssetCacheControl = "public, max-age=86400"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.Content == nil {
		return fmt.Errorf("%w: Content is nil", ErrInvalidOptions)
	}
	if o.TemplateFS == nil {
		return fmt.Errorf("%w: TemplateFS is nil", ErrInvalidOptions)
	}
	if o.FallbackFS == nil {
		return fmt.Errorf("%w: FallbackFS is nil", ErrInvalidOptions)
	}
	// Ensure maintenance exists (fail fast on boot if mispackaged).
	if _, err := fs.Stat(o.FallbackFS, o.MaintenanceFile); err != nil {
		return fmt.Errorf("%w: missing %q in fallback FS: %v", ErrInvalidOptions, o.MaintenanceFile, err)
	}
	// Fallback 404 is optional; we degrade to plain text if missing.
	return nil
}
