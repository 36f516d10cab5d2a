package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed fallback templates static seed/content.json
var embedded embed.FS

func sub(dir string) fs.FS {
	s, err := fs.Sub(embedded, dir)
	if err != nil {
		panic(fmt.Errorf("webassets: %s subfs: %w", dir, err))
	}
	return s
}

// FallbackFS holds maintenance.html and 404.html, served when the content
// document cannot be loaded or a path does not exist.
func FallbackFS() fs.FS { return sub("fallback") }

// TemplatesFS holds the page templates: index.html, admin.html, login.html.
func TemplatesFS() fs.FS { return sub("templates") }

// StaticFS holds stylesheets and scripts served under /static/.
func StaticFS() fs.FS { return sub("static") }

// SeedContent returns the bundled starter content document. It is written to
// the content file on first start when that file does not exist yet.
func SeedContent() []byte {
	b, err := embedded.ReadFile("seed/content.json")
	if err != nil {
		panic(fmt.Errorf("webassets: read seed: %w", err))
	}
	return b
}
