package sitehandler

import (
	"io/fs"
	"path"

	"github.com/keithlinneman/smallbiz-web/internal/pathutil"
)

// resolveStatic maps a URL path below /static to a regular file within fsys.
// Directories, dot segments and hidden files never resolve.
func resolveStatic(urlPath string, fsys fs.FS) (file string, ok bool) {
	name, ok := pathutil.Relative(urlPath)
	if !ok || pathutil.Hidden(name) || path.Ext(name) == "" {
		return "", false
	}
	if !existsFile(fsys, name) {
		return "", false
	}
	return name, true
}

func existsFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
