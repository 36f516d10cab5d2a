// Package pathutil checks slash-separated paths that arrive from URLs and
// client file names before they are used as file names or object keys.
package pathutil

import (
	"path"
	"strings"
)

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for seg := range strings.SplitSeq(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// Relative turns p into a clean relative path. It refuses empty paths,
// directories (a trailing slash), NUL bytes, backslashes and dot segments
// rather than cleaning them away.
func Relative(p string) (string, bool) {
	if strings.ContainsAny(p, "\x00\\") || strings.HasSuffix(p, "/") || HasDotSegments(p) {
		return "", false
	}
	rel := strings.TrimPrefix(path.Clean("/"+p), "/")
	if rel == "" {
		return "", false
	}
	return rel, true
}

// Hidden reports whether the last element of p starts with a dot.
func Hidden(p string) bool {
	return strings.HasPrefix(path.Base(p), ".")
}

// Slug lowercases s and keeps only letters, digits, '-' and '_'. Spaces
// and dots become '-'; leading and trailing dashes are trimmed.
func Slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
