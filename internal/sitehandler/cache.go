package sitehandler

import (
	"path"
	"strings"
)

type cacheClass int

const (
	cacheOther cacheClass = iota
	cacheHTML
	cacheAsset
)

var extCache = map[string]cacheClass{
	"":       cacheHTML,
	".html":  cacheHTML,
	".css":   cacheAsset,
	".js":    cacheAsset,
	".png":   cacheAsset,
	".jpg":   cacheAsset,
	".jpeg":  cacheAsset,
	".webp":  cacheAsset,
	".gif":   cacheAsset,
	".svg":   cacheAsset,
	".ico":   cacheAsset,
	".woff":  cacheAsset,
	".woff2": cacheAsset,
}

// cacheControlForFile picks the Cache-Control policy for a static file by
// extension.
func cacheControlForFile(name string, o Options) string {
	switch extCache[strings.ToLower(path.Ext(name))] {
	case cacheHTML:
		return o.HTMLCacheControl
	case cacheAsset:
		return o.AssetCacheControl
	}
	return o.OtherCacheControl
}
