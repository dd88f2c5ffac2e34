package mapping

import (
	"net/url"
	"strings"
)

// Kind tells the crawler whether a reference is a page to enqueue or an asset
// to download.
type Kind int

// Reference kinds.
const (
	KindPage Kind = iota
	KindAsset
)

func (k Kind) String() string {
	if k == KindAsset {
		return "asset"
	}
	return "page"
}

// assetExtensions is the allowlist of static file suffixes.
var assetExtensions = []string{
	".css", ".js", ".mjs",
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
	".woff", ".woff2", ".ttf", ".otf", ".eot",
	".pdf",
	".mp4", ".webm", ".mov", ".avi", ".mp3", ".wav",
	".json", ".txt",
}

var codeExtensions = []string{".css", ".js", ".mjs"}

// IsAssetPath reports whether a URL path (query already removed) ends in an
// allowlisted asset extension.
func IsAssetPath(p string) bool {
	return hasAnySuffix(strings.ToLower(p), assetExtensions)
}

// IsCodePath reports whether p is a stylesheet or script.
func IsCodePath(p string) bool {
	return hasAnySuffix(strings.ToLower(p), codeExtensions)
}

// IsStylesheetPath reports whether p is a stylesheet.
func IsStylesheetPath(p string) bool {
	return strings.HasSuffix(strings.ToLower(p), ".css")
}

// Classify returns KindAsset when u's path is allowlisted, KindPage
// otherwise.
func Classify(u *url.URL) Kind {
	if u != nil && IsAssetPath(u.Path) {
		return KindAsset
	}
	return KindPage
}

// IsAsset parses rawURL and reports whether it is an asset. Unparseable input
// is never an asset.
func IsAsset(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return Classify(u) == KindAsset
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
