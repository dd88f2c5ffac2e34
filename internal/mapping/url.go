package mapping

import (
	"fmt"
	"net/url"
	"strings"
)

// Canonical returns the dedup key for rawURL: scheme and host lowercased and
// the fragment removed. Query strings are kept byte for byte.
func Canonical(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	return CanonicalURL(u), nil
}

// CanonicalURL is Canonical for an already parsed URL. u is not modified.
func CanonicalURL(u *url.URL) string {
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

// IsHTTP reports whether u uses http or https.
func IsHTTP(u *url.URL) bool {
	if u == nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}

// Host returns the lowercased host (including any port) of u.
func Host(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
