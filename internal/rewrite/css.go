package rewrite

import (
	"net/url"
	"regexp"

	"github.com/JakeFAU/sitemirror/internal/mapping"
)

var (
	cssURLRe    = regexp.MustCompile(`(?i)url\(\s*(?:"([^"]*)"|'([^']*)'|([^)'"\s]+))\s*\)`)
	cssImportRe = regexp.MustCompile(`(?i)@import\s+(?:"([^"]*)"|'([^']*)')`)
)

// rewriteCSS points url() (and, when localizing code, @import) references
// at the local copies, relative to the stylesheet's own directory.
// Root-relative references resolve against the stylesheet's origin, so a
// sheet under _ext/<host>/ resolves against that host.
func (r *Rewriter) rewriteCSS(cssPath, text string) string {
	origin := mapping.Origin(cssPath, r.opts.PrimaryHost, r.opts.Scheme)
	rewrite := func(_, value string) (string, bool) {
		return r.cssRef(cssPath, value, origin)
	}
	text = spliceValues(text, cssURLRe, 1, rewrite)
	if r.opts.Mode.rewritesCode() {
		text = spliceValues(text, cssImportRe, 1, rewrite)
	}
	return text
}

func (r *Rewriter) cssRef(cssPath, value string, origin *url.URL) (string, bool) {
	u, ok := resolve(value, origin)
	if !ok || mapping.Classify(u) != mapping.KindAsset {
		return "", false
	}
	target, ok := r.localTarget(u, false)
	if !ok {
		return "", false
	}
	return relativeRef(cssPath, target, u), true
}
