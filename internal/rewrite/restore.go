package rewrite

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/JakeFAU/sitemirror/internal/mapping"
)

var (
	codeTagRe = regexp.MustCompile(`(?is)<(link|script)\b[^>]*>`)
	extRefRe  = regexp.MustCompile(`^(?:\./)?(?:\.\./)*` + regexp.QuoteMeta(mapping.ExternalDir) + `/([^/?#]+)/([^?#]+)$`)
)

// restoreCode sends localized cross-origin stylesheets and scripts back to
// their origin: <link href> and <script src> only.
func (r *Rewriter) restoreCode(text string) string {
	return codeTagRe.ReplaceAllStringFunc(text, func(tag string) string {
		want := "src"
		if strings.EqualFold(codeTagRe.FindStringSubmatch(tag)[1], "link") {
			want = "href"
		}
		return spliceValues(tag, attrRe, 2, func(name, value string) (string, bool) {
			if !strings.EqualFold(name, want) {
				return "", false
			}
			return r.restoreRef(html.UnescapeString(value))
		})
	})
}

// restoreRef maps "[../]_ext/<host>/<path>" to "<scheme>://<host>/<path>".
// The scheme is https unless one was given explicitly.
// File names with a query digest cannot be inverted and stay local.
func (r *Rewriter) restoreRef(value string) (string, bool) {
	m := extRefRe.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return "", false
	}
	host, rest := strings.ToLower(m[1]), m[2]
	if !mapping.IsCodePath(rest) || mapping.HasQueryDigest(rest) {
		return "", false
	}
	if r.restore.Len() > 0 && !r.restore.Contains(host) {
		return "", false
	}
	local, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return mapping.Origin(mapping.ExternalDir+"/"+host+"/"+local, host, r.extScheme).String(), true
}
