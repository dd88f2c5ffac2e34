package rewrite

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/JakeFAU/sitemirror/internal/extract"
)

var (
	attrRe      = regexp.MustCompile(`(?i)\b(href|src|data-src)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	srcsetRe    = regexp.MustCompile(`(?i)\b((?:data-)?srcset)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	styleAttrRe = regexp.MustCompile(`(?i)\b(style)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

// rewriteHTML applies the mode's HTML rules to one document.
func (r *Rewriter) rewriteHTML(docPath, text string) string {
	if r.opts.Mode == ModeRestore {
		return r.restoreCode(text)
	}
	origin := &url.URL{Scheme: r.opts.Scheme, Host: r.opts.PrimaryHost}

	text = spliceValues(text, attrRe, 2, func(name, value string) (string, bool) {
		return r.attrRef(docPath, html.UnescapeString(value), origin, strings.EqualFold(name, "href"))
	})
	if !r.opts.Mode.rewritesMedia() {
		return text
	}
	text = spliceValues(text, srcsetRe, 2, func(_, value string) (string, bool) {
		return r.srcset(docPath, value, origin)
	})
	return spliceValues(text, styleAttrRe, 2, func(_, value string) (string, bool) {
		return r.inlineStyle(docPath, value, origin)
	})
}

func (r *Rewriter) attrRef(docPath, value string, origin *url.URL, isHref bool) (string, bool) {
	if extract.Skip(value) {
		return "", false
	}
	u, ok := resolve(value, origin)
	if !ok {
		return "", false
	}
	target, ok := r.localTarget(u, isHref)
	if !ok {
		return "", false
	}
	return relativeRef(docPath, target, u), true
}

// srcset rewrites each candidate's URL token with the src rule. Descriptors
// are kept, joined to the URL by one space, and candidates are joined by
// ", ".
func (r *Rewriter) srcset(docPath, value string, origin *url.URL) (string, bool) {
	candidates := strings.Split(value, ",")
	out := make([]string, 0, len(candidates))
	changed := false
	for _, candidate := range candidates {
		fields := strings.Fields(candidate)
		if len(fields) == 0 {
			continue
		}
		token := fields[0]
		if ref, ok := r.attrRef(docPath, html.UnescapeString(token), origin, false); ok {
			token = ref
			changed = true
		}
		out = append(out, strings.Join(append([]string{token}, fields[1:]...), " "))
	}
	if !changed {
		return "", false
	}
	return strings.Join(out, ", "), true
}

// inlineStyle rewrites url() tokens in a style attribute. Only absolute and
// protocol-relative references are touched.
func (r *Rewriter) inlineStyle(docPath, value string, origin *url.URL) (string, bool) {
	out := spliceValues(value, cssURLRe, 1, func(_, ref string) (string, bool) {
		ref = strings.TrimSpace(html.UnescapeString(ref))
		if strings.HasPrefix(ref, "/") && !strings.HasPrefix(ref, "//") {
			return "", false
		}
		return r.attrRef(docPath, ref, origin, false)
	})
	return out, out != value
}
