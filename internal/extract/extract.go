// Package extract finds outbound references in HTML and CSS documents.
//
// The default implementation is pattern based and knowingly approximate: it
// does not understand comments, nested quotes or script-generated markup.
// Callers depend only on the Extractor interface so a tokenizer-backed
// implementation (see NewDOM) can be swapped in without touching the crawl
// frontier or the path mapper.
package extract

import (
	"html"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/JakeFAU/sitemirror/internal/mapping"
)

// DocType selects which reference syntaxes are scanned.
type DocType int

// Document types.
const (
	DocHTML DocType = iota
	DocCSS
)

// Reference is an absolute http(s) URL discovered in a document.
type Reference struct {
	URL  string
	Kind mapping.Kind
}

// Extractor returns the deduplicated references found in body, resolved
// against base. Order is not significant but is deterministic.
type Extractor interface {
	Extract(base *url.URL, body []byte, doc DocType) []Reference
}

var (
	attrRe      = regexp.MustCompile(`(?i)\b(?:href|src)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	srcsetRe    = regexp.MustCompile(`(?i)\b(?:data-)?srcset\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	cssURLRe    = regexp.MustCompile(`(?i)url\(\s*(?:"([^"]*)"|'([^']*)'|([^)'"\s]+))\s*\)`)
	cssImportRe = regexp.MustCompile(`(?i)@import\s+(?:"([^"]*)"|'([^']*)')`)
)

var skippedSchemes = []string{"mailto:", "tel:", "javascript:", "data:"}

// Regex is the pattern-based Extractor.
type Regex struct{}

// NewRegex returns the pattern-based Extractor.
func NewRegex() *Regex {
	return &Regex{}
}

// Extract implements Extractor.
func (Regex) Extract(base *url.URL, body []byte, doc DocType) []Reference {
	c := newCollector(base)
	text := string(body)
	if doc == DocHTML {
		for _, m := range attrRe.FindAllStringSubmatch(text, -1) {
			c.add(html.UnescapeString(firstGroup(m)))
		}
		for _, m := range srcsetRe.FindAllStringSubmatch(text, -1) {
			for _, candidate := range SrcsetURLs(html.UnescapeString(firstGroup(m))) {
				c.add(candidate)
			}
		}
	}
	scanCSS(c, text)
	return c.references()
}

// SrcsetURLs returns the URL token of every candidate in a srcset value.
// Descriptors are dropped.
func SrcsetURLs(value string) []string {
	var out []string
	for _, candidate := range strings.Split(value, ",") {
		fields := strings.Fields(candidate)
		if len(fields) == 0 {
			continue
		}
		out = append(out, fields[0])
	}
	return out
}

// Skip reports whether raw is a reference that must never be resolved:
// empty, fragment-only, or one of the mailto/tel/javascript/data schemes.
func Skip(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return true
	}
	lower := strings.ToLower(raw)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

func scanCSS(c *collector, text string) {
	for _, m := range cssURLRe.FindAllStringSubmatch(text, -1) {
		c.add(firstGroup(m))
	}
	for _, m := range cssImportRe.FindAllStringSubmatch(text, -1) {
		c.add(firstGroup(m))
	}
}

func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

type collector struct {
	base *url.URL
	seen map[string]Reference
}

func newCollector(base *url.URL) *collector {
	return &collector{base: base, seen: make(map[string]Reference)}
}

func (c *collector) add(raw string) {
	if Skip(raw) {
		return
	}
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return
	}
	abs := ref
	if c.base != nil {
		abs = c.base.ResolveReference(ref)
	}
	if !mapping.IsHTTP(abs) || abs.Host == "" {
		return
	}
	key := mapping.CanonicalURL(abs)
	if _, ok := c.seen[key]; ok {
		return
	}
	c.seen[key] = Reference{URL: key, Kind: mapping.Classify(abs)}
}

func (c *collector) references() []Reference {
	out := make([]Reference, 0, len(c.seen))
	for _, ref := range c.seen {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}
