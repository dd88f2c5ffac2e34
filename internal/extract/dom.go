package extract

import (
	"bytes"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// DOM is an Extractor that walks a parsed HTML tree instead of matching
// attribute patterns. CSS (stylesheets, style blocks and style attributes)
// is still scanned by pattern.
type DOM struct {
	fallback *Regex
}

// NewDOM returns the goquery-backed Extractor.
func NewDOM() *DOM {
	return &DOM{fallback: NewRegex()}
}

// Extract implements Extractor.
func (d *DOM) Extract(base *url.URL, body []byte, doc DocType) []Reference {
	if doc != DocHTML {
		return d.fallback.Extract(base, body, doc)
	}
	parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return d.fallback.Extract(base, body, doc)
	}

	c := newCollector(base)
	parsed.Find("[href],[src],[data-src]").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"href", "src", "data-src"} {
			if v, ok := s.Attr(attr); ok {
				c.add(v)
			}
		}
	})
	parsed.Find("[srcset],[data-srcset]").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"srcset", "data-srcset"} {
			if v, ok := s.Attr(attr); ok {
				for _, candidate := range SrcsetURLs(v) {
					c.add(candidate)
				}
			}
		}
	})
	parsed.Find("style").Each(func(_ int, s *goquery.Selection) {
		scanCSS(c, s.Text())
	})
	parsed.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("style")
		scanCSS(c, v)
	})
	return c.references()
}
