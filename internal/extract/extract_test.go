package extract

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemirror/internal/mapping"
)

const samplePage = `<!doctype html>
<html><head>
<link rel="stylesheet" href="/css/site.css">
<link rel="icon" href='favicon.ico'>
<style>@import "print.css"; body { background: url(/img/bg.png) }</style>
</head><body>
<a href="about/">About</a>
<a href="https://example.com/blog?page=2&amp;utm_source=x">Blog</a>
<a href="#top">Top</a>
<a href="mailto:me@example.com">Mail</a>
<a href="tel:+100">Call</a>
<a href="javascript:void(0)">Nope</a>
<img src="data:image/png;base64,AAAA">
<img src="https://cdn.example/x.png" srcset="a.png 1x, https://example.com/b.png 2x">
<img data-src="/lazy/photo.jpg" data-srcset="/lazy/photo@2x.jpg 2x">
<div style="background-image: url('//cdn.example/hero.webp')"></div>
<a href="ftp://files.example/x.zip">FTP</a>
<a href="/about/#team">Team</a>
</body></html>`

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func urlsOf(refs []Reference) map[string]mapping.Kind {
	out := make(map[string]mapping.Kind, len(refs))
	for _, r := range refs {
		out[r.URL] = r.Kind
	}
	return out
}

func TestExtractorsFindHTMLReferences(t *testing.T) {
	t.Parallel()

	want := map[string]mapping.Kind{
		"https://example.com/css/site.css":              mapping.KindAsset,
		"https://example.com/favicon.ico":               mapping.KindAsset,
		"https://example.com/print.css":                 mapping.KindAsset,
		"https://example.com/img/bg.png":                mapping.KindAsset,
		"https://example.com/about/":                    mapping.KindPage,
		"https://example.com/blog?page=2&utm_source=x":  mapping.KindPage,
		"https://cdn.example/x.png":                     mapping.KindAsset,
		"https://example.com/a.png":                     mapping.KindAsset,
		"https://example.com/b.png":                     mapping.KindAsset,
		"https://example.com/lazy/photo.jpg":            mapping.KindAsset,
		"https://example.com/lazy/photo@2x.jpg":         mapping.KindAsset,
		"https://cdn.example/hero.webp":                 mapping.KindAsset,
	}
	base := mustURL(t, "https://example.com/")

	for name, ex := range map[string]Extractor{"regex": NewRegex(), "dom": NewDOM()} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := urlsOf(ex.Extract(base, []byte(samplePage), DocHTML))
			assert.Equal(t, want, got)
		})
	}
}

func TestExtractCSSResolvesAgainstStylesheet(t *testing.T) {
	t.Parallel()

	css := `@import url("theme.css");
@import 'fonts/face.css';
.a { background: url(../img/a.png) }
.b { background: url( "data:image/gif;base64,R0lG" ) }
.c { src: url('https://fonts.example/f.woff2?v=2') format("woff2") }`
	base := mustURL(t, "https://example.com/static/css/site.css")

	got := urlsOf(NewRegex().Extract(base, []byte(css), DocCSS))
	assert.Equal(t, map[string]mapping.Kind{
		"https://example.com/static/css/theme.css":      mapping.KindAsset,
		"https://example.com/static/css/fonts/face.css": mapping.KindAsset,
		"https://example.com/static/img/a.png":          mapping.KindAsset,
		"https://fonts.example/f.woff2?v=2":             mapping.KindAsset,
	}, got)
}

func TestExtractCSSIgnoresMarkup(t *testing.T) {
	t.Parallel()

	base := mustURL(t, "https://example.com/a.css")
	refs := NewRegex().Extract(base, []byte(`/* <a href="/page">x</a> */`), DocCSS)
	assert.Empty(t, refs)
}

func TestExtractDeduplicatesFragments(t *testing.T) {
	t.Parallel()

	base := mustURL(t, "https://example.com/")
	refs := NewRegex().Extract(base, []byte(`<a href="/x#a"></a><a href="/x#b"></a><a href="/x"></a>`), DocHTML)
	require.Len(t, refs, 1)
	assert.Equal(t, "https://example.com/x", refs[0].URL)
}

func TestSkipAndSrcset(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "  ", "#x", "MAILTO:a@b", "tel:1", "javascript:x()", "data:,x"} {
		assert.True(t, Skip(raw), raw)
	}
	assert.False(t, Skip("/page"))
	assert.Equal(t, []string{"a.png", "b.png"}, SrcsetURLs(" a.png 1x ,, b.png  2x "))
}

func TestNewByName(t *testing.T) {
	t.Parallel()

	ex, err := New("")
	require.NoError(t, err)
	assert.IsType(t, &Regex{}, ex)
	ex, err = New(NameDOM)
	require.NoError(t, err)
	assert.IsType(t, &DOM{}, ex)
	_, err = New("tokenizer")
	assert.Error(t, err)
}
