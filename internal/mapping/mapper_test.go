package mapping

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestMapper() Mapper {
	return NewMapper(NewHostSet("example.com"), nil)
}

func TestMapperLocalPath(t *testing.T) {
	t.Parallel()

	m := newTestMapper()
	cases := []struct {
		name string
		url  string
		hint bool
		want string
	}{
		{"directory index", "https://example.com/a/b/", true, "a/b/index.html"},
		{"page without extension", "https://example.com/img", true, "img.html"},
		{"asset without extension", "https://example.com/img", false, "img"},
		{"external asset", "https://cdn.example/x.png", false, "_ext/cdn.example/x.png"},
		{"root slash", "https://example.com/", true, "index.html"},
		{"empty path", "https://example.com", true, "index.html"},
		{"meaningful query", "https://example.com/list?page=2", true, "list.qb941a131.html"},
		{"tracking only query", "https://example.com/list?utm_source=x&fbclid=1", true, "list.html"},
		{"version query dropped", "https://example.com/app.js?v=123", false, "app.js"},
		{"digest over unfiltered query", "https://example.com/style.css?id=7&utm_source=x", false, "style.q04e076dc.css"},
		{"asset query without extension", "https://example.com/blob?a=1&b=2", false, "blob.qd53cf64e.html"},
		{"host lowercased", "https://EXAMPLE.com/About", true, "About.html"},
		{"external with query", "https://cdn.example/fonts/a.woff2?q=shoes", false, "_ext/cdn.example/fonts/a.q5be507cf.woff2"},
		{"asset extension wins over hint", "https://example.com/archive.tar.gz", true, "archive.tar.gz"},
		{"dot directory name", "https://example.com/.well-known", true, ".well-known.html"},
		{"fragment ignored", "https://example.com/docs/#install", true, "docs/index.html"},
		{"dot segments cleaned", "https://example.com/a/../../b.png", false, "b.png"},
		{"trailing dot segment", "https://example.com/a/b/..", true, "a/index.html"},
		{"plain slash", "https://example.com/a/b", true, "a/b.html"},
		{"encoded slash stays in its segment", "https://example.com/a%2Fb", true, "a%2Fb.html"},
		{"empty segment kept", "https://example.com/a//b", true, "a/%/b.html"},
		{"literal percent escaped", "https://example.com/100%25", true, "100%25.html"},
		{"encoded space decoded", "https://example.com/my%20file.png", false, "my file.png"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := m.LocalPath(tc.url, tc.hint)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestMapperDistinctPathsDoNotCollide(t *testing.T) {
	t.Parallel()

	m := newTestMapper()
	seen := map[string]string{}
	for _, raw := range []string{
		"https://example.com/a/b",
		"https://example.com/a%2Fb",
		"https://example.com/a//b",
		"https://example.com/a%252Fb",
		"https://example.com/a%25/b",
	} {
		got, err := m.LocalPath(raw, true)
		require.NoError(t, err)
		prev, dup := seen[got]
		require.False(t, dup, "%s and %s both map to %s", prev, raw, got)
		seen[got] = raw
	}
}

func TestMapperTrackingVariantsShareAPath(t *testing.T) {
	t.Parallel()

	m := newTestMapper()
	want, err := m.LocalPath("https://example.com/post", true)
	require.NoError(t, err)
	for _, q := range []string{"utm_source=a", "utm_source=b&utm_medium=c", "gclid=1", "fbclid=2&ref=x", "_=123", "v=9"} {
		got, err := m.LocalPath("https://example.com/post?"+q, true)
		require.NoError(t, err)
		require.Equal(t, want, got, "query %q", q)
	}
}

func TestMapperDigestIsStable(t *testing.T) {
	t.Parallel()

	first, err := newTestMapper().LocalPath("https://example.com/search?q=shoes&page=2", true)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := newTestMapper().LocalPath("https://example.com/search?q=shoes&page=2", true)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
	other, err := newTestMapper().LocalPath("https://example.com/search?q=boots&page=2", true)
	require.NoError(t, err)
	require.NotEqual(t, first, other)
}

func TestMapperCustomTrackingList(t *testing.T) {
	t.Parallel()

	m := NewMapper(NewHostSet("example.com"), TrackingParams{"utm_"})
	got, err := m.LocalPath("https://example.com/app.js?v=123", false)
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("app.q%s.js", QueryDigest("v=123")), got)
}

func TestMapperParseError(t *testing.T) {
	t.Parallel()

	_, err := newTestMapper().LocalPath("http://[::1", true)
	require.Error(t, err)
}

func TestSplitExt(t *testing.T) {
	t.Parallel()

	cases := map[string][2]string{
		"/a/b.css":       {"/a/b", ".css"},
		"/a/b":           {"/a/b", ""},
		"/a.d/b":         {"/a.d/b", ""},
		"/.bashrc":       {"/.bashrc", ""},
		"/x.tar.gz":      {"/x.tar", ".gz"},
		"/dir/index.htm": {"/dir/index", ".htm"},
	}
	for in, want := range cases {
		base, ext := splitExt(in)
		require.Equal(t, want[0], base, in)
		require.Equal(t, want[1], ext, in)
	}
}
