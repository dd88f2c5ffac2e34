package mirror

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	transport := fmt.Errorf("page: %w", &TransportError{URL: "https://example.com/", Err: io.ErrUnexpectedEOF})
	var te *TransportError
	require.ErrorAs(t, transport, &te)
	assert.ErrorIs(t, transport, io.ErrUnexpectedEOF)
	assert.Equal(t, "transport_error", statusLabel(transport))

	protocol := &ProtocolError{URL: "https://example.com/x", StatusCode: 503}
	assert.Contains(t, protocol.Error(), "503")
	assert.Equal(t, "503", statusLabel(protocol))

	write := &WriteError{Path: "a/b.html", Err: errors.New("read-only")}
	assert.Contains(t, write.Error(), "a/b.html")
	assert.EqualError(t, errors.Unwrap(write), "read-only")
}

func TestParseStartURL(t *testing.T) {
	t.Parallel()

	u, err := ParseStartURL("  https://Example.com/start  ")
	require.NoError(t, err)
	assert.Equal(t, "Example.com", u.Host)

	for _, raw := range []string{"", "example.com", "mailto:a@b.c", "http://", "://bad"} {
		_, err := ParseStartURL(raw)
		assert.True(t, IsMalformedInput(err), "input %q", raw)
	}
}

func TestResponseClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		resp       Response
		html       bool
		stylesheet bool
	}{
		{name: "html type", resp: Response{URL: "https://e.x/a.png", ContentType: "text/html; charset=utf-8"}, html: true},
		{name: "xhtml", resp: Response{URL: "https://e.x/a", ContentType: "application/xhtml+xml"}, html: true},
		{name: "trailing slash", resp: Response{URL: "https://e.x/dir/", ContentType: "application/octet-stream"}, html: true},
		{name: "htm suffix", resp: Response{URL: "https://e.x/old.htm", ContentType: "text/plain"}, html: true},
		{name: "json", resp: Response{URL: "https://e.x/data", ContentType: "application/json"}},
		{name: "css type", resp: Response{URL: "https://e.x/style", ContentType: "text/css"}, stylesheet: true},
		{name: "css suffix", resp: Response{URL: "https://e.x/s.CSS?v=1", ContentType: "text/plain"}, stylesheet: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.html, tc.resp.IsHTML())
			assert.Equal(t, tc.stylesheet, tc.resp.IsStylesheet())
		})
	}
}
