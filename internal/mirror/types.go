package mirror

import (
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/sitemirror/internal/mapping"
)

// Response is the outcome of a successful fetch (status below 400).
type Response struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// MediaType returns the lowercased media type without parameters.
func (r Response) MediaType() string {
	if r.ContentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(r.ContentType, ";", 2)[0]))
	}
	return mt
}

// IsHTML reports whether the body should be scanned for links: an HTML
// content type, or a request path that looks like a document.
func (r Response) IsHTML() bool {
	switch r.MediaType() {
	case "text/html", "application/xhtml+xml":
		return true
	}
	p := requestPath(r.URL)
	return p == "" || strings.HasSuffix(p, "/") || strings.HasSuffix(p, ".html") || strings.HasSuffix(p, ".htm")
}

// IsStylesheet reports whether the response is CSS by content type or
// extension.
func (r Response) IsStylesheet() bool {
	return r.MediaType() == "text/css" || mapping.IsStylesheetPath(requestPath(r.URL))
}

func requestPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Path)
}

// State is the lifecycle of a URL inside the Frontier.
type State int

// URL states. Stored and Failed are terminal.
const (
	StateUnknown State = iota
	StateQueued
	StateFetching
	StateStored
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateFetching:
		return "fetching"
	case StateStored:
		return "stored"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stats counts what a run did.
type Stats struct {
	PagesStored  int `json:"pages_stored"`
	PagesFailed  int `json:"pages_failed"`
	AssetsStored int `json:"assets_stored"`
	AssetsFailed int `json:"assets_failed"`
	Skipped      int `json:"skipped"`
}

// Manifest summarizes a finished run. It is written next to the mirrored tree
// so the rewriter and humans can see what was captured.
type Manifest struct {
	RunID      string            `json:"run_id"`
	StartURL   string            `json:"start_url"`
	Hosts      []string          `json:"hosts"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Canceled   bool              `json:"canceled,omitempty"`
	Stats      Stats             `json:"stats"`
	Pages      map[string]string `json:"pages"`
	Assets     map[string]string `json:"assets"`
	Failed     []string          `json:"failed,omitempty"`
}
