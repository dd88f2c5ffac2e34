package mirror

import (
	"context"
	"time"
)

// Fetcher retrieves one URL. Implementations return *TransportError or
// *ProtocolError on failure and must honor ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Response, error)
}

// BlobStore writes content at a slash-separated path relative to the output
// root and returns where it landed.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Progress is advanced by one for every stored page.
type Progress interface {
	Add(n int) error
}
