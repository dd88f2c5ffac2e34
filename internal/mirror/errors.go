package mirror

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/sitemirror/internal/mapping"
)

// TransportError reports a network or TLS level failure.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a response with a status code of 400 or above.
type ProtocolError struct {
	URL        string
	StatusCode int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// WriteError reports a failure persisting content into the output tree.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// MalformedInputError reports user input that cannot start a run.
type MalformedInputError struct {
	Input  string
	Reason string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed input %q: %s", e.Input, e.Reason)
}

// IsMalformedInput reports whether err wraps a MalformedInputError.
func IsMalformedInput(err error) bool {
	var target *MalformedInputError
	return errors.As(err, &target)
}

// ParseStartURL validates the seed URL of a run. It must be absolute http or
// https with a host.
func ParseStartURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &MalformedInputError{Input: raw, Reason: "start url is required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &MalformedInputError{Input: raw, Reason: err.Error()}
	}
	if !mapping.IsHTTP(u) {
		return nil, &MalformedInputError{Input: raw, Reason: "scheme must be http or https"}
	}
	if u.Host == "" {
		return nil, &MalformedInputError{Input: raw, Reason: "missing host"}
	}
	return u, nil
}
