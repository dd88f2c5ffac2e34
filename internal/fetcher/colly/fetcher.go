// Package collyfetcher implements mirror.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/sitemirror/internal/mirror"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultTimeout      = 15 * time.Second
	DefaultMaxBodyBytes = 50 << 20
	DefaultUserAgent    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	// Insecure disables TLS certificate verification. Off unless asked for.
	Insecure bool
	Headers  http.Header
}

// Fetcher implements mirror.Fetcher using the Colly collector.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
}

// ErrBodyTooLarge marks a response larger than Config.MaxBodyBytes. Such a
// response is a failed fetch, never a truncated success.
var ErrBodyTooLarge = errors.New("response body too large")

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponseHeaders(colly.ResponseHeadersCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. The transport and its connection pool are shared by
// every fetch.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(cfg.Insecure),
	}
}

// Fetch executes a single HTTP GET using Colly. Redirects are followed;
// statuses of 400 and above come back as *mirror.ProtocolError and
// everything else that goes wrong as *mirror.TransportError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (mirror.Response, error) {
	var (
		result   mirror.Response
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(ctx, rawURL, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return mirror.Response{}, err
	}
	return result, nil
}

// buildCollector returns a fresh collector per fetch. Clones would share one
// http.Client, and the transport below carries this fetch's context.
func (f *Fetcher) buildCollector(
	ctx context.Context,
	rawURL string,
	start time.Time,
	result *mirror.Response,
	fetchErr *error,
) *colly.Collector {
	collector := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		colly.UserAgent(f.cfg.UserAgent),
		// One byte over the limit tells a full body from a cut one.
		colly.MaxBodySize(int(f.cfg.MaxBodyBytes+1)),
	)
	collector.WithTransport(&contextTransport{base: f.transport, ctx: ctx})
	collector.SetRequestTimeout(f.cfg.Timeout)

	f.configureCollectorHooks(collector, rawURL, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	rawURL string,
	start time.Time,
	result *mirror.Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(r)
	})

	hooks.OnResponseHeaders(func(r *colly.Response) {
		if r.StatusCode >= http.StatusBadRequest || r.Headers == nil {
			return
		}
		length, err := strconv.ParseInt(r.Headers.Get("Content-Length"), 10, 64)
		if err != nil || length <= f.cfg.MaxBodyBytes {
			return
		}
		*fetchErr = f.tooLarge(rawURL)
		if r.Request != nil {
			r.Request.Abort()
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		if r.StatusCode >= http.StatusBadRequest {
			*fetchErr = &mirror.ProtocolError{URL: rawURL, StatusCode: r.StatusCode}
			return
		}
		if int64(len(r.Body)) > f.cfg.MaxBodyBytes {
			*fetchErr = f.tooLarge(rawURL)
			return
		}
		finalURL := rawURL
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		contentType := ""
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
		*result = mirror.Response{
			URL:         rawURL,
			FinalURL:    finalURL,
			StatusCode:  r.StatusCode,
			ContentType: contentType,
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		// An abort after the headers surfaces here too; keep the real cause.
		if errors.Is(*fetchErr, ErrBodyTooLarge) {
			return
		}
		if r != nil && r.StatusCode >= http.StatusBadRequest {
			*fetchErr = &mirror.ProtocolError{URL: rawURL, StatusCode: r.StatusCode}
			return
		}
		*fetchErr = &mirror.TransportError{URL: rawURL, Err: err}
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return &mirror.TransportError{URL: rawURL, Err: fmt.Errorf("colly fetch canceled: %w", ctx.Err())}
	case err := <-done:
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			var protoErr *mirror.ProtocolError
			if errors.As(err, &protoErr) {
				return protoErr
			}
			return &mirror.TransportError{URL: rawURL, Err: fmt.Errorf("colly visit failed: %w", err)}
		}
		return nil
	}
}

func (f *Fetcher) tooLarge(rawURL string) error {
	return &mirror.TransportError{
		URL: rawURL,
		Err: fmt.Errorf("%w: exceeds %d bytes", ErrBodyTooLarge, f.cfg.MaxBodyBytes),
	}
}

func (f *Fetcher) copyHeaders(r *colly.Request) {
	if f.cfg.Headers == nil {
		return
	}
	for key, values := range f.cfg.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

// contextTransport ties outgoing requests to the fetch's context so a
// canceled run aborts in-flight transfers.
type contextTransport struct {
	base http.RoundTripper
	ctx  context.Context
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req.WithContext(t.ctx))
	if err != nil {
		return nil, fmt.Errorf("round trip %s: %w", req.URL, err)
	}
	return resp, nil
}

func newHTTPTransport(insecure bool) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		// #nosec G402 -- verification is only disabled on explicit opt-in.
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: insecure},
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}
}
