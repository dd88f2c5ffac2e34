// Package ratelimit caps the request rate per host with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/sitemirror/internal/metrics"
	"github.com/JakeFAU/sitemirror/internal/mirror"
)

// Config holds rate limiter settings. A non-positive RPS disables limiting.
type Config struct {
	RPS   float64
	Burst int
}

// Limiter keeps one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Enabled reports whether the limiter ever blocks.
func (l *Limiter) Enabled() bool {
	return l.limit != rate.Inf
}

// Wait blocks until rawURL's host has a token or ctx is done.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Immediate grants are not worth a sample.
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Fetcher waits on a Limiter before delegating each fetch.
type Fetcher struct {
	next    mirror.Fetcher
	limiter *Limiter
}

// WrapFetcher returns next unchanged when l never blocks.
func WrapFetcher(next mirror.Fetcher, l *Limiter) mirror.Fetcher {
	if l == nil || !l.Enabled() {
		return next
	}
	return &Fetcher{next: next, limiter: l}
}

// Fetch implements mirror.Fetcher. A canceled wait is reported as a
// transport error so the engine treats it like any other failed fetch.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (mirror.Response, error) {
	if err := f.limiter.Wait(ctx, rawURL); err != nil {
		return mirror.Response{}, &mirror.TransportError{URL: rawURL, Err: err}
	}
	return f.next.Fetch(ctx, rawURL) //nolint:wrapcheck // keeps the fetcher's error taxonomy
}
