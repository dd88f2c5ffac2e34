package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemirror/internal/mirror"
)

type countingFetcher struct {
	calls atomic.Int32
}

func (f *countingFetcher) Fetch(_ context.Context, rawURL string) (mirror.Response, error) {
	f.calls.Add(1)
	return mirror.Response{URL: rawURL, StatusCode: 200}, nil
}

func TestLimiterWaitPacesOneHost(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://example.com/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://example.com/b"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/1"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://B.example/1"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestLimiterWaitHonorsCancel(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://example.com/"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx, "https://example.com/"))
}

func TestWrapFetcher(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	assert.Same(t, mirror.Fetcher(next), WrapFetcher(next, New(Config{})))
	assert.Same(t, mirror.Fetcher(next), WrapFetcher(next, nil))

	wrapped := WrapFetcher(next, New(Config{RPS: 100, Burst: 2}))
	require.NotSame(t, mirror.Fetcher(next), wrapped)
	resp, err := wrapped.Fetch(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", resp.URL)
	assert.EqualValues(t, 1, next.calls.Load())
}

func TestWrapFetcherCanceledWaitIsTransportError(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	wrapped := WrapFetcher(next, New(Config{RPS: 0.1, Burst: 1}))
	_, err := wrapped.Fetch(context.Background(), "https://example.com/1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = wrapped.Fetch(ctx, "https://example.com/2")
	var transportErr *mirror.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "https://example.com/2", transportErr.URL)
	assert.EqualValues(t, 1, next.calls.Load())
}
