// Package metrics exposes Prometheus collectors for mirror and rewrite runs.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal               *prometheus.CounterVec
	bytesTotal                 *prometheus.CounterVec
	rewritesTotal              *prometheus.CounterVec
	frontierQueueDepth         prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; the Observe helpers call
// it themselves.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemirror_fetches_total",
				Help: "Total number of fetches, labeled by kind (page or asset) and status.",
			},
			[]string{"kind", "status"},
		)

		bytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemirror_bytes_total",
				Help: "Total number of bytes stored, labeled by kind.",
			},
			[]string{"kind"},
		)

		rewritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemirror_rewrites_total",
				Help: "Total number of files visited by the rewriter, labeled by kind and whether they changed.",
			},
			[]string{"kind", "changed"},
		)

		frontierQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitemirror_frontier_queue_depth",
				Help: "Number of page URLs waiting in the crawl frontier.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitemirror_ratelimit_delay_seconds",
				Help:    "Time fetches spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemirror_http_requests_total",
				Help: "Total number of requests to the metrics server, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitemirror_http_request_duration_seconds",
				Help:    "Histogram of metrics server latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch counts one fetch and the bytes it stored.
func ObserveFetch(kind, status string, bytesStored int) {
	Init()
	fetchesTotal.WithLabelValues(kind, status).Inc()
	if bytesStored > 0 {
		bytesTotal.WithLabelValues(kind).Add(float64(bytesStored))
	}
}

// ObserveRewrite counts one file visited by the rewriter.
func ObserveRewrite(kind string, changed bool) {
	Init()
	rewritesTotal.WithLabelValues(kind, strconv.FormatBool(changed)).Inc()
}

// SetQueueDepth publishes the frontier queue length.
func SetQueueDepth(n int) {
	Init()
	frontierQueueDepth.Set(float64(n))
}

// ObserveRateLimitDelay records how long a fetch to host waited for a token.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
