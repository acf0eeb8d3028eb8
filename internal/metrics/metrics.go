// Package metrics exposes Prometheus collectors for the relay workers and the
// front-end.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by fetch and hand-off counters.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeUnavailable = "unavailable"
	OutcomeMalformed   = "malformed"
	OutcomePanic       = "panic"
)

var (
	relayPollsTotal            *prometheus.CounterVec
	relayFetchesTotal          *prometheus.CounterVec
	relayFetchDurationSeconds  *prometheus.HistogramVec
	relayHandoffsTotal         *prometheus.CounterVec
	relayHandoffWaitSeconds    *prometheus.HistogramVec
	relayRateLimitDelaySeconds *prometheus.HistogramVec
	relayPublishFailuresTotal  *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		relayPollsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_polls_total",
				Help: "Total number of mailbox polls, labeled by worker.",
			},
			[]string{"worker"},
		)

		relayFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_fetches_total",
				Help: "Total number of upstream fetches, labeled by worker and outcome.",
			},
			[]string{"worker", "outcome"},
		)

		relayFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_fetch_duration_seconds",
				Help:    "Histogram of upstream fetch latencies, labeled by worker.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"worker"},
		)

		relayHandoffsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_handoffs_total",
				Help: "Total number of caller hand-offs, labeled by worker and outcome.",
			},
			[]string{"worker", "outcome"},
		)

		relayHandoffWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_handoff_wait_seconds",
				Help:    "Histogram of time spent waiting for a result slot, labeled by worker.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"worker"},
		)

		relayRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations, labeled by host.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		relayPublishFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_publish_failures_total",
				Help: "Total number of result notifications that failed to publish, labeled by worker.",
			},
			[]string{"worker"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePoll counts one mailbox poll.
func ObservePoll(worker string) {
	Init()
	relayPollsTotal.WithLabelValues(worker).Inc()
}

// ObserveFetch records an upstream fetch and its latency.
func ObserveFetch(worker, outcome string, duration time.Duration) {
	Init()
	relayFetchesTotal.WithLabelValues(worker, outcome).Inc()
	relayFetchDurationSeconds.WithLabelValues(worker).Observe(duration.Seconds())
}

// ObserveHandoff records a caller hand-off and how long it waited.
func ObserveHandoff(worker, outcome string, wait time.Duration) {
	Init()
	relayHandoffsTotal.WithLabelValues(worker, outcome).Inc()
	relayHandoffWaitSeconds.WithLabelValues(worker).Observe(wait.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	relayRateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObservePublishFailure counts a notification that could not be published.
func ObservePublishFailure(worker string) {
	Init()
	relayPublishFailuresTotal.WithLabelValues(worker).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
