// Package metrics exposes Prometheus collectors for the trend crawler.
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

// Video outcome labels.
const (
	OutcomeSaved   = "saved"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

var (
	videosTotal               *prometheus.CounterVec
	discoveredVideosTotal     *prometheus.CounterVec
	apiRequestsTotal          *prometheus.CounterVec
	apiRequestDurationSeconds *prometheus.HistogramVec
	gateInFlight              prometheus.Gauge
	rateLimitDelaysSeconds    *prometheus.HistogramVec
	sinkPushFailuresTotal     *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		videosTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendcrawler_videos_total",
				Help: "Total number of enrichment tasks settled, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		discoveredVideosTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendcrawler_discovered_videos_total",
				Help: "Video ids discovered on search pages, labeled by page source.",
			},
			[]string{"source"},
		)

		apiRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendcrawler_api_requests_total",
				Help: "Enrichment API requests, labeled by endpoint and status code.",
			},
			[]string{"endpoint", "code"},
		)

		apiRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trendcrawler_api_request_duration_seconds",
				Help:    "Histogram of enrichment API latencies, labeled by endpoint.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"endpoint"},
		)

		gateInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "trendcrawler_gate_in_flight",
				Help: "Number of enrichment tasks currently holding a gate slot.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trendcrawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		sinkPushFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendcrawler_sink_push_failures_total",
				Help: "Records a sink failed to persist, labeled by sink.",
			},
			[]string{"sink"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
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

// ObserveVideo counts one settled enrichment task.
func ObserveVideo(outcome string) {
	Init()
	videosTotal.WithLabelValues(outcome).Inc()
}

// ObserveDiscovered adds n ids found by the named page source.
func ObserveDiscovered(source string, n int) {
	Init()
	if n > 0 {
		discoveredVideosTotal.WithLabelValues(source).Add(float64(n))
	}
}

// ObserveAPIRequest records one enrichment API call. A code of 0 means transport failure.
func ObserveAPIRequest(endpoint string, code int, duration time.Duration) {
	Init()
	apiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	apiRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// SetGateInFlight publishes the number of held gate slots.
func SetGateInFlight(n int) {
	Init()
	gateInFlight.Set(float64(n))
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveSinkFailure counts a record the named sink could not persist.
func ObserveSinkFailure(sink string) {
	Init()
	sinkPushFailuresTotal.WithLabelValues(sink).Inc()
}
