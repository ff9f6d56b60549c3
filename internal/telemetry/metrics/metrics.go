// Package metrics exposes Prometheus collectors for the fetch core.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal          *prometheus.CounterVec
	bytesFetchedTotal     *prometheus.CounterVec
	truncatedFetchesTotal *prometheus.CounterVec
	abortedFetchesTotal   *prometheus.CounterVec
	crawlDelayWaitSeconds *prometheus.HistogramVec
	queueDepth            *prometheus.GaugeVec
	activeWorkers         prometheus.Gauge
	robotsOutcomesTotal   *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "politefetch_fetches_total",
				Help: "Total number of fetches, labeled by host and resulting status.",
			},
			[]string{"host", "status"},
		)

		bytesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "politefetch_bytes_fetched_total",
				Help: "Total content bytes fetched, labeled by host.",
			},
			[]string{"host"},
		)

		truncatedFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "politefetch_truncated_fetches_total",
				Help: "Total fetches whose content was truncated at the configured cap.",
			},
			[]string{"host"},
		)

		abortedFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "politefetch_aborted_fetches_total",
				Help: "Total fetches aborted mid-read, for falling below the minimum response rate or on a read error.",
			},
			[]string{"host"},
		)

		crawlDelayWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "politefetch_crawl_delay_wait_seconds",
				Help:    "Histogram of time spent waiting for a per-host crawl-delay window.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"host"},
		)

		queueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "politefetch_queue_depth",
				Help: "Current backlog size of a per-host queue.",
			},
			[]string{"host"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "politefetch_active_workers",
				Help: "Number of fetch workers currently in flight.",
			},
		)

		robotsOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "politefetch_robots_outcomes_total",
				Help: "Total robots.txt acquisitions, labeled by disposition.",
			},
			[]string{"disposition"},
		)
	})
}

// SanitizeHost lowercases and extracts the hostname from rawURL, returning
// "unknown" if it cannot be parsed.
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

// ObserveFetch records the outcome of one fetch.
func ObserveFetch(rawURL, status string, bytesFetched int, truncated, aborted bool) {
	host := SanitizeHost(rawURL)
	fetchesTotal.WithLabelValues(host, status).Inc()
	if bytesFetched > 0 {
		bytesFetchedTotal.WithLabelValues(host).Add(float64(bytesFetched))
	}
	if truncated {
		truncatedFetchesTotal.WithLabelValues(host).Inc()
	}
	if aborted {
		abortedFetchesTotal.WithLabelValues(host).Inc()
	}
}

// ObserveCrawlDelayWait records time spent waiting for a host's crawl-delay
// window to open.
func ObserveCrawlDelayWait(host string, d time.Duration) {
	crawlDelayWaitSeconds.WithLabelValues(host).Observe(d.Seconds())
}

// SetQueueDepth records the current backlog size for host.
func SetQueueDepth(host string, depth int) {
	queueDepth.WithLabelValues(host).Set(float64(depth))
}

// IncActiveWorkers increments the active-workers gauge.
func IncActiveWorkers() { activeWorkers.Inc() }

// DecActiveWorkers decrements the active-workers gauge.
func DecActiveWorkers() { activeWorkers.Dec() }

// ObserveRobotsOutcome increments the robots-acquisition counter for the
// given disposition ("allowed", "forbidden", or "defer").
func ObserveRobotsOutcome(disposition string) {
	robotsOutcomesTotal.WithLabelValues(disposition).Inc()
}
