// Package metrics exposes Prometheus collectors for the loan scraper service.
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

// Outcome label values.
const (
	ScrapeOK            = "ok"
	ScrapeFetchError    = "fetch_error"
	ScrapeBadStatus     = "bad_status"
	ScrapeNoTable       = "no_table"
	ForwardSucceeded    = "success"
	ForwardFailed       = "failure"
	ForwardSkipped      = "skipped"
	UploadStored        = "stored"
	UploadRejected      = "rejected"
	UploadStorageFailed = "storage_error"
)

var (
	scrapeRunsTotal            *prometheus.CounterVec
	scrapeRecordsTotal         *prometheus.CounterVec
	scrapeFetchSeconds         *prometheus.HistogramVec
	forwardsTotal              *prometheus.CounterVec
	uploadsTotal               *prometheus.CounterVec
	uploadBytesTotal           prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapeRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loanscraper_scrape_runs_total",
				Help: "Total number of scrape runs, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		scrapeRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loanscraper_records_total",
				Help: "Total number of loan records produced, labeled by source.",
			},
			[]string{"source"},
		)

		scrapeFetchSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loanscraper_fetch_duration_seconds",
				Help:    "Histogram of rate page fetch latencies, labeled by site.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 15},
			},
			[]string{"site"},
		)

		forwardsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loanscraper_webhook_forwards_total",
				Help: "Total number of storage events forwarded to the webhook, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		uploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loanscraper_uploads_total",
				Help: "Total number of upload attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		uploadBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "loanscraper_upload_bytes_total",
				Help: "Total number of bytes written by the upload endpoint.",
			},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"method", "route"},
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

// ObserveScrape records the outcome of one pipeline run.
func ObserveScrape(site, outcome string, fetchDuration time.Duration) {
	Init()
	host := SanitizeSite(site)
	scrapeRunsTotal.WithLabelValues(host, outcome).Inc()
	if fetchDuration > 0 {
		scrapeFetchSeconds.WithLabelValues(host).Observe(fetchDuration.Seconds())
	}
}

// ObserveRecords adds to the produced-records counter.
func ObserveRecords(source string, count int) {
	Init()
	if count > 0 {
		scrapeRecordsTotal.WithLabelValues(source).Add(float64(count))
	}
}

// ObserveForward records a webhook notification attempt.
func ObserveForward(outcome string) {
	Init()
	forwardsTotal.WithLabelValues(outcome).Inc()
}

// ObserveUpload records an upload attempt and, when stored, its size.
func ObserveUpload(outcome string, size int64) {
	Init()
	uploadsTotal.WithLabelValues(outcome).Inc()
	if size > 0 {
		uploadBytesTotal.Add(float64(size))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
