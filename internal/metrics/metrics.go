// Package metrics holds the Prometheus collectors shared by the fetcher, the
// pipeline and the HTTP surface. Collectors register on the default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scrape outcome labels.
const (
	StatusSuccess   = "success"
	StatusError     = "error"     // provider answered with a non-2xx or unusable body
	StatusException = "exception" // transport failure or timeout
	StatusBlocked   = "blocked"   // body carried a CAPTCHA or block marker
)

var (
	ScrapeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serpctx_scrape_requests_total",
			Help: "Total number of provider fetches",
		},
		[]string{"provider", "status"},
	)

	ScrapeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "serpctx_scrape_duration_seconds",
			Help:    "Provider fetch latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	TokenUsage = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serpctx_token_usage_total",
			Help: "Estimated tokens produced, by context",
		},
		[]string{"context"}, // context: search, scrape, judge
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serpctx_cache_lookups_total",
			Help: "Result cache lookups by outcome",
		},
		[]string{"result"}, // result: hit, miss
	)

	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serpctx_tasks_total",
			Help: "Queue task executions by kind and final state",
		},
		[]string{"kind", "state"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "serpctx_task_duration_seconds",
			Help:    "Queue task execution time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serpctx_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

// RecordScrape counts one provider call and observes its latency.
func RecordScrape(provider, status string, elapsed time.Duration) {
	ScrapeRequests.WithLabelValues(provider, status).Inc()
	ScrapeDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordTokens adds an estimated token count under the given context label.
func RecordTokens(context string, tokens int) {
	if tokens <= 0 {
		return
	}
	TokenUsage.WithLabelValues(context).Add(float64(tokens))
}

// RecordCacheLookup counts one result cache lookup.
func RecordCacheLookup(hit bool) {
	if hit {
		CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	CacheLookups.WithLabelValues("miss").Inc()
}
