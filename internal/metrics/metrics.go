// Package metrics defines the Prometheus collectors for the KB service and
// the HTTP middleware that feeds them.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	DraftsCreatedTotal  *prometheus.CounterVec
	DraftsReviewedTotal *prometheus.CounterVec
	SearchQueriesTotal  *prometheus.CounterVec
	SearchResultsCount  prometheus.Histogram
	UpstreamFailures    *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketkb_http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticketkb_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),
		DraftsCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketkb_drafts_created_total",
				Help: "Drafts created, labelled by whether section parsing degraded.",
			},
			[]string{"parsed"},
		),
		DraftsReviewedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketkb_drafts_reviewed_total",
				Help: "Review decisions by outcome (approved, rejected).",
			},
			[]string{"decision"},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketkb_search_queries_total",
				Help: "Search queries, labelled by whether an answer was synthesized.",
			},
			[]string{"synthesized"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ticketkb_search_results_count",
				Help:    "Number of results returned per search.",
				Buckets: []float64{0, 1, 3, 5, 10, 25},
			},
		),
		UpstreamFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketkb_upstream_failures_total",
				Help: "Model provider calls that failed and were replaced by a placeholder.",
			},
			[]string{"capability"},
		),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DraftsCreatedTotal,
		m.DraftsReviewedTotal,
		m.SearchQueriesTotal,
		m.SearchResultsCount,
		m.UpstreamFailures,
	)
	return m
}

// Handler returns the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) DraftCreated(parsed bool) {
	if m == nil {
		return
	}
	m.DraftsCreatedTotal.WithLabelValues(strconv.FormatBool(parsed)).Inc()
}

func (m *Metrics) DraftReviewed(decision string) {
	if m == nil {
		return
	}
	m.DraftsReviewedTotal.WithLabelValues(decision).Inc()
}

func (m *Metrics) SearchServed(synthesized bool, results int) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(strconv.FormatBool(synthesized)).Inc()
	m.SearchResultsCount.Observe(float64(results))
}

// UpstreamFailure counts a failed generate or embed call.
func (m *Metrics) UpstreamFailure(capability string) {
	if m == nil {
		return
	}
	m.UpstreamFailures.WithLabelValues(capability).Inc()
}

// Middleware records request count and latency per chi route pattern, so
// path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}
