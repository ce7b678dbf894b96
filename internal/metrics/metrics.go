// Package metrics provides Prometheus instrumentation for the StudyLink
// partner-matching services. It exposes counters for search and connection
// traffic, histograms for search latency and pool size, and a gauge for
// live notification sockets.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SearchesTotal counts partner searches, labeled by outcome:
	// "ok", "invalid", or "error".
	SearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "studylink_searches_total",
		Help: "Total number of partner searches processed",
	}, []string{"outcome"})

	// SearchDuration records end-to-end partner search latency in seconds,
	// including candidate pool and connection fetches.
	SearchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "studylink_search_duration_seconds",
		Help:    "Partner search latency in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	// CandidatePoolSize records how many candidates each search scored.
	CandidatePoolSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "studylink_candidate_pool_size",
		Help:    "Number of candidates scored per search",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
	})

	// ConnectionEventsTotal counts connection lifecycle events, labeled by
	// action: "request", "accept", or "decline".
	ConnectionEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "studylink_connection_events_total",
		Help: "Total number of connection lifecycle events",
	}, []string{"action"})

	// NotifyConnections tracks the current number of open notification
	// WebSocket connections.
	NotifyConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "studylink_notify_connections",
		Help: "Current number of open notification WebSocket connections",
	})
)

func init() {
	prometheus.MustRegister(
		SearchesTotal,
		SearchDuration,
		CandidatePoolSize,
		ConnectionEventsTotal,
		NotifyConnections,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
