// Package metrics holds the Prometheus collectors exported by topiccache.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topiccache_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "topiccache_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "topiccache_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "topiccache_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)

	indexTopics = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "topiccache_index_topics",
			Help: "Number of distinct topics in the index",
		},
		[]string{"kind"},
	)

	indexParticipants = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "topiccache_index_participants",
			Help: "Number of participants holding registrations",
		},
		[]string{"kind"},
	)

	indexRegistrations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "topiccache_index_registrations",
			Help: "Number of live (participant, topic, type) registrations",
		},
		[]string{"kind"},
	)

	discoveryEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topiccache_discovery_events_total",
			Help: "Total number of discovery events applied to the index",
		},
		[]string{"kind", "action", "result"},
	)

	realtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "topiccache_realtime_connections",
			Help: "Number of active WebSocket participant connections",
		},
	)

	realtimeMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topiccache_realtime_messages_total",
			Help: "Total number of WebSocket messages received by type",
		},
		[]string{"type"},
	)

	diagnosticsDumps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topiccache_diagnostics_dumps_total",
			Help: "Total number of scheduled diagnostic dumps",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int) {
	statusStr := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

func IncrementInFlight() {
	httpRequestsInFlight.Inc()
}

func DecrementInFlight() {
	httpRequestsInFlight.Dec()
}

// UpdateIndexStats publishes the size of one index. kind is "publisher" or
// "subscriber".
func UpdateIndexStats(kind string, topics, participants, registrations int) {
	indexTopics.WithLabelValues(kind).Set(float64(topics))
	indexParticipants.WithLabelValues(kind).Set(float64(participants))
	indexRegistrations.WithLabelValues(kind).Set(float64(registrations))
}

// RecordDiscoveryEvent counts one add/remove applied to an index. result is
// "changed" or "unchanged".
func RecordDiscoveryEvent(kind, action string, changed bool) {
	result := "unchanged"
	if changed {
		result = "changed"
	}
	discoveryEvents.WithLabelValues(kind, action, result).Inc()
}

func UpdateRealtimeStats(connections int) {
	realtimeConnections.Set(float64(connections))
}

func RecordRealtimeMessage(msgType string) {
	realtimeMessages.WithLabelValues(msgType).Inc()
}

func RecordDiagnosticsDump() {
	diagnosticsDumps.Inc()
}

// NormalizePath collapses request paths into route patterns so that
// participant ids and topic kinds do not explode label cardinality.
func NormalizePath(path string) string {
	if len(path) > 100 {
		path = path[:100]
	}

	switch {
	case strings.HasPrefix(path, "/api/participants/"):
		return "/api/participants/:kind/:id"
	case strings.HasPrefix(path, "/api/count/"):
		return "/api/count/:kind"
	case strings.HasPrefix(path, "/api/topics/"):
		return "/api/topics/:kind"
	}
	return path
}
