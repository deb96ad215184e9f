// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ModelCallDuration tracks language model round-trips.
	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_duration_seconds",
			Help:    "Language model call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model", "phase", "status"},
	)

	// ExternalRequestDuration tracks calls to the listings and CRM providers.
	ExternalRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "external_request_duration_seconds",
			Help:    "External provider request duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		},
		[]string{"provider", "outcome"},
	)

	// ToolCallsTotal tracks model-issued tool invocations.
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_tool_calls_total",
			Help: "Total tool calls executed by the orchestration loop",
		},
		[]string{"tool", "outcome"},
	)

	// TurnsTotal tracks completed conversation turns.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_turns_total",
			Help: "Total conversation turns",
		},
		[]string{"tenant_id", "outcome"},
	)

	// SessionsActive tracks live agent sessions.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_sessions_active",
			Help: "Number of live agent sessions",
		},
	)

	// SSEConnectionsActive tracks open server-sent event streams.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordModelCall records one model round-trip.
func RecordModelCall(model, phase, status string, duration float64) {
	ModelCallDuration.WithLabelValues(model, phase, status).Observe(duration)
}

// RecordExternalRequest records one listings or CRM provider call.
func RecordExternalRequest(provider, outcome string, duration float64) {
	ExternalRequestDuration.WithLabelValues(provider, outcome).Observe(duration)
}

// RecordToolCall records one tool dispatch.
func RecordToolCall(tool, outcome string) {
	ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

// RecordTurn records the outcome of one orchestration cycle.
func RecordTurn(tenantID, outcome string) {
	TurnsTotal.WithLabelValues(tenantID, outcome).Inc()
}

// IncrementSessions increments the live session count.
func IncrementSessions() {
	SessionsActive.Inc()
}

// DecrementSessions decrements the live session count.
func DecrementSessions() {
	SessionsActive.Dec()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
