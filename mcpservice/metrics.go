package mcpservice

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records request and tool call counters for one process. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	requestTime  *prometheus.HistogramVec
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	listChanged  prometheus.Counter
}

// NewMetrics registers the server collectors with registerer, or with the
// default registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ultramcp_requests_total",
				Help: "Total number of JSON-RPC requests handled",
			},
			[]string{"server", "method", "status"},
		),
		requestTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ultramcp_request_duration_seconds",
				Help:    "Duration of JSON-RPC requests in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"server", "method"},
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ultramcp_tool_calls_total",
				Help: "Total number of tool calls by outcome",
			},
			[]string{"server", "tool", "outcome"},
		),
		toolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ultramcp_tool_call_duration_seconds",
				Help:    "Duration of tool calls in seconds",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"server", "tool"},
		),
		listChanged: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ultramcp_resource_list_changed_total",
				Help: "Total number of resource list changed notifications sent",
			},
		),
	}
}

// ObserveRequest records one handled JSON-RPC request.
func (m *Metrics) ObserveRequest(server, method string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.requests.WithLabelValues(server, method, status).Inc()
	m.requestTime.WithLabelValues(server, method).Observe(duration.Seconds())
}

// ObserveToolCall records one tool call. outcome is "ok", "tool_error" or
// "protocol_error".
func (m *Metrics) ObserveToolCall(server, tool, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(server, tool, outcome).Inc()
	m.toolDuration.WithLabelValues(server, tool).Observe(duration.Seconds())
}

// ObserveListChanged records one resource list changed notification.
func (m *Metrics) ObserveListChanged() {
	if m == nil {
		return
	}
	m.listChanged.Inc()
}
