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
			Name:    "relay_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// InboundEventsTotal tracks classified webhook events.
	InboundEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_inbound_events_total",
			Help: "Inbound platform events by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// RunDuration tracks assistant run duration from thread creation to the
	// final status.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_assistant_run_duration_seconds",
			Help:    "Assistant run duration",
			Buckets: []float64{1, 2, 3, 5, 8, 12, 18, 25, 40, 60},
		},
		[]string{"route", "status"},
	)

	// RunsTotal tracks assistant runs by final status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_assistant_runs_total",
			Help: "Assistant runs by route and final status",
		},
		[]string{"route", "status"},
	)

	// FallbacksTotal tracks fallback completions by the stage that degraded.
	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_fallbacks_total",
			Help: "Fallback completions by degradation stage and result",
		},
		[]string{"stage", "result"},
	)

	// DeliveriesTotal tracks outbound deliveries.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Outbound deliveries by sender mode and result",
		},
		[]string{"mode", "result"},
	)

	// FileAnalysesTotal tracks attachment analyses.
	FileAnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_file_analyses_total",
			Help: "Attachment analyses by result",
		},
		[]string{"result"},
	)

	// RelayFeedPublishFailures tracks relay records that could not be published.
	RelayFeedPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_feed_publish_failures_total",
			Help: "Relay records that failed to publish",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordRun records metrics for a finished assistant run.
func RecordRun(route, status string, duration float64) {
	RunDuration.WithLabelValues(route, status).Observe(duration)
	RunsTotal.WithLabelValues(route, status).Inc()
}

// RecordFallback records a fallback completion.
func RecordFallback(stage string, ok bool) {
	FallbacksTotal.WithLabelValues(stage, result(ok)).Inc()
}

// RecordDelivery records an outbound delivery.
func RecordDelivery(mode string, ok bool) {
	DeliveriesTotal.WithLabelValues(mode, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
