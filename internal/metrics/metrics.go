// Package metrics holds the Prometheus collectors shared by the API server,
// the calendar sync dispatcher and the reminder worker.
//
// Label sets are kept small and closed: actions and statuses come from fixed
// enums and HTTP paths are chi route patterns, never raw URLs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dental"

var (
	// SyncAttempts counts calendar webhook calls by sync action and final
	// log status (exitoso/fallido).
	SyncAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_attempts_total",
			Help:      "Calendar sync attempts by action and outcome.",
		},
		[]string{"action", "status"},
	)

	SyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of calendar webhook calls in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"action"},
	)

	// AppointmentsRejected counts bookings refused by a scheduling rule.
	AppointmentsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_rejected_total",
			Help:      "Appointment writes rejected by a scheduling rule, by rule code.",
		},
		[]string{"code"},
	)

	Reminders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_total",
			Help:      "Appointment reminders by outcome (sent, failed, skipped).",
		},
		[]string{"status"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SyncAttempts,
		SyncDuration,
		AppointmentsRejected,
		Reminders,
		HTTPRequests,
		HTTPDuration,
		HTTPInflight,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
