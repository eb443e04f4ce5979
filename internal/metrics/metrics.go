// Package metrics provides Prometheus metrics for PlantPulse.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "plantpulse"
)

// Ingestion metrics
var (
	// ReadingsAccepted counts readings accepted into the pipeline.
	ReadingsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "readings_accepted_total",
			Help:      "Total sensor readings accepted into the pipeline",
		},
	)

	// ReadingsRejected counts dropped readings by reason.
	ReadingsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "readings_rejected_total",
			Help:      "Total sensor readings rejected, by reason",
		},
		[]string{"reason"},
	)

	// ReadingsOverloaded counts submissions refused under backpressure.
	ReadingsOverloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "readings_overloaded_total",
			Help:      "Total submissions refused because a worker queue was full",
		},
	)

	// PipelineQueueDepth tracks queued readings per worker.
	PipelineQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "queue_depth",
			Help:      "Readings queued per pipeline worker",
		},
		[]string{"worker"},
	)
)

// Scoring metrics
var (
	// ClassificationsTotal counts classifications by severity.
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scorer",
			Name:      "classifications_total",
			Help:      "Total classifications emitted, by severity",
		},
		[]string{"severity"},
	)

	// SeriesTracked tracks the number of live series models.
	SeriesTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scorer",
			Name:      "series_tracked",
			Help:      "Number of series models currently held in memory",
		},
	)
)

// Alert metrics
var (
	// AlertsOpened counts alerts opened by severity.
	AlertsOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "opened_total",
			Help:      "Total alerts opened, by severity",
		},
		[]string{"severity"},
	)

	// AlertsEscalated counts escalation transitions.
	AlertsEscalated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "escalated_total",
			Help:      "Total alert escalations",
		},
	)

	// AlertsResolved counts resolutions by kind (manual, auto).
	AlertsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "resolved_total",
			Help:      "Total alerts resolved, by kind",
		},
		[]string{"kind"},
	)

	// AlertsOpen tracks currently open (non-resolved) alerts.
	AlertsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "open",
			Help:      "Alerts currently open or acknowledged",
		},
	)
)

// Notification metrics
var (
	// NotificationAttempts counts delivery attempts by channel and outcome.
	NotificationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "attempts_total",
			Help:      "Total notification delivery attempts, by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	// NotificationJobsExhausted counts jobs that spent their retry budget.
	NotificationJobsExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "jobs_exhausted_total",
			Help:      "Total notification jobs exhausted after max attempts",
		},
		[]string{"channel"},
	)

	// NotificationSendDuration tracks channel call latency.
	NotificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "send_duration_seconds",
			Help:      "Channel delivery call latency in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks in-flight HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		},
	)
)
