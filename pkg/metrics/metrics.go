// Package metrics defines the Prometheus instrumentation shared by
// the IMAP listener and the admin API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection metrics
var (
	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rover_connections_total",
			Help: "Total number of IMAP connections accepted",
		},
	)

	ConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rover_connections_current",
			Help: "Current number of open IMAP connections",
		},
	)

	AuthenticatedConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rover_authenticated_connections_current",
			Help: "Current number of authenticated IMAP connections",
		},
	)

	ConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rover_connection_duration_seconds",
			Help:    "Connection lifetime in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AuthenticationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rover_authentication_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"mechanism", "result"},
	)
)

// Command metrics
var (
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rover_commands_total",
			Help: "Total number of IMAP commands dispatched",
		},
		[]string{"command", "status"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rover_command_duration_seconds",
			Help:    "Command handling duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"command"},
	)
)

// Backend metrics
var (
	BackendCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rover_backend_calls_total",
			Help: "Total number of index backend calls",
		},
		[]string{"operation", "status"},
	)

	BackendCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rover_backend_call_duration_seconds",
			Help:    "Index backend call duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
		},
		[]string{"operation"},
	)
)
