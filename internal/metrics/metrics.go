package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Harvest engine metrics
var (
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_sessions_started_total",
			Help: "Total number of harvest sessions admitted",
		},
	)

	SessionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_sessions_rejected_total",
			Help: "Total number of rejected harvest attempts",
		},
		[]string{"reason"},
	)

	SessionsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_sessions_ended_total",
			Help: "Total number of harvest sessions torn down",
		},
		[]string{"trigger"},
	)

	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_cycles_total",
			Help: "Total number of production cycles rolled",
		},
		[]string{"outcome"}, // hit / miss
	)

	SweepErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_sweep_errors_total",
			Help: "Total number of per-node errors isolated during sweeps",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvest_sweep_duration_seconds",
			Help:    "Wall time of one full scheduler sweep",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Presence metrics
var (
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_connected_clients",
			Help: "Current number of connected websocket clients",
		},
	)

	SnapshotsPushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_snapshots_pushed_total",
			Help: "Total number of room snapshots pushed to clients",
		},
	)
)
