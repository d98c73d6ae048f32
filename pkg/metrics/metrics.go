package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SweepRuns counts sweeper passes by pass name (expire|overdue_notify|deadline_near) and result (ok|error).
	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pledger_sweep_runs_total",
			Help: "Total number of sweeper pass executions",
		},
		[]string{"pass", "result"},
	)

	// PromisesExpired counts promises transitioned to overdue by the expiry sweep.
	PromisesExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pledger_promises_expired_total",
			Help: "Total number of promises expired by the sweeper",
		},
	)

	// NotificationsCreated counts notifications persisted, labelled by type.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pledger_notifications_created_total",
			Help: "Total number of notifications created",
		},
		[]string{"type"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pledger_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
