// Package metrics defines Prometheus collectors for the sync daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RemoteCallsTotal counts calls made against the remote HR API
	RemoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keka_remote_calls_total",
			Help: "Total number of remote HR API calls",
		},
		[]string{"api"},
	)

	// RateLimitPausesTotal counts pause-and-sleep events caused by the call quota
	RateLimitPausesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keka_rate_limit_pauses_total",
			Help: "Total number of rate-limit pauses",
		},
		[]string{"engine"},
	)

	// SyncRunsTotal counts sync engine runs by outcome
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keka_sync_runs_total",
			Help: "Total number of sync runs",
		},
		[]string{"engine", "outcome"},
	)

	// SyncDuration tracks end-to-end sync run duration
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keka_sync_duration_seconds",
			Help:    "Sync run duration in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"engine"},
	)

	// AttendanceRecordsTotal counts attendance rows written by kind
	AttendanceRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keka_attendance_records_total",
			Help: "Total number of attendance records written",
		},
		[]string{"kind"}, // inserted, updated, skipped
	)

	// EmployeesMatchedTotal counts roster reconciliation outcomes
	EmployeesMatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keka_employees_matched_total",
			Help: "Total number of roster reconciliation outcomes",
		},
		[]string{"outcome"}, // matched, updated, conflict, unmatched
	)

	// ErrorsTotal counts errors encountered during sync runs
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keka_sync_errors_total",
			Help: "Total number of sync errors",
		},
		[]string{"engine", "kind"},
	)
)
