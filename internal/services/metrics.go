// Package services – Prometheus instrumentation for the payment core.
//
// Counters here track the decisions the orchestrator and sweeper make, not
// HTTP traffic (that lives in the middleware package). Label cardinality is
// kept to the small closed set of transaction statuses.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// paymentsInitiated counts first-time initiations by resulting status.
	paymentsInitiated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_initiated_total",
			Help: "Total number of payment transactions created, by initial status.",
		},
		[]string{"status"},
	)

	// idempotentReplays counts initiate calls answered from an existing row.
	idempotentReplays = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_idempotent_replays_total",
			Help: "Total number of initiate calls served from an existing transaction.",
		},
	)

	// lockContention counts initiate calls rejected because the key lock was held.
	lockContention = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_lock_contention_total",
			Help: "Total number of initiate calls that found the idempotency-key lock held.",
		},
	)

	// providerFailures counts vendor calls that returned an error.
	providerFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_provider_failures_total",
			Help: "Total number of failed provider gateway calls.",
		},
	)

	// sweepTransitions counts status updates applied by the sweeper.
	sweepTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_sweep_transitions_total",
			Help: "Total number of status transitions applied by the reconciliation sweeper.",
		},
		[]string{"to_status"},
	)

	// sweepErrors counts per-transaction reconciliation failures (isolated,
	// never aborting the sweep).
	sweepErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_sweep_errors_total",
			Help: "Total number of transactions the sweeper failed to reconcile.",
		},
	)

	// notificationsSent counts delivered status-change notifications.
	notificationsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_notifications_sent_total",
			Help: "Total number of status-change notifications handed to the sink.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		paymentsInitiated,
		idempotentReplays,
		lockContention,
		providerFailures,
		sweepTransitions,
		sweepErrors,
		notificationsSent,
	)
}
