package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the controller.
// Using promauto for automatic registration with the default registry.
var (
	// --- Tick Metrics ---

	// TicksTotal counts monitoring worker tick cycles.
	TicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "acaqueue",
			Subsystem: "worker",
			Name:      "ticks_total",
			Help:      "Total number of monitoring worker tick cycles run while leader",
		},
	)

	// AppsEvaluated counts per-app decision evaluations.
	AppsEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "acaqueue",
			Subsystem: "worker",
			Name:      "apps_evaluated_total",
			Help:      "Total number of per-app decision evaluations",
		},
	)

	// AppTickSkipped counts ticks skipped because the prior tick's executor
	// for that app hadn't finished yet.
	AppTickSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acaqueue",
			Subsystem: "worker",
			Name:      "app_tick_skipped_total",
			Help:      "Ticks skipped per app because the previous tick's action was still in flight",
		},
		[]string{"container_app"},
	)

	// --- Decision Metrics ---

	// DecisionsTotal counts decisions by action and reason code.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acaqueue",
			Subsystem: "engine",
			Name:      "decisions_total",
			Help:      "Total number of decisions by action and reason code",
		},
		[]string{"action", "reason"},
	)

	// --- Action Executor Metrics ---

	// ActionsTotal counts executed actions by action and result.
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acaqueue",
			Subsystem: "executor",
			Name:      "actions_total",
			Help:      "Total number of actions executed against the container-app driver",
		},
		[]string{"action", "result"},
	)

	// ActionDuration tracks how long each driver call takes.
	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "acaqueue",
			Subsystem: "executor",
			Name:      "action_duration_seconds",
			Help:      "Duration of container-app driver calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~200s
		},
		[]string{"action"},
	)

	// RestartAttemptsTotal counts restart attempts per app.
	RestartAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acaqueue",
			Subsystem: "executor",
			Name:      "restart_attempts_total",
			Help:      "Total number of restart attempts per app",
		},
		[]string{"container_app"},
	)

	// --- Broker Probe Metrics ---

	// QueueDepth tracks the most recently observed pending message count.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "acaqueue",
			Subsystem: "broker",
			Name:      "queue_pending_messages",
			Help:      "Most recently observed pending message count per queue",
		},
		[]string{"container_app", "queue"},
	)

	// QueueActiveConsumers tracks the most recently observed consumer count.
	QueueActiveConsumers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "acaqueue",
			Subsystem: "broker",
			Name:      "queue_active_consumers",
			Help:      "Most recently observed consumer count per queue",
		},
		[]string{"container_app", "queue"},
	)

	// ProbeFailuresTotal counts broker probe failures per queue.
	ProbeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acaqueue",
			Subsystem: "broker",
			Name:      "probe_failures_total",
			Help:      "Total number of broker probe failures per queue",
		},
		[]string{"container_app", "queue"},
	)

	// --- Leadership Metrics ---

	// IsLeader reports 1 if this replica currently holds the lease.
	IsLeader = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "acaqueue",
			Subsystem: "coordination",
			Name:      "is_leader",
			Help:      "1 if this replica currently holds the leader lease, 0 otherwise",
		},
	)

	// --- Notification Metrics ---

	// NotificationsSent counts notification send attempts by kind and result.
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acaqueue",
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Total number of notification send attempts by kind and result",
		},
		[]string{"kind", "result"},
	)

	// --- Processing Alert Metrics ---

	// ProcessingAlertsTotal counts message-processing-too-long alerts emitted.
	ProcessingAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acaqueue",
			Subsystem: "engine",
			Name:      "processing_alerts_total",
			Help:      "Total number of message-processing-too-long alerts emitted",
		},
		[]string{"container_app", "queue"},
	)
)

// RecordDecision records a decision's action and reason code.
func RecordDecision(action, reason string) {
	DecisionsTotal.WithLabelValues(action, reason).Inc()
}

// RecordAction records a completed action's outcome and duration.
func RecordAction(action, result string, durationSeconds float64) {
	ActionsTotal.WithLabelValues(action, result).Inc()
	ActionDuration.WithLabelValues(action).Observe(durationSeconds)
}
