package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashstore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cashstore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	LedgerAppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashstore_ledger_appends_total",
			Help: "Total number of ledger entries appended",
		},
		[]string{"kind", "source"},
	)

	LedgerAppendFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashstore_ledger_append_failures_total",
			Help: "Total number of rejected or failed ledger appends",
		},
		[]string{"reason"},
	)

	WalletDriftCorrectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cashstore_wallet_drift_corrections_total",
			Help: "Total number of wallet cache corrections made by reconciliation",
		},
	)

	WalletReconcilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashstore_wallet_reconciles_total",
			Help: "Total number of reconciliation passes",
		},
		[]string{"trigger", "result"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashstore_webhook_events_total",
			Help: "Total number of webhook deliveries by outcome",
		},
		[]string{"event_type", "outcome"},
	)

	AchievementUnlocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashstore_achievement_unlocks_total",
			Help: "Total number of achievement/challenge/streak unlocks",
		},
		[]string{"kind"},
	)

	TriggerEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashstore_trigger_events_total",
			Help: "Total number of gamification trigger events processed",
		},
		[]string{"event_type"},
	)

	SweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashstore_sweep_runs_total",
			Help: "Total number of scheduled sweep runs by outcome",
		},
		[]string{"job", "outcome"},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cashstore_sweep_duration_seconds",
			Help:    "Duration of scheduled sweep runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	NotificationQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cashstore_notification_queue_length",
			Help: "Current length of the reward notification queue",
		},
	)

	NotificationsQueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashstore_notifications_queued_total",
			Help: "Total number of reward notifications queued",
		},
		[]string{"type", "status"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordLedgerAppend(kind, source string) {
	LedgerAppendsTotal.WithLabelValues(kind, source).Inc()
}

func RecordLedgerAppendFailure(reason string) {
	LedgerAppendFailuresTotal.WithLabelValues(reason).Inc()
}

func RecordReconcile(trigger, result string) {
	WalletReconcilesTotal.WithLabelValues(trigger, result).Inc()
	if result == "corrected" {
		WalletDriftCorrectionsTotal.Inc()
	}
}

func RecordWebhookEvent(eventType, outcome string) {
	WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func RecordUnlock(kind string) {
	AchievementUnlocksTotal.WithLabelValues(kind).Inc()
}

func RecordTriggerEvent(eventType string) {
	TriggerEventsTotal.WithLabelValues(eventType).Inc()
}

func RecordSweepRun(job, outcome string, duration float64) {
	SweepRunsTotal.WithLabelValues(job, outcome).Inc()
	SweepDuration.WithLabelValues(job).Observe(duration)
}
