package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		chargeAttemptsTotal,
		chargeTickDuration,
		chargeTickMandates,
		reconciliationTasksTotal,
	)
}

var (
	chargeAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charge_attempts_total",
			Help: "Scheduler charge attempts by outcome.",
		},
		[]string{"outcome"}, // 'success', 'failed', 'skipped', 'error', 'paused'
	)

	chargeTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "charge_tick_duration_seconds",
			Help:    "Wall time of a charge scheduler tick.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	chargeTickMandates = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "charge_tick_mandates",
			Help: "Number of due mandates selected by the last tick.",
		},
	)

	reconciliationTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_tasks_total",
			Help: "Provider reconciliation tasks by kind and status.",
		},
		[]string{"kind", "status"}, // status: 'created', 'done', 'retry', 'abandoned'
	)
)

func IncChargeAttempt(outcome string) {
	chargeAttemptsTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveChargeTick(seconds float64, selected int) {
	chargeTickDuration.Observe(seconds)
	chargeTickMandates.Set(float64(selected))
}

func IncReconciliationTask(kind, status string) {
	reconciliationTasksTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}
