package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		mandateTransitionsTotal,
		mandatesCreatedTotal,
		providerCallsTotal,
		providerCallLatency,
	)
}

var (
	mandateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mandate_transitions_total",
			Help: "Mandate state transitions by source and target status.",
		},
		[]string{"from", "to", "trigger"}, // trigger: callback|webhook|scheduler|user|admin|expiry
	)

	mandatesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mandates_created_total",
			Help: "Total number of PENDING mandates created.",
		},
	)

	providerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_calls_total",
			Help: "Calls to the payment provider by operation and result.",
		},
		[]string{"provider", "op", "result"}, // result: ok|error|timeout
	)

	providerCallLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_duration_seconds",
			Help:    "Payment provider call latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider", "op"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncMandateTransition(from, to, trigger string) {
	if from == "" {
		from = "none"
	}
	mandateTransitionsTotal.WithLabelValues(norm(from), norm(to), norm(trigger)).Inc()
}

func IncMandateCreated() { mandatesCreatedTotal.Inc() }

func ObserveProviderCall(provider, op, result string, seconds float64) {
	providerCallsTotal.WithLabelValues(norm(provider), norm(op), norm(result)).Inc()
	providerCallLatency.WithLabelValues(norm(provider), norm(op)).Observe(seconds)
}
