package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		WebhookRequests,
		WebhookDuration,
		CheckoutVerifyRequests,
	)
}

var (
	// Webhook deliveries grouped by event and bounded result.
	// result: applied|duplicate|ignored|bad_signature|bad_payload|error
	WebhookRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Provider webhook deliveries by event and result.",
		},
		[]string{"event", "result"},
	)

	WebhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_duration_seconds",
			Help:    "Duration of webhook processing in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"result"},
	)

	// result: ok|fail, reason (fail only): bad_json|bad_signature|conflict|error
	CheckoutVerifyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_verify_requests_total",
			Help: "Count of /api/payments/verify-payment calls by result and reason.",
		},
		[]string{"result", "reason"},
	)
)

func ObserveWebhook(event, result string, seconds float64) {
	if event == "" {
		event = "unknown"
	}
	WebhookRequests.WithLabelValues(norm(event), norm(result)).Inc()
	WebhookDuration.WithLabelValues(norm(result)).Observe(seconds)
}

// IncCheckoutVerify records a verify-payment outcome; reason is empty on success.
func IncCheckoutVerify(result, reason string) {
	if reason == "" {
		reason = "none"
	}
	CheckoutVerifyRequests.WithLabelValues(norm(result), norm(reason)).Inc()
}
