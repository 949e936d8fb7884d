package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		usersRegisteredTotal,
		httpRequestsTotal,
	)
}

var (
	usersRegisteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "users_registered_total",
			Help: "Total number of new users registered, by initial status.",
		},
		[]string{"status"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route pattern and status code class.",
		},
		[]string{"route", "code"},
	)
)

func IncUsersRegistered(status string) {
	usersRegisteredTotal.WithLabelValues(norm(status)).Inc()
}

func IncHTTPRequest(route, code string) {
	httpRequestsTotal.WithLabelValues(route, code).Inc()
}
