package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		entitlementChangesTotal,
		mandatesExpiredTotal,
		usersExpiredTotal,
	)
}

var (
	entitlementChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_changes_total",
			Help: "Entitlement projections persisted, by change.",
		},
		[]string{"change"},
	)

	mandatesExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mandates_expired_total",
			Help: "Total number of mandates moved to EXPIRED by the expiry worker.",
		},
	)

	usersExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "users_expired_total",
			Help: "Total number of users whose entitlement lapsed to expired.",
		},
	)
)

func IncEntitlementChange(change string) {
	entitlementChangesTotal.WithLabelValues(norm(change)).Inc()
}

func IncMandatesExpired(count int) { mandatesExpiredTotal.Add(float64(count)) }

func IncUsersExpired(count int) { usersExpiredTotal.Add(float64(count)) }
