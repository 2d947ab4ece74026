package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the session subsystem.
type Metrics struct {
	Logins           prometheus.Counter
	LoginFailures    *prometheus.CounterVec
	ProfileRefreshes prometheus.Counter
	ImplicitLogouts  prometheus.Counter
	CrossTabLogouts  prometheus.Counter
}

// New creates and registers all Prometheus metrics on the given registerer.
// Pass prometheus.DefaultRegisterer outside tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Logins: factory.NewCounter(prometheus.CounterOpts{
			Name: "tqhub_logins_total",
			Help: "Total number of successful logins",
		}),
		LoginFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tqhub_login_failures_total",
			Help: "Total number of failed logins by error code",
		}, []string{"code"}),
		ProfileRefreshes: factory.NewCounter(prometheus.CounterOpts{
			Name: "tqhub_profile_refreshes_total",
			Help: "Total number of successful profile refreshes",
		}),
		ImplicitLogouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "tqhub_implicit_logouts_total",
			Help: "Total number of logouts forced by an expired or rejected credential",
		}),
		CrossTabLogouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "tqhub_crosstab_logouts_total",
			Help: "Total number of logouts propagated from another tab or process",
		}),
	}
}
