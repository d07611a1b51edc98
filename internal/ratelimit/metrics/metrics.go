package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checks   *prometheus.CounterVec
	Rejected *prometheus.CounterVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers on reg; a nil reg leaves the collectors unregistered.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mintledger_ratelimit_checks_total",
			Help: "Total number of rate limit checks by endpoint class",
		}, []string{"class"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mintledger_ratelimit_rejected_total",
			Help: "Total number of requests rejected by the rate limiter",
		}, []string{"class"}),
	}
}

func (m *Metrics) ObserveCheck(class string, allowed bool) {
	if m == nil {
		return
	}
	m.Checks.WithLabelValues(class).Inc()
	if !allowed {
		m.Rejected.WithLabelValues(class).Inc()
	}
}
