package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit stream.
type Metrics struct {
	Published    prometheus.Counter
	Sampled      prometheus.Counter
	Fallback     prometheus.Counter
	Failures     prometheus.Counter
	BreakerState prometheus.Gauge
}

// NewMetrics registers the stream metrics with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "mintledger_audit_stream_published_total",
			Help: "Total number of audit events produced to the stream",
		}),
		Sampled: f.NewCounter(prometheus.CounterOpts{
			Name: "mintledger_audit_stream_sampled_total",
			Help: "Total number of operations events dropped due to sampling",
		}),
		Fallback: f.NewCounter(prometheus.CounterOpts{
			Name: "mintledger_audit_stream_fallback_total",
			Help: "Total number of audit events written to the fallback store",
		}),
		Failures: f.NewCounter(prometheus.CounterOpts{
			Name: "mintledger_audit_stream_produce_failures_total",
			Help: "Total number of failed produce attempts",
		}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "mintledger_audit_stream_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) incPublished() {
	if m != nil {
		m.Published.Inc()
	}
}

func (m *Metrics) incSampled() {
	if m != nil {
		m.Sampled.Inc()
	}
}

func (m *Metrics) incFallback() {
	if m != nil {
		m.Fallback.Inc()
	}
}

func (m *Metrics) incFailures() {
	if m != nil {
		m.Failures.Inc()
	}
}

func (m *Metrics) setBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}
