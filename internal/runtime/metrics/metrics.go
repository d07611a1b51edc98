package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ledger runtime.
type Metrics struct {
	Transactions     *prometheus.CounterVec
	Bounces          prometheus.Counter
	Deployments      *prometheus.CounterVec
	FeesNano         prometheus.Counter
	CascadeLength    prometheus.Histogram
	DeliveryDuration prometheus.Histogram
}

// New registers the runtime metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the runtime metrics with reg. A nil reg leaves them
// unregistered, which keeps parallel tests from colliding.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mintledger_transactions_total",
			Help: "Committed transactions by message kind and exit code",
		}, []string{"kind", "exit_code"}),
		Bounces: f.NewCounter(prometheus.CounterOpts{
			Name: "mintledger_bounces_total",
			Help: "Messages returned to their sender after a failed transaction",
		}),
		Deployments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mintledger_deployments_total",
			Help: "Contracts deployed by code kind",
		}, []string{"code"}),
		FeesNano: f.NewCounter(prometheus.CounterOpts{
			Name: "mintledger_fees_nano_total",
			Help: "Processing fees charged, in nano units",
		}),
		CascadeLength: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mintledger_cascade_transactions",
			Help:    "Transactions produced by one external message",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 16, 32},
		}),
		DeliveryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mintledger_submit_duration_seconds",
			Help:    "Duration of Submit including the full cascade",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}),
	}
}

// ObserveTransaction counts a committed transaction.
func (m *Metrics) ObserveTransaction(kind, exitCode string, bounced bool, feeNano float64) {
	if exitCode == "" {
		exitCode = "ok"
	}
	m.Transactions.WithLabelValues(kind, exitCode).Inc()
	if bounced {
		m.Bounces.Inc()
	}
	m.FeesNano.Add(feeNano)
}

// IncrementDeployments records a contract deployment.
func (m *Metrics) IncrementDeployments(code string) {
	m.Deployments.WithLabelValues(code).Inc()
}

// ObserveSubmit records cascade size and duration.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveSubmit(start time.Time, transactions int) {
	m.DeliveryDuration.Observe(time.Since(start).Seconds())
	m.CascadeLength.Observe(float64(transactions))
}
