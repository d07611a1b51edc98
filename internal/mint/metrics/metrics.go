package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for mint use cases.
type Metrics struct {
	Mints          prometheus.Counter
	Rejections     *prometheus.CounterVec
	CostDeviations prometheus.Counter
	Withdrawn      prometheus.Counter
	Duration       *prometheus.HistogramVec
}

// New registers the mint metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the mint metrics with reg. A nil reg leaves them
// unregistered.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Mints: f.NewCounter(prometheus.CounterOpts{
			Name: "mintledger_items_minted_total",
			Help: "Total number of items minted through promote",
		}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mintledger_mint_rejections_total",
			Help: "External messages rejected by the destination contract, by operation and exit code",
		}, []string{"operation", "exit_code"}),
		CostDeviations: f.NewCounter(prometheus.CounterOpts{
			Name: "mintledger_promote_cost_deviations_total",
			Help: "Promotes whose net cost differed from the mint price by more than the tolerance",
		}),
		Withdrawn: f.NewCounter(prometheus.CounterOpts{
			Name: "mintledger_withdrawals_total",
			Help: "Total number of successful factory withdrawals",
		}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mintledger_mint_operation_duration_seconds",
			Help:    "Duration of mint use cases including the full message cascade",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementMints() {
	m.Mints.Inc()
}

func (m *Metrics) IncrementWithdrawals() {
	m.Withdrawn.Inc()
}

func (m *Metrics) IncrementRejection(operation, code string) {
	m.Rejections.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) IncrementCostDeviation() {
	m.CostDeviations.Inc()
}

// ObserveOperation records the duration of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.Duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
