package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-level Prometheus metrics and the registry every
// module registers on.
type Metrics struct {
	Registry  *prometheus.Registry
	BuildInfo *prometheus.GaugeVec
	StoreUp   *prometheus.GaugeVec
}

// New creates a registry with Go runtime and process collectors.
func New(version, storeDriver string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	m := &Metrics{
		Registry: reg,
		BuildInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mintledger_build_info",
			Help: "Build information; always 1",
		}, []string{"version", "store"}),
		StoreUp: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mintledger_store_up",
			Help: "Whether the last health check of a backing store succeeded",
		}, []string{"store"}),
	}
	m.BuildInfo.WithLabelValues(version, storeDriver).Set(1)
	return m
}

// SetStoreUp records the outcome of a health check.
func (m *Metrics) SetStoreUp(store string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.StoreUp.WithLabelValues(store).Set(v)
}
