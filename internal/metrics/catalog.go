package metrics

import "github.com/prometheus/client_golang/prometheus"

// CatalogMetrics counts remote catalog page fetches.
type CatalogMetrics struct {
	Fetches *prometheus.CounterVec
}

// NewCatalogMetrics creates and registers catalog metrics on reg.
func NewCatalogMetrics(reg prometheus.Registerer) *CatalogMetrics {
	m := &CatalogMetrics{
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "fetches_total",
			Help:      "Total catalog page fetches, by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(m.Fetches)
	return m
}

// ObserveFetch records one page fetch.
func (m *CatalogMetrics) ObserveFetch(err error) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(status(err)).Inc()
}
