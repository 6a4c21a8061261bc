// Package metrics exposes Prometheus collectors for the engine and its
// surfaces. Every collector lives on a private registry; nil collector sets
// are valid and record nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "memeverse"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves the metrics in reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Set bundles the engine collectors registered on one registry.
type Set struct {
	Registry   *prometheus.Registry
	Engagement *EngagementMetrics
	Catalog    *CatalogMetrics
	HTTP       *HTTPMetrics
}

// NewSet creates a registry and registers every collector on it.
func NewSet() *Set {
	reg := NewRegistry()
	return &Set{
		Registry:   reg,
		Engagement: NewEngagementMetrics(reg),
		Catalog:    NewCatalogMetrics(reg),
		HTTP:       NewHTTPMetrics(reg),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
