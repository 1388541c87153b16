package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sha1n/redx-indexer/internal/store"
)

// NewRegistry creates a registry exposing runtime metrics, the index gauges
// of st and any extra collectors.
func NewRegistry(st *store.Store, extra ...prometheus.Collector) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if st != nil {
		registry.MustRegister(store.NewCollector(st))
	}
	registry.MustRegister(extra...)
	return registry
}
