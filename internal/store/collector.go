package store

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports document and task counts of a store.
type Collector struct {
	store *Store

	documents *prometheus.Desc
	tasks     *prometheus.Desc
}

// NewCollector creates a collector for s.
func NewCollector(s *Store) *Collector {
	return &Collector{
		store: s,
		documents: prometheus.NewDesc(
			"redx_index_documents",
			"Documents in an index",
			[]string{"index"}, nil,
		),
		tasks: prometheus.NewDesc(
			"redx_index_tasks_in_flight",
			"Enqueued or processing tasks of an index",
			[]string{"index"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.documents
	ch <- c.tasks
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, name := range Indexes {
		count, err := c.store.DocCount(name)
		if err != nil {
			slog.Warn("Failed to count documents", "index", name, "error", err)
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.documents, prometheus.GaugeValue, float64(count), string(name))
		inFlight := c.store.PendingTasks(TaskFilter{Indexes: []IndexName{name}})
		ch <- prometheus.MustNewConstMetric(c.tasks, prometheus.GaugeValue, float64(inFlight), string(name))
	}
}
