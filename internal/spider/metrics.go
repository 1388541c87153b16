package spider

import "github.com/prometheus/client_golang/prometheus"

// Reconciliation outcomes
const (
	outcomeCommitted = "committed"
	outcomeDeleted   = "deleted"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

var RecordsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "redx",
	Subsystem: "spider",
	Name:      "records_processed_total",
	Help:      "Pending records reconciled, by record type and outcome",
}, []string{"record_type", "outcome"})

var RecordRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "redx",
	Subsystem: "spider",
	Name:      "record_retries_total",
	Help:      "Handler attempts retried after a transient failure",
}, []string{"record_type"})

var Batches = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "redx",
	Subsystem: "spider",
	Name:      "batches_total",
	Help:      "Drained pending batches",
})

var BatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "redx",
	Subsystem: "spider",
	Name:      "batch_duration_seconds",
	Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
})

// Collectors returns the spider metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{RecordsProcessed, RecordRetries, Batches, BatchDuration}
}
