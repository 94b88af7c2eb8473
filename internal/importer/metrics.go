package importer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricRecords       = "importer_records_total"
	MetricWriteDuration = "importer_write_duration_seconds"
)

// Record results used as the "result" label.
const (
	resultImported = "imported"
	resultSkipped  = "skipped"
	resultFailed   = "failed"
)

// Metrics contains Prometheus collectors for an import run.
type Metrics struct {
	records       *prometheus.CounterVec
	writeDuration prometheus.Histogram
}

// NewMetrics creates unregistered importer metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRecords,
			Help: "Total number of import records by kind and result",
		}, []string{"kind", "result"}),
		writeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricWriteDuration,
			Help:    "Histogram of per-record store write latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register registers all metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.records, m.writeDuration}
}

func (m *Metrics) record(kind, result string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) observeWrite(seconds float64) {
	if m == nil {
		return
	}
	m.writeDuration.Observe(seconds)
}
