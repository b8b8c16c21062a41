package restore

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for restore batches.
type Metrics struct {
	records   *prometheus.CounterVec
	batches   *prometheus.CounterVec
	fallbacks prometheus.Counter
}

// NewMetrics registers the restore metrics against registerer. A nil
// registerer yields nil, and every method on a nil *Metrics is a no-op.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		return nil
	}
	m := &Metrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_restore_records_total",
			Help: "Legacy records processed by restore batches, by outcome.",
		}, []string{"outcome"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_restore_batches_total",
			Help: "Restore batches by final status.",
		}, []string{"status"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_restore_commit_fallbacks_total",
			Help: "Bulk restore commits that fell back to sequential inserts.",
		}),
	}
	registerer.MustRegister(m.records, m.batches, m.fallbacks)
	return m
}

// ObserveBatch records the outcome of one batch.
func (m *Metrics) ObserveBatch(summary Summary, rejected, duplicates int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.batches.WithLabelValues("failure").Inc()
		return
	}
	m.batches.WithLabelValues("success").Inc()
	failed := summary.Skipped - rejected - duplicates
	m.records.WithLabelValues("imported").Add(float64(summary.Imported))
	m.records.WithLabelValues("rejected").Add(float64(rejected))
	m.records.WithLabelValues("duplicate").Add(float64(duplicates))
	if failed > 0 {
		m.records.WithLabelValues("failed").Add(float64(failed))
	}
}

// Fallback counts one bulk-to-sequential downgrade.
func (m *Metrics) Fallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}
