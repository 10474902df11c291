package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for ledger ingestion.
type Metrics struct {
	Ingested       *prometheus.CounterVec
	Orphans        *prometheus.CounterVec
	ResolveFailure prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Ingested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rmr_ledger_ingest_total",
			Help: "Ingest calls by source and outcome",
		}, []string{"source", "outcome"}), // outcome: created, duplicate, invalid, error
		Orphans: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rmr_ledger_orphans_total",
			Help: "Unresolved ledger records seen by backfill passes by outcome",
		}, []string{"outcome"}), // resolved, unresolved, failed
		ResolveFailure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rmr_ledger_resolve_failures_total",
			Help: "Ingests stored unresolved because identity resolution failed",
		}),
	}
}

func (m *Metrics) IncIngest(source, outcome string) {
	if m != nil {
		m.Ingested.WithLabelValues(source, outcome).Inc()
	}
}

func (m *Metrics) AddOrphans(outcome string, n int) {
	if m != nil && n > 0 {
		m.Orphans.WithLabelValues(outcome).Add(float64(n))
	}
}

func (m *Metrics) IncResolveFailure() {
	if m != nil {
		m.ResolveFailure.Inc()
	}
}
