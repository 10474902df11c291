package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for identity resolution.
type Metrics struct {
	IndexSize       prometheus.Gauge
	IndexConflicts  prometheus.Gauge
	IndexRebuilds   *prometheus.CounterVec
	RebuildDuration prometheus.Histogram
	Resolutions     *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		IndexSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rmr_identity_index_emails",
			Help: "Distinct normalized emails in the current resolver index",
		}),
		IndexConflicts: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rmr_identity_index_conflicts",
			Help: "Over-claimed emails found in the current resolver index",
		}),
		IndexRebuilds: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rmr_identity_index_rebuilds_total",
			Help: "Resolver index rebuilds by outcome",
		}, []string{"outcome"}), // ok, error
		RebuildDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rmr_identity_index_rebuild_duration_seconds",
			Help:    "Time to load identities and build the resolver index",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rmr_identity_resolutions_total",
			Help: "Email resolutions by outcome",
		}, []string{"outcome"}), // hit, miss, malformed, error
	}
}

func (m *Metrics) ObserveRebuild(size, conflicts int, d time.Duration) {
	if m != nil {
		m.IndexSize.Set(float64(size))
		m.IndexConflicts.Set(float64(conflicts))
		m.IndexRebuilds.WithLabelValues("ok").Inc()
		m.RebuildDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) IncRebuildError() {
	if m != nil {
		m.IndexRebuilds.WithLabelValues("error").Inc()
	}
}

func (m *Metrics) IncResolution(outcome string) {
	if m != nil {
		m.Resolutions.WithLabelValues(outcome).Inc()
	}
}
