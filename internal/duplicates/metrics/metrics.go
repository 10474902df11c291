package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for duplicate detection and review.
type Metrics struct {
	Candidates *prometheus.GaugeVec
	Runs       prometheus.Counter
	Reviews    *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Candidates: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rmr_duplicate_candidates",
			Help: "Candidates found by the latest detection run by confidence",
		}, []string{"confidence"}),
		Runs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rmr_duplicate_detect_runs_total",
			Help: "Duplicate detection runs",
		}),
		Reviews: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rmr_duplicate_reviews_total",
			Help: "Operator review decisions by status",
		}, []string{"status"}),
	}
}

func (m *Metrics) ObserveRun(high, medium int) {
	if m == nil {
		return
	}
	m.Runs.Inc()
	m.Candidates.WithLabelValues("high").Set(float64(high))
	m.Candidates.WithLabelValues("medium").Set(float64(medium))
}

func (m *Metrics) IncReview(status string) {
	if m != nil {
		m.Reviews.WithLabelValues(status).Inc()
	}
}
