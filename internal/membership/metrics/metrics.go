package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for reconcile passes and status events.
type Metrics struct {
	Runs        *prometheus.CounterVec
	RunDuration prometheus.Histogram
	Clients     *prometheus.CounterVec
	Flips       *prometheus.CounterVec
	Events      *prometheus.CounterVec
	Breaker     prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rmr_reconcile_runs_total",
			Help: "Reconcile passes by outcome",
		}, []string{"outcome"}), // completed, cancelled, busy, error
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rmr_reconcile_run_duration_seconds",
			Help:    "Wall time of a reconcile pass",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		Clients: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rmr_reconcile_clients_total",
			Help: "Clients evaluated by outcome",
		}, []string{"outcome"}), // updated, unchanged, failed, skipped
		Flips: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rmr_membership_flips_total",
			Help: "Membership active flag transitions",
		}, []string{"to"}), // active, inactive
		Events: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rmr_status_events_total",
			Help: "StatusChanged deliveries by sink and outcome",
		}, []string{"sink", "outcome"}),
		Breaker: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rmr_status_events_breaker_open",
			Help: "1 while the event producer circuit is open",
		}),
	}
}

func (m *Metrics) ObserveRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.RunDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) AddClients(outcome string, n int) {
	if m != nil && n > 0 {
		m.Clients.WithLabelValues(outcome).Add(float64(n))
	}
}

func (m *Metrics) IncFlip(active bool) {
	if m == nil {
		return
	}
	to := "inactive"
	if active {
		to = "active"
	}
	m.Flips.WithLabelValues(to).Inc()
}

func (m *Metrics) IncEvent(sink, outcome string) {
	if m != nil {
		m.Events.WithLabelValues(sink, outcome).Inc()
	}
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.Breaker.Set(1)
		return
	}
	m.Breaker.Set(0)
}
