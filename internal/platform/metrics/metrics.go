package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ChangeRequests    *prometheus.CounterVec
	ModerationActions *prometheus.CounterVec
	MutationDuration  prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ChangeRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "otakudb_change_requests_total",
			Help: "Change requests reaching a status, by kind and status",
		}, []string{"kind", "status"}),
		ModerationActions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "otakudb_moderation_actions_total",
			Help: "Moderation actions taken on ledger entries",
		}, []string{"action"}),
		MutationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "otakudb_mutation_duration_seconds",
			Help:    "Wall time of one mutation attempt through the engine",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveChangeRequest counts an entry reaching the given status. Nil-safe so
// tests can run without a registry.
func (m *Metrics) ObserveChangeRequest(kind, status string) {
	if m == nil {
		return
	}
	m.ChangeRequests.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ObserveModerationAction(action string) {
	if m == nil {
		return
	}
	m.ModerationActions.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveMutationDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.MutationDuration.Observe(d.Seconds())
}
