package progress

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink exports progress counts through Prometheus collectors.
type PrometheusSink struct {
	processed *prometheus.CounterVec
	planned   *prometheus.GaugeVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nntp2sql_articles_processed_total",
			Help: "Article headers written to the store, partitioned by group.",
		}, []string{"group"}),
		planned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nntp2sql_articles_planned",
			Help: "Articles planned for the current run, partitioned by group.",
		}, []string{"group"}),
	}
	for _, collector := range []prometheus.Collector{s.processed, s.planned} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Observe updates the collectors from the snapshot.
func (s *PrometheusSink) Observe(snap Snapshot) {
	s.processed.WithLabelValues(snap.Group).Inc()
	s.planned.WithLabelValues(snap.Group).Set(float64(snap.Total))
}
