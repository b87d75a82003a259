package neat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// InnovationMetrics exposes innovation log activity to Prometheus.
type InnovationMetrics struct {
	lookups        *prometheus.CounterVec
	nextInnovation prometheus.Gauge
	nextHiddenID   prometheus.Gauge
}

// NewInnovationMetrics registers the innovation log collectors with reg.
// A nil reg falls back to prometheus.DefaultRegisterer.
func NewInnovationMetrics(reg prometheus.Registerer) *InnovationMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &InnovationMetrics{
		lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "neat_innovation_lookups_total",
			Help: "Innovation log lookups by kind (connect, split) and result (hit, miss)",
		}, []string{"kind", "result"}),
		nextInnovation: factory.NewGauge(prometheus.GaugeOpts{
			Name: "neat_innovation_next_number",
			Help: "Next link innovation number the log will mint",
		}),
		nextHiddenID: factory.NewGauge(prometheus.GaugeOpts{
			Name: "neat_innovation_next_hidden_id",
			Help: "Next hidden node id the log will mint",
		}),
	}
}

func (m *InnovationMetrics) observe(kind string, hit bool, nextInnovation, nextHidden int) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(kind, result).Inc()
	m.nextInnovation.Set(float64(nextInnovation))
	m.nextHiddenID.Set(float64(nextHidden))
}
