package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the transition engine.
type Metrics struct {
	Transitions     *prometheus.CounterVec
	Rejections      *prometheus.CounterVec
	TransitionDelay prometheus.Histogram
}

// New registers the candidate metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talentflow_candidate_transitions_total",
			Help: "Applied candidate state transitions by edge",
		}, []string{"from", "to"}),

		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talentflow_candidate_transition_rejections_total",
			Help: "Rejected transition attempts by error code",
		}, []string{"code"}),

		TransitionDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "talentflow_candidate_transition_duration_seconds",
			Help:    "Duration of ApplyTransition including the transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementTransition(from, to string) {
	if m != nil {
		m.Transitions.WithLabelValues(from, to).Inc()
	}
}

func (m *Metrics) IncrementRejection(code string) {
	if m != nil {
		m.Rejections.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) ObserveTransition(d time.Duration) {
	if m != nil {
		m.TransitionDelay.Observe(d.Seconds())
	}
}
