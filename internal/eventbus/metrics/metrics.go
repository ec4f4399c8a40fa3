package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers publish, handling and redelivery on either bus.
type Metrics struct {
	Published      *prometheus.CounterVec
	Handled        *prometheus.CounterVec
	Redeliveries   *prometheus.CounterVec
	HandleDuration prometheus.Histogram
	OutboxRelayed  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talentflow_bus_published_total",
			Help: "Events accepted by the bus",
		}, []string{"type"}),

		Handled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talentflow_bus_handled_total",
			Help: "Events acknowledged by handlers",
		}, []string{"type"}),

		Redeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talentflow_bus_redeliveries_total",
			Help: "Handler failures that scheduled a redelivery",
		}, []string{"type"}),

		HandleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "talentflow_bus_handle_duration_seconds",
			Help:    "Time from dequeue to acknowledgement",
			Buckets: prometheus.DefBuckets,
		}),

		OutboxRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "talentflow_outbox_relayed_total",
			Help: "Outbox records published to the bus",
		}),
	}
}

func (m *Metrics) IncrementPublished(typ string) {
	if m != nil {
		m.Published.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) IncrementHandled(typ string) {
	if m != nil {
		m.Handled.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) IncrementRedelivery(typ string) {
	if m != nil {
		m.Redeliveries.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) ObserveHandle(d time.Duration) {
	if m != nil {
		m.HandleDuration.Observe(d.Seconds())
	}
}

// AddRelayed matches outbox.WithPublishHook.
func (m *Metrics) AddRelayed(n int) {
	if m != nil {
		m.OutboxRelayed.Add(float64(n))
	}
}
