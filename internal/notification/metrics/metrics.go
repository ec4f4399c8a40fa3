package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the notification builder.
type Metrics struct {
	Created        *prometheus.CounterVec
	Duplicates     *prometheus.CounterVec
	Poison         *prometheus.CounterVec
	Failures       *prometheus.CounterVec
	HandleDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Created: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talentflow_notifications_created_total",
			Help: "Notifications inserted by event type",
		}, []string{"type"}),

		Duplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talentflow_notifications_duplicates_total",
			Help: "Notifications skipped because their idempotency key already existed",
		}, []string{"type"}),

		Poison: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talentflow_notification_poison_events_total",
			Help: "Events acknowledged without notifications because the payload was malformed",
		}, []string{"type"}),

		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talentflow_notification_handle_failures_total",
			Help: "Events left unacknowledged for redelivery",
		}, []string{"type"}),

		HandleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "talentflow_notification_handle_duration_seconds",
			Help:    "Time to build and persist notifications for one event",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementCreated(typ string, n int) {
	if m != nil && n > 0 {
		m.Created.WithLabelValues(typ).Add(float64(n))
	}
}

func (m *Metrics) IncrementDuplicates(typ string, n int) {
	if m != nil && n > 0 {
		m.Duplicates.WithLabelValues(typ).Add(float64(n))
	}
}

func (m *Metrics) IncrementPoison(typ string) {
	if m != nil {
		m.Poison.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) IncrementFailure(typ string) {
	if m != nil {
		m.Failures.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) ObserveHandle(d time.Duration) {
	if m != nil {
		m.HandleDuration.Observe(d.Seconds())
	}
}
