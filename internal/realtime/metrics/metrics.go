package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks realtime sessions and fan-out.
type Metrics struct {
	ActiveSessions     prometheus.Gauge
	SessionsClosed     *prometheus.CounterVec
	HandshakesRejected *prometheus.CounterVec
	Delivered          prometheus.Counter
	Dropped            prometheus.Counter
	BacklogSize        prometheus.Histogram
	BacklogTruncated   prometheus.Counter
	RelayFallbacks     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "talentflow_realtime_sessions_active",
			Help: "Sessions currently registered",
		}),
		SessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talentflow_realtime_sessions_closed_total",
			Help: "Session teardowns by reason",
		}, []string{"reason"}),
		HandshakesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talentflow_realtime_handshakes_rejected_total",
			Help: "Handshakes refused before upgrade",
		}, []string{"code"}),
		Delivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "talentflow_realtime_delivered_total",
			Help: "Live notifications queued to sessions",
		}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "talentflow_realtime_dropped_total",
			Help: "Queued frames dropped on overflow",
		}),
		BacklogSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "talentflow_realtime_backlog_size",
			Help:    "Unread notifications sent on connect",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 200, 500, 1000},
		}),
		BacklogTruncated: factory.NewCounter(prometheus.CounterOpts{
			Name: "talentflow_realtime_backlog_truncated_total",
			Help: "Connect backlogs cut at the limit with unread items left over",
		}),
		RelayFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "talentflow_realtime_relay_fallbacks_total",
			Help: "Notifications delivered locally because the cross-node relay failed",
		}),
	}
}

func (m *Metrics) SessionAttached() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) SessionClosed(reason string) {
	if m != nil {
		m.ActiveSessions.Dec()
		m.SessionsClosed.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) HandshakeRejected(code string) {
	if m != nil {
		m.HandshakesRejected.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) IncrementDelivered() {
	if m != nil {
		m.Delivered.Inc()
	}
}

func (m *Metrics) IncrementDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) ObserveBacklog(n int) {
	if m != nil {
		m.BacklogSize.Observe(float64(n))
	}
}

func (m *Metrics) IncrementBacklogTruncated() {
	if m != nil {
		m.BacklogTruncated.Inc()
	}
}

func (m *Metrics) IncrementRelayFallback() {
	if m != nil {
		m.RelayFallbacks.Inc()
	}
}
