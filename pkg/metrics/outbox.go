package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics tracks how rental and payment events leave the outbox.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	latency prometheus.Histogram
}

// NewOutboxMetrics registers the publisher metrics. A nil registerer yields a
// no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox rows handled by the publisher, by outcome (published, retry, parked).",
	}, []string{"event_type", "outcome"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "publish_lag_seconds",
		Help:      "Time from outbox insert to confirmed publish.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 15, 60, 300},
	})
	reg.MustRegister(events, latency)
	return &OutboxMetrics{events: events, latency: latency}
}

func (m *OutboxMetrics) IncEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OutboxMetrics) ObserveLag(lag time.Duration) {
	if m == nil || m.latency == nil || lag < 0 {
		return
	}
	m.latency.Observe(lag.Seconds())
}
