package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RentalMetrics tracks inventory, gateway and reconciliation outcomes.
type RentalMetrics struct {
	reservations *prometheus.CounterVec
	releases     *prometheus.CounterVec
	gateway      *prometheus.HistogramVec
	webhooks     *prometheus.CounterVec
}

// NewRentalMetrics registers the rental metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewRentalMetrics(reg prometheus.Registerer) *RentalMetrics {
	if reg == nil {
		return &RentalMetrics{}
	}
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inventory",
		Name:      "reservations_total",
		Help:      "Stock reservation attempts by outcome.",
	}, []string{"outcome"})
	releases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inventory",
		Name:      "releases_total",
		Help:      "Stock releases by trigger; duplicates are counted separately.",
	}, []string{"source", "applied"})
	gateway := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "gateway_charge_seconds",
		Help:      "Latency of outbound gateway charge calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "webhook_notifications_total",
		Help:      "Gateway notifications by reconciliation outcome.",
	}, []string{"outcome"})
	reg.MustRegister(reservations, releases, gateway, webhooks)
	return &RentalMetrics{
		reservations: reservations,
		releases:     releases,
		gateway:      gateway,
		webhooks:     webhooks,
	}
}

func (m *RentalMetrics) IncReservation(outcome string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *RentalMetrics) IncRelease(source string, applied bool) {
	if m == nil || m.releases == nil {
		return
	}
	label := "false"
	if applied {
		label = "true"
	}
	m.releases.WithLabelValues(normalizeLabel(source), label).Inc()
}

func (m *RentalMetrics) ObserveGatewayCharge(outcome string, d time.Duration) {
	if m == nil || m.gateway == nil {
		return
	}
	m.gateway.WithLabelValues(normalizeLabel(outcome)).Observe(d.Seconds())
}

func (m *RentalMetrics) IncWebhook(outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(outcome)).Inc()
}
