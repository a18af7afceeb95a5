package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOutboxMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.IncEvent("payment.settled", "published")
	m.IncEvent("payment.settled", "published")
	m.IncEvent("rental.created", "parked")
	m.ObserveLag(1500 * time.Millisecond)
	m.ObserveLag(-time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "cinerent_outbox_events_total", "outcome", "published"); err != nil || got != 2 {
		t.Fatalf("expected 2 published settlements, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "cinerent_outbox_events_total", "outcome", "parked"); err != nil || got != 1 {
		t.Fatalf("expected one parked event, got %f err=%v", got, err)
	}
	lag := findMetricFamily(mfs, "cinerent_outbox_publish_lag_seconds")
	if lag == nil || lag.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("negative lag should be dropped, one sample expected")
	}
}

func TestOutboxMetricsNilRegistererIsNoop(t *testing.T) {
	m := NewOutboxMetrics(nil)
	m.IncEvent("rental.created", "retry")
	m.ObserveLag(time.Second)
	var nilMetrics *OutboxMetrics
	nilMetrics.IncEvent("x", "y")
}
