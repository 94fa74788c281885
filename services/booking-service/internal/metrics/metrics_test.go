package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBookingMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveBooking("committed", "")
	m.ObserveBooking("failed", "upstream")
	m.ObserveBooking("failed", "upstream")
	m.ObserveResolve("ok")
	m.ObserveUpstream("free_slots", "ok", 20*time.Millisecond)
	m.IncPendingFlagged()

	if got := testutil.ToFloat64(m.bookingTotal.WithLabelValues("failed", "upstream")); got != 2 {
		t.Fatalf("failed/upstream = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.pendingFlagged); got != 1 {
		t.Fatalf("pending flagged = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.upstreamLatency); n != 1 {
		t.Fatalf("expected one latency series, got %d", n)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("committed", "")
	m.ObserveResolve("ok")
	m.ObserveUpstream("create_appointment", "error", time.Second)
	m.IncPendingFlagged()
	m.IncPublishFailure()
}
