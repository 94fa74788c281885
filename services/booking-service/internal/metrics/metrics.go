package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics covers availability lookups, booking attempts and the
// calendar provider calls behind them. All methods are nil-safe.
type BookingMetrics struct {
	resolveTotal     *prometheus.CounterVec
	bookingTotal     *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	pendingFlagged   prometheus.Counter
	eventPublishFail prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		resolveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenantbook",
			Subsystem: "availability",
			Name:      "resolve_total",
			Help:      "Availability resolutions by outcome",
		}, []string{"outcome"}),
		bookingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenantbook",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by final state and reason",
		}, []string{"state", "reason"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tenantbook",
			Subsystem: "freebusy",
			Name:      "request_duration_seconds",
			Help:      "Latency of calendar provider calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		pendingFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tenantbook",
			Subsystem: "booking",
			Name:      "pending_unresolved_total",
			Help:      "Reservations flagged as unresolved by the reconciler",
		}),
		eventPublishFail: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tenantbook",
			Subsystem: "events",
			Name:      "publish_failures_total",
			Help:      "Domain events that could not be published",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.resolveTotal, m.bookingTotal, m.upstreamLatency, m.pendingFlagged, m.eventPublishFail)
	return m
}

func (m *BookingMetrics) ObserveResolve(outcome string) {
	if m == nil {
		return
	}
	m.resolveTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveBooking(state, reason string) {
	if m == nil {
		return
	}
	m.bookingTotal.WithLabelValues(state, reason).Inc()
}

func (m *BookingMetrics) ObserveUpstream(op, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamLatency.WithLabelValues(op, status).Observe(d.Seconds())
}

func (m *BookingMetrics) IncPendingFlagged() {
	if m == nil {
		return
	}
	m.pendingFlagged.Inc()
}

func (m *BookingMetrics) IncPublishFailure() {
	if m == nil {
		return
	}
	m.eventPublishFail.Inc()
}
