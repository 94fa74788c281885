// Package reconcile surfaces bookings whose external reservation was issued
// but never recorded locally.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/tenantbook/libs/otel"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/storage"
)

type Store interface {
	List(ctx context.Context) ([]model.Tenant, error)
	Mutate(ctx context.Context, id string, fn storage.MutateFunc) (model.Tenant, error)
}

type PendingReconciler struct {
	store      Store
	logger     *slog.Logger
	metrics    *metrics.BookingMetrics
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

type Config struct {
	Interval   time.Duration
	StaleAfter time.Duration
	Now        func() time.Time
}

func NewPendingReconciler(store Store, logger *slog.Logger, m *metrics.BookingMetrics, cfg Config) *PendingReconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PendingReconciler{
		store:      store,
		logger:     logger,
		metrics:    m,
		interval:   cfg.Interval,
		staleAfter: cfg.StaleAfter,
		now:        cfg.Now,
	}
}

func (r *PendingReconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Run immediately so markers left by a crash surface right after restart.
	r.ReconcileOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReconcileOnce(ctx)
		}
	}
}

// ReconcileOnce flags every stale reserving marker as unresolved and returns
// how many were flagged.
func (r *PendingReconciler) ReconcileOnce(ctx context.Context) int {
	tenants, err := r.store.List(ctx)
	if err != nil {
		r.logger.Error("pending reconcile: failed to list tenants", "err", err)
		return 0
	}
	cutoff := r.now().Add(-r.staleAfter)
	flagged := 0
	for _, t := range tenants {
		if ctx.Err() != nil {
			return flagged
		}
		if !hasStale(t.PendingBookings, cutoff) {
			continue
		}
		var marked []model.PendingBooking
		_, err := r.store.Mutate(ctx, t.ID, func(t *model.Tenant) error {
			marked = marked[:0]
			for i := range t.PendingBookings {
				p := &t.PendingBookings[i]
				if p.Status == model.PendingReserving && p.CreatedAt.Before(cutoff) {
					p.Status = model.PendingUnresolved
					marked = append(marked, *p)
				}
			}
			return nil
		})
		if err != nil {
			r.logger.Error("pending reconcile: failed to flag markers", "tenant_id", t.ID, "err", err)
			continue
		}
		for _, p := range marked {
			pctx := otelx.ContextWithTraceContext(ctx, p.Traceparent, p.Tracestate)
			r.logger.WarnContext(pctx, "booking reserved upstream but not recorded",
				"tenant_id", t.ID,
				"pending_id", p.ID,
				"date", p.Date,
				"time", p.Time,
				"contact_id", p.ContactID,
				"idempotency_key", p.IdempotencyKey,
				"trace_id", otelx.TraceID(p.Traceparent),
				"created_at", p.CreatedAt,
			)
			r.metrics.IncPendingFlagged()
		}
		flagged += len(marked)
	}
	return flagged
}

func hasStale(pending []model.PendingBooking, cutoff time.Time) bool {
	for _, p := range pending {
		if p.Status == model.PendingReserving && p.CreatedAt.Before(cutoff) {
			return true
		}
	}
	return false
}
