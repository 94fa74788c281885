// Package availability computes the bookable times of a tenant for one date
// by filtering the calendar provider's free slots through the tenant's
// working window.
package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/freebusy"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/policy"
)

type TenantReader interface {
	Get(ctx context.Context, id string) (model.Tenant, error)
}

type Config struct {
	// Location is the single business time zone.
	Location *time.Location
	// MaxAttempts bounds free-slot reads, including the first one.
	MaxAttempts    uint
	InitialBackoff time.Duration
}

type Resolver struct {
	tenants        TenantReader
	gateway        freebusy.Gateway
	loc            *time.Location
	maxAttempts    uint
	initialBackoff time.Duration
	logger         *slog.Logger
	metrics        *metrics.BookingMetrics
	tracer         trace.Tracer
}

// Result is the ordered, duplicate-free set of bookable "HH:MM" times.
type Result struct {
	TenantID string   `json:"tenantId"`
	Date     string   `json:"date"`
	Times    []string `json:"times"`
}

func NewResolver(tenants TenantReader, gateway freebusy.Gateway, cfg Config, logger *slog.Logger, m *metrics.BookingMetrics) *Resolver {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		tenants:        tenants,
		gateway:        gateway,
		loc:            cfg.Location,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		logger:         logger,
		metrics:        m,
		tracer:         otel.Tracer("booking-service/availability"),
	}
}

func (r *Resolver) Location() *time.Location { return r.loc }

// Resolve loads the tenant and returns its bookable times for date.
func (r *Resolver) Resolve(ctx context.Context, tenantID, date string) (Result, error) {
	t, err := r.tenants.Get(ctx, tenantID)
	if err != nil {
		r.metrics.ObserveResolve(outcome(err))
		return Result{}, err
	}
	return r.ResolveTenant(ctx, t, date)
}

// ResolveTenant is Resolve for an already loaded tenant.
func (r *Resolver) ResolveTenant(ctx context.Context, t model.Tenant, date string) (res Result, err error) {
	ctx, span := r.tracer.Start(ctx, "availability.resolve", trace.WithAttributes(
		attribute.String("tenant.id", t.ID),
		attribute.String("booking.date", date),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.metrics.ObserveResolve(outcome(err))
		} else {
			span.SetAttributes(attribute.Int("availability.times", len(res.Times)))
			r.metrics.ObserveResolve("ok")
		}
		span.End()
	}()

	if missing := t.MissingLinkage(false); len(missing) > 0 {
		return Result{}, &apperr.ConfigurationError{TenantID: t.ID, Missing: missing}
	}
	day, err := policy.ParseDate(date, r.loc)
	if err != nil {
		return Result{}, apperr.Invalid("date", "%v", err)
	}

	res = Result{TenantID: t.ID, Date: date, Times: []string{}}
	window, ok, err := policy.WindowFor(t.AvailabilitySlots, date)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return res, nil
	}

	slots, err := r.freeSlots(ctx, t, freebusy.FreeSlotsQuery{
		CalendarID: *t.CalendarID,
		APIToken:   *t.APIToken,
		Start:      day,
		End:        day.AddDate(0, 0, 1),
		Timezone:   r.loc.String(),
	})
	if err != nil {
		return Result{}, err
	}

	seen := map[string]struct{}{}
	for _, raw := range slots[date] {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Result{}, &apperr.UpstreamError{Op: "free slots", TenantID: t.ID, Err: fmt.Errorf("slot %q: %w", raw, err)}
		}
		local := ts.In(r.loc)
		if local.Format(policy.DateLayout) != date {
			continue
		}
		hhmm := local.Format("15:04")
		clock, err := policy.ParseClock(hhmm)
		if err != nil || !window.Allows(clock) {
			continue
		}
		if _, dup := seen[hhmm]; dup {
			continue
		}
		seen[hhmm] = struct{}{}
		res.Times = append(res.Times, hhmm)
	}
	sort.Strings(res.Times)
	return res, nil
}

// freeSlots retries transient provider failures. Client errors such as a
// rejected token are returned immediately.
func (r *Resolver) freeSlots(ctx context.Context, t model.Tenant, q freebusy.FreeSlotsQuery) (map[string][]string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialBackoff
	b.MaxInterval = 4 * r.initialBackoff

	attempt := 0
	slots, err := backoff.Retry(ctx, func() (map[string][]string, error) {
		attempt++
		start := time.Now()
		s, err := r.gateway.FreeSlots(ctx, q)
		r.metrics.ObserveUpstream("free_slots", statusLabel(err), time.Since(start))
		if err == nil {
			return s, nil
		}
		var up *apperr.UpstreamError
		if errors.As(err, &up) && up.Retryable() {
			r.logger.WarnContext(ctx, "free slots request failed", "tenant_id", t.ID, "attempt", attempt, "err", err)
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(r.maxAttempts))
	if err == nil {
		return slots, nil
	}

	var up *apperr.UpstreamError
	if !errors.As(err, &up) {
		up = &apperr.UpstreamError{Op: "free slots", Timeout: errors.Is(err, context.DeadlineExceeded), Err: err}
	}
	up.TenantID = t.ID
	return nil, up
}

func outcome(err error) string {
	var (
		ce *apperr.ConfigurationError
		up *apperr.UpstreamError
		ve *apperr.ValidationError
		nf *apperr.NotFoundError
	)
	switch {
	case errors.As(err, &ce):
		return "configuration"
	case errors.As(err, &up):
		return "upstream"
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &nf):
		return "not_found"
	default:
		return "error"
	}
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var up *apperr.UpstreamError
	if errors.As(err, &up) {
		switch {
		case up.Timeout:
			return "timeout"
		case up.StatusCode != 0:
			return fmt.Sprintf("%dxx", up.StatusCode/100)
		}
	}
	return "error"
}
