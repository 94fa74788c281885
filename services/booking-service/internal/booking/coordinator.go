// Package booking commits a customer booking: it re-checks availability,
// reserves the time on the external calendar, and records the appointment
// on the tenant exactly once.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	otelx "github.com/md-rashed-zaman/tenantbook/libs/otel"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/freebusy"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/storage"
)

type State string

const (
	StateRequested  State = "requested"
	StateValidating State = "validating"
	StateReserving  State = "reserving"
	StateCommitted  State = "committed"
	StateFailed     State = "failed"
)

type Request struct {
	TenantID       string
	Date           string
	Time           string
	Service        string
	CustomerName   string
	CustomerPhone  string
	ContactID      string
	IdempotencyKey string
}

type Outcome struct {
	State       State
	Appointment model.Appointment
	// Replayed is set when an earlier booking with the same idempotency key
	// was returned instead of booking again.
	Replayed bool
}

type Store interface {
	Get(ctx context.Context, id string) (model.Tenant, error)
	Mutate(ctx context.Context, id string, fn storage.MutateFunc) (model.Tenant, error)
}

type Availability interface {
	ResolveTenant(ctx context.Context, t model.Tenant, date string) (availability.Result, error)
}

type Config struct {
	Location *time.Location
	// Duration is the length of every booked appointment.
	Duration time.Duration
	// UpstreamTimeout bounds the create call, which outlives caller
	// cancellation.
	UpstreamTimeout time.Duration
	// CommitAttempts bounds local commit attempts after a successful
	// reservation. The reservation itself is never repeated.
	CommitAttempts uint
	Now            func() time.Time
}

type Coordinator struct {
	store     Store
	resolver  Availability
	gateway   freebusy.Gateway
	publisher events.Publisher
	logger    *slog.Logger
	metrics   *metrics.BookingMetrics
	tracer    trace.Tracer
	cfg       Config
}

func NewCoordinator(store Store, resolver Availability, gateway freebusy.Gateway, publisher events.Publisher, logger *slog.Logger, m *metrics.BookingMetrics, cfg Config) *Coordinator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Duration <= 0 {
		cfg.Duration = time.Hour
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 10 * time.Second
	}
	if cfg.CommitAttempts == 0 {
		cfg.CommitAttempts = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:     store,
		resolver:  resolver,
		gateway:   gateway,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("booking-service/booking"),
		cfg:       cfg,
	}
}

var errReplayed = errors.New("idempotency key already booked")

// Book runs one booking through requested, validating, reserving and
// committed. Any failure before the reservation leaves no trace on the
// tenant. Once the create call is issued its response is always processed,
// even if ctx is cancelled meanwhile.
func (c *Coordinator) Book(ctx context.Context, req Request) (out Outcome, err error) {
	req = normalize(req)
	ctx, span := c.tracer.Start(ctx, "booking.book", trace.WithAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("booking.date", req.Date),
		attribute.String("booking.time", req.Time),
	))
	out.State = StateRequested
	defer func() {
		reason := ""
		if err != nil {
			reason = failureReason(err)
			if out.State != StateReserving {
				out.State = StateFailed
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("booking.state", string(out.State)))
		span.End()
		c.metrics.ObserveBooking(string(out.State), reason)
		log := c.logger.With("tenant_id", req.TenantID, "date", req.Date, "time", req.Time, "state", out.State)
		switch {
		case err == nil:
			log.InfoContext(ctx, "booking finished", "appointment_id", out.Appointment.ID, "replayed", out.Replayed)
		case reason == "internal" || out.State == StateReserving:
			log.ErrorContext(ctx, "booking failed", "reason", reason, "err", err)
		default:
			log.WarnContext(ctx, "booking rejected", "reason", reason, "err", err)
		}
	}()

	if err := validate(req); err != nil {
		return out, err
	}
	start, err := time.ParseInLocation(policy.DateLayout+" 15:04", req.Date+" "+req.Time, c.cfg.Location)
	if err != nil {
		return out, apperr.Invalid("time", "%q on %q is not a valid local time", req.Time, req.Date)
	}
	end := start.Add(c.cfg.Duration)

	t, err := c.store.Get(ctx, req.TenantID)
	if err != nil {
		return out, err
	}
	if missing := t.MissingLinkage(true); len(missing) > 0 {
		return out, &apperr.ConfigurationError{TenantID: t.ID, Missing: missing}
	}
	if appt, pending := findByKey(t, req.IdempotencyKey); appt != nil {
		return Outcome{State: StateCommitted, Appointment: *appt, Replayed: true}, nil
	} else if pending {
		return out, apperr.ErrBookingInProgress
	}
	if _, ok := t.ServiceByName(req.Service); !ok {
		return out, &apperr.NotFoundError{Entity: "service", ID: req.Service, TenantID: t.ID}
	}

	out.State = StateValidating
	res, err := c.resolver.ResolveTenant(ctx, t, req.Date)
	if err != nil {
		return out, err
	}
	if !slices.Contains(res.Times, req.Time) {
		return out, &apperr.SlotUnavailableError{TenantID: t.ID, Date: req.Date, Time: req.Time}
	}

	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	marker := model.PendingBooking{
		ID:             uuid.NewString(),
		Date:           req.Date,
		Time:           req.Time,
		Service:        req.Service,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		ContactID:      req.ContactID,
		IdempotencyKey: req.IdempotencyKey,
		Status:         model.PendingReserving,
		CreatedAt:      c.cfg.Now().UTC(),
		Traceparent:    traceparent,
		Tracestate:     tracestate,
	}
	var replay model.Appointment
	t, err = c.store.Mutate(ctx, t.ID, func(t *model.Tenant) error {
		if appt, pending := findByKey(*t, req.IdempotencyKey); appt != nil {
			replay = *appt
			return errReplayed
		} else if pending {
			return apperr.ErrBookingInProgress
		}
		if c.overlaps(*t, req.Date, start, end) {
			return &apperr.SlotUnavailableError{TenantID: t.ID, Date: req.Date, Time: req.Time}
		}
		t.PendingBookings = append(t.PendingBookings, marker)
		return nil
	})
	if errors.Is(err, errReplayed) {
		return Outcome{State: StateCommitted, Appointment: replay, Replayed: true}, nil
	}
	if err != nil {
		return out, err
	}
	out.State = StateReserving

	// From here on the caller's cancellation no longer applies.
	detached := context.WithoutCancel(ctx)
	created, err := c.reserve(detached, t, req, start, end)
	if err != nil {
		c.releaseMarker(detached, t.ID, marker.ID)
		out.State = StateFailed
		return out, err
	}

	appt := model.Appointment{
		ID:             created.ID,
		Date:           req.Date,
		Time:           req.Time,
		Service:        req.Service,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		ContactID:      req.ContactID,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      c.cfg.Now().UTC(),
	}
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	out.Appointment = appt
	if err := c.commit(detached, t.ID, marker.ID, appt); err != nil {
		return out, fmt.Errorf("record appointment %s: %w", appt.ID, err)
	}
	out.State = StateCommitted

	c.publish(detached, t.ID, appt)
	return out, nil
}

func (c *Coordinator) reserve(ctx context.Context, t model.Tenant, req Request, start, end time.Time) (freebusy.CreatedEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.UpstreamTimeout)
	defer cancel()

	began := time.Now()
	created, err := c.gateway.CreateAppointment(ctx, freebusy.AppointmentCommand{
		CalendarID: *t.CalendarID,
		LocationID: *t.LocationID,
		APIToken:   *t.APIToken,
		ContactID:  req.ContactID,
		StartTime:  start,
		EndTime:    end,
		Title:      req.Service,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.ObserveUpstream("create_appointment", status, time.Since(began))
	if err != nil {
		var up *apperr.UpstreamError
		if !errors.As(err, &up) {
			up = &apperr.UpstreamError{Op: "create appointment", Timeout: errors.Is(err, context.DeadlineExceeded), Err: err}
		}
		up.TenantID = t.ID
		return freebusy.CreatedEvent{}, up
	}
	return created, nil
}

// commit swaps the pending marker for the appointment. Repeating it is
// harmless: an appointment that is already recorded is not appended twice.
func (c *Coordinator) commit(ctx context.Context, tenantID, markerID string, appt model.Appointment) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		_, err := c.store.Mutate(ctx, tenantID, func(t *model.Tenant) error {
			t.PendingBookings = slices.DeleteFunc(t.PendingBookings, func(p model.PendingBooking) bool {
				return p.ID == markerID
			})
			if !slices.ContainsFunc(t.Appointments, func(a model.Appointment) bool { return a.ID == appt.ID }) {
				t.Appointments = append(t.Appointments, appt)
			}
			return nil
		})
		if apperr.IsNotFound(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			c.logger.WarnContext(ctx, "local commit attempt failed", "tenant_id", tenantID, "appointment_id", appt.ID, "err", err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.cfg.CommitAttempts))
	return err
}

func (c *Coordinator) releaseMarker(ctx context.Context, tenantID, markerID string) {
	_, err := c.store.Mutate(ctx, tenantID, func(t *model.Tenant) error {
		t.PendingBookings = slices.DeleteFunc(t.PendingBookings, func(p model.PendingBooking) bool {
			return p.ID == markerID
		})
		return nil
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to release pending booking", "tenant_id", tenantID, "pending_id", markerID, "err", err)
	}
}

func (c *Coordinator) publish(ctx context.Context, tenantID string, appt model.Appointment) {
	ev, err := events.NewAppointmentBooked(tenantID, appt, c.cfg.Now())
	if err == nil {
		err = c.publisher.Publish(ctx, ev)
	}
	if err != nil {
		c.metrics.IncPublishFailure()
		c.logger.WarnContext(ctx, "failed to publish booked event", "tenant_id", tenantID, "appointment_id", appt.ID, "err", err)
	}
}

// overlaps reports whether [start,end) collides with a recorded appointment
// or an open reservation on date.
func (c *Coordinator) overlaps(t model.Tenant, date string, start, end time.Time) bool {
	var busy []availability.Interval
	add := func(d, hhmm string) {
		if d != date {
			return
		}
		s, err := time.ParseInLocation(policy.DateLayout+" 15:04", d+" "+hhmm, c.cfg.Location)
		if err != nil {
			return
		}
		busy = append(busy, availability.Interval{Start: s, End: s.Add(c.cfg.Duration)})
	}
	for _, a := range t.Appointments {
		add(a.Date, a.Time)
	}
	for _, p := range t.PendingBookings {
		add(p.Date, p.Time)
	}
	return availability.OverlapsAny(start, end, busy)
}

func findByKey(t model.Tenant, key string) (*model.Appointment, bool) {
	if key == "" {
		return nil, false
	}
	for i := range t.Appointments {
		if t.Appointments[i].IdempotencyKey == key {
			a := t.Appointments[i]
			return &a, false
		}
	}
	for _, p := range t.PendingBookings {
		if p.IdempotencyKey == key {
			return nil, true
		}
	}
	return nil, false
}

func normalize(r Request) Request {
	r.TenantID = strings.TrimSpace(r.TenantID)
	r.Date = strings.TrimSpace(r.Date)
	r.Time = strings.TrimSpace(r.Time)
	r.Service = strings.TrimSpace(r.Service)
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerPhone = strings.TrimSpace(r.CustomerPhone)
	r.ContactID = strings.TrimSpace(r.ContactID)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	return r
}

func validate(r Request) error {
	switch {
	case r.TenantID == "":
		return apperr.Invalid("tenantId", "is required")
	case r.Service == "":
		return apperr.Invalid("service", "is required")
	case r.CustomerName == "":
		return apperr.Invalid("customerName", "is required")
	case r.ContactID == "":
		return apperr.Invalid("contactId", "is required")
	}
	if _, err := time.Parse(policy.DateLayout, r.Date); err != nil {
		return apperr.Invalid("date", "%q is not YYYY-MM-DD", r.Date)
	}
	if _, err := policy.ParseClock(r.Time); err != nil {
		return apperr.Invalid("time", "%v", err)
	}
	return nil
}

func failureReason(err error) string {
	var (
		ve *apperr.ValidationError
		nf *apperr.NotFoundError
		ce *apperr.ConfigurationError
		up *apperr.UpstreamError
		su *apperr.SlotUnavailableError
	)
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &ce):
		return "configuration"
	case errors.As(err, &up):
		return "upstream"
	case errors.As(err, &su):
		return "slot_unavailable"
	case errors.Is(err, apperr.ErrBookingInProgress):
		return "in_progress"
	default:
		return "internal"
	}
}
