package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/freebusy"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/freebusy/freebusytest"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/storage"
)

var testLoc = time.FixedZone("IDT", 3*60*60)

func str(s string) *string { return &s }

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

type fixture struct {
	store   *storage.TenantStore
	gw      *freebusytest.Fake
	pub     *capturePublisher
	coord   *Coordinator
	tenant  model.Tenant
	request Request
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend, err := storage.NewFileBackend("")
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	store := storage.NewTenantStore(backend)
	ctx := context.Background()
	tn, err := store.Create(ctx, storage.NewTenant{
		Name:       "Salon",
		APIToken:   str("tok"),
		CalendarID: str("cal"),
		LocationID: str("loc"),
	})
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	if _, err := store.AddService(ctx, tn.ID, "Haircut", 80); err != nil {
		t.Fatalf("add service: %v", err)
	}
	if _, err := store.ReplaceAvailabilitySlots(ctx, tn.ID, []model.AvailabilitySlot{{
		Date: "2024-06-10", StartTime: "09:00", EndTime: "17:00",
		BreakStart: str("12:00"), BreakEnd: str("13:00"),
	}}); err != nil {
		t.Fatalf("slots: %v", err)
	}

	gw := &freebusytest.Fake{
		CreateID: "evt-1",
		Slots: map[string][]string{"2024-06-10": {
			"2024-06-10T09:00:00+03:00",
			"2024-06-10T10:00:00+03:00",
			"2024-06-10T10:30:00+03:00",
			"2024-06-10T14:00:00+03:00",
		}},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := availability.NewResolver(store, gw, availability.Config{Location: testLoc, InitialBackoff: time.Millisecond}, logger, nil)
	pub := &capturePublisher{}
	coord := NewCoordinator(store, resolver, gw, pub, logger, nil, Config{
		Location:        testLoc,
		UpstreamTimeout: 2 * time.Second,
		Now:             func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC) },
	})
	return &fixture{
		store:  store,
		gw:     gw,
		pub:    pub,
		coord:  coord,
		tenant: tn,
		request: Request{
			TenantID:      tn.ID,
			Date:          "2024-06-10",
			Time:          "10:00",
			Service:       "Haircut",
			CustomerName:  "Dana",
			CustomerPhone: "+972500000000",
			ContactID:     "contact-1",
		},
	}
}

func (f *fixture) reload(t *testing.T) model.Tenant {
	t.Helper()
	tn, err := f.store.Get(context.Background(), f.tenant.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	return tn
}

func TestBookCommitsAppointment(t *testing.T) {
	f := newFixture(t)

	out, err := f.coord.Book(context.Background(), f.request)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if out.State != StateCommitted || out.Appointment.ID != "evt-1" {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	tn := f.reload(t)
	if len(tn.Appointments) != 1 || tn.Appointments[0].ID != "evt-1" || tn.Appointments[0].Service != "Haircut" {
		t.Fatalf("appointment not recorded: %+v", tn.Appointments)
	}
	if len(tn.PendingBookings) != 0 {
		t.Fatalf("pending marker left behind: %+v", tn.PendingBookings)
	}

	cmd := f.gw.Created[0]
	if !cmd.StartTime.Equal(time.Date(2024, 6, 10, 10, 0, 0, 0, testLoc)) || cmd.EndTime.Sub(cmd.StartTime) != time.Hour {
		t.Fatalf("unexpected reservation window %v..%v", cmd.StartTime, cmd.EndTime)
	}
	if cmd.LocationID != "loc" || cmd.ContactID != "contact-1" || cmd.Title != "Haircut" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	if len(f.pub.events) != 1 || f.pub.events[0].EventType != events.TypeAppointmentBooked {
		t.Fatalf("booked event not published: %+v", f.pub.events)
	}
}

func TestBookFallsBackToLocalID(t *testing.T) {
	f := newFixture(t)
	f.gw.CreateID = ""

	out, err := f.coord.Book(context.Background(), f.request)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if out.Appointment.ID == "" || f.reload(t).Appointments[0].ID != out.Appointment.ID {
		t.Fatalf("fallback id not used: %+v", out)
	}
}

func TestBookUpstreamConflictLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.gw.CreateErr = &apperr.UpstreamError{Op: "create appointment", StatusCode: 409, Body: `{"message":"taken"}`}

	out, err := f.coord.Book(context.Background(), f.request)
	var up *apperr.UpstreamError
	if !errors.As(err, &up) || up.StatusCode != 409 || up.Body != `{"message":"taken"}` {
		t.Fatalf("expected 409 UpstreamError, got %v", err)
	}
	if out.State != StateFailed {
		t.Fatalf("state = %s, want failed", out.State)
	}
	tn := f.reload(t)
	if len(tn.Appointments) != 0 || len(tn.PendingBookings) != 0 {
		t.Fatalf("failed booking left data: %+v / %+v", tn.Appointments, tn.PendingBookings)
	}
	if f.gw.CreateCalls() != 1 {
		t.Fatalf("booking command must not be retried, got %d calls", f.gw.CreateCalls())
	}
}

func TestBookRejectsTimeNoLongerOffered(t *testing.T) {
	f := newFixture(t)
	req := f.request
	req.Time = "11:00"

	out, err := f.coord.Book(context.Background(), req)
	var su *apperr.SlotUnavailableError
	if !errors.As(err, &su) || out.State != StateFailed {
		t.Fatalf("expected SlotUnavailableError, got %v (%s)", err, out.State)
	}
	if f.gw.CreateCalls() != 0 {
		t.Fatalf("unavailable slot reached the provider")
	}
}

func TestBookRejectsOverlapWithRecordedAppointment(t *testing.T) {
	f := newFixture(t)
	if _, err := f.coord.Book(context.Background(), f.request); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	// The provider still lists 10:30 but it collides with the 10:00 booking.
	req := f.request
	req.Time = "10:30"
	_, err := f.coord.Book(context.Background(), req)
	var su *apperr.SlotUnavailableError
	if !errors.As(err, &su) {
		t.Fatalf("expected SlotUnavailableError, got %v", err)
	}
	if f.gw.CreateCalls() != 1 {
		t.Fatalf("overlapping booking reached the provider")
	}
}

func TestBookSurvivesCallerCancellationAfterReservation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	f.gw.OnCreate = func(upCtx context.Context, _ freebusy.AppointmentCommand) {
		close(started)
		<-release
		if upCtx.Err() != nil {
			t.Errorf("reservation context was cancelled with the caller: %v", upCtx.Err())
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.coord.Book(ctx, f.request)
		done <- err
	}()

	<-started
	cancel()
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("book: %v", err)
	}
	if tn := f.reload(t); len(tn.Appointments) != 1 {
		t.Fatalf("appointment not committed after cancellation: %+v", tn.Appointments)
	}
}

func TestBookIdempotencyKeyReplays(t *testing.T) {
	f := newFixture(t)
	req := f.request
	req.IdempotencyKey = "key-1"

	first, err := f.coord.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.coord.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Replayed || second.Appointment.ID != first.Appointment.ID {
		t.Fatalf("expected replay of %s, got %+v", first.Appointment.ID, second)
	}
	if f.gw.CreateCalls() != 1 {
		t.Fatalf("replay reached the provider")
	}
}

func TestBookConfigurationAndLookupErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.request
	req.Service = "Manicure"
	if _, err := f.coord.Book(ctx, req); !apperr.IsNotFound(err) {
		t.Fatalf("expected NotFound for unknown service, got %v", err)
	}

	if _, err := f.store.Update(ctx, f.tenant.ID, storage.TenantPatch{LocationID: str("")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	_, err := f.coord.Book(ctx, f.request)
	var ce *apperr.ConfigurationError
	if !errors.As(err, &ce) || ce.Missing[0] != "locationId" {
		t.Fatalf("expected ConfigurationError for locationId, got %v", err)
	}

	bad := f.request
	bad.Time = "25:00"
	if _, err := f.coord.Book(ctx, bad); !apperr.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

// flakyStore fails every mutation once armed.
type flakyStore struct {
	*storage.TenantStore
	mu    sync.Mutex
	armed bool
}

func (s *flakyStore) Mutate(ctx context.Context, id string, fn storage.MutateFunc) (model.Tenant, error) {
	s.mu.Lock()
	armed := s.armed
	s.mu.Unlock()
	if armed {
		return model.Tenant{}, errors.New("disk full")
	}
	return s.TenantStore.Mutate(ctx, id, fn)
}

func TestBookLocalCommitFailureKeepsMarker(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyStore{TenantStore: f.store}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := availability.NewResolver(f.store, f.gw, availability.Config{Location: testLoc}, logger, nil)
	coord := NewCoordinator(flaky, resolver, f.gw, nil, logger, nil, Config{Location: testLoc, CommitAttempts: 2})
	f.gw.OnCreate = func(context.Context, freebusy.AppointmentCommand) {
		flaky.mu.Lock()
		flaky.armed = true
		flaky.mu.Unlock()
	}

	out, err := coord.Book(context.Background(), f.request)
	if err == nil {
		t.Fatalf("expected local commit error")
	}
	if out.State != StateReserving || out.Appointment.ID != "evt-1" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	tn := f.reload(t)
	if len(tn.PendingBookings) != 1 || tn.PendingBookings[0].Status != model.PendingReserving {
		t.Fatalf("pending marker missing: %+v", tn.PendingBookings)
	}
	if len(tn.Appointments) != 0 {
		t.Fatalf("appointment unexpectedly recorded")
	}
}

// stuckBooking leaves one flagged marker on the 10:00 slot, the state the
// reconciler leaves behind after a failed local commit.
func stuckBooking(t *testing.T, f *fixture) model.PendingBooking {
	t.Helper()
	flaky := &flakyStore{TenantStore: f.store}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := availability.NewResolver(f.store, f.gw, availability.Config{Location: testLoc}, logger, nil)
	coord := NewCoordinator(flaky, resolver, f.gw, nil, logger, nil, Config{Location: testLoc, CommitAttempts: 1})
	f.gw.OnCreate = func(context.Context, freebusy.AppointmentCommand) {
		flaky.mu.Lock()
		flaky.armed = true
		flaky.mu.Unlock()
	}
	req := f.request
	req.IdempotencyKey = "idem-stuck"
	if _, err := coord.Book(context.Background(), req); err == nil {
		t.Fatalf("expected local commit error")
	}
	f.gw.OnCreate = nil

	tn, err := f.store.Mutate(context.Background(), f.tenant.ID, func(tn *model.Tenant) error {
		for i := range tn.PendingBookings {
			tn.PendingBookings[i].Status = model.PendingUnresolved
		}
		return nil
	})
	if err != nil {
		t.Fatalf("flag marker: %v", err)
	}
	if len(tn.PendingBookings) != 1 {
		t.Fatalf("expected one marker, got %+v", tn.PendingBookings)
	}
	return tn.PendingBookings[0]
}

func TestDiscardedPendingBookingFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	marker := stuckBooking(t, f)

	other := f.request
	other.ContactID = "contact-2"
	other.CustomerName = "Noa"
	var su *apperr.SlotUnavailableError
	if _, err := f.coord.Book(ctx, other); !errors.As(err, &su) {
		t.Fatalf("expected slot held by flagged marker, got %v", err)
	}

	appt, err := f.store.ResolvePending(ctx, f.tenant.ID, marker.ID, storage.PendingResolution{Action: storage.PendingDiscard})
	if err != nil || appt != nil {
		t.Fatalf("discard: appt=%v err=%v", appt, err)
	}

	f.gw.CreateID = "evt-2"
	out, err := f.coord.Book(ctx, other)
	if err != nil {
		t.Fatalf("book after discard: %v", err)
	}
	if out.State != StateCommitted || out.Appointment.ID != "evt-2" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	tn := f.reload(t)
	if len(tn.PendingBookings) != 0 || len(tn.Appointments) != 1 {
		t.Fatalf("unexpected tenant state: pending=%+v appointments=%+v", tn.PendingBookings, tn.Appointments)
	}
}

func TestCommittedPendingBookingReplaysByKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	marker := stuckBooking(t, f)

	req := f.request
	req.IdempotencyKey = "idem-stuck"
	if _, err := f.coord.Book(ctx, req); !errors.Is(err, apperr.ErrBookingInProgress) {
		t.Fatalf("expected in-progress while marker is open, got %v", err)
	}

	appt, err := f.store.ResolvePending(ctx, f.tenant.ID, marker.ID, storage.PendingResolution{Action: storage.PendingCommit, AppointmentID: "evt-1"})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if appt == nil || appt.ID != "evt-1" || appt.Time != "10:00" || appt.ContactID != "contact-1" {
		t.Fatalf("unexpected appointment: %+v", appt)
	}

	out, err := f.coord.Book(ctx, req)
	if err != nil || !out.Replayed || out.Appointment.ID != "evt-1" {
		t.Fatalf("expected replay of resolved booking, got %+v err=%v", out, err)
	}
	if calls := f.gw.CreateCalls(); calls != 1 {
		t.Fatalf("expected a single create call, got %d", calls)
	}

	if _, err := f.store.ResolvePending(ctx, f.tenant.ID, marker.ID, storage.PendingResolution{Action: storage.PendingDiscard}); !apperr.IsNotFound(err) {
		t.Fatalf("expected NotFound for settled marker, got %v", err)
	}
}
