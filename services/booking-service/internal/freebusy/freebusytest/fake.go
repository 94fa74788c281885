// Package freebusytest provides an in-memory Gateway for tests.
package freebusytest

import (
	"context"
	"sync"

	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/freebusy"
)

// Fake serves canned free slots and records created appointments.
type Fake struct {
	mu sync.Mutex

	Slots map[string][]string
	// SlotsErrs are returned, in order, by the first FreeSlots calls.
	SlotsErrs []error

	CreateID  string
	CreateErr error
	// OnCreate runs before CreateAppointment returns, e.g. to block it.
	OnCreate func(ctx context.Context, cmd freebusy.AppointmentCommand)

	SlotsCalls int
	Created    []freebusy.AppointmentCommand
	Queries    []freebusy.FreeSlotsQuery
}

var _ freebusy.Gateway = (*Fake)(nil)

func (f *Fake) FreeSlots(_ context.Context, q freebusy.FreeSlotsQuery) (map[string][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SlotsCalls++
	f.Queries = append(f.Queries, q)
	if len(f.SlotsErrs) > 0 {
		err := f.SlotsErrs[0]
		f.SlotsErrs = f.SlotsErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	out := make(map[string][]string, len(f.Slots))
	for k, v := range f.Slots {
		out[k] = append([]string(nil), v...)
	}
	return out, nil
}

func (f *Fake) CreateAppointment(ctx context.Context, cmd freebusy.AppointmentCommand) (freebusy.CreatedEvent, error) {
	if f.OnCreate != nil {
		f.OnCreate(ctx, cmd)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Created = append(f.Created, cmd)
	if f.CreateErr != nil {
		return freebusy.CreatedEvent{}, f.CreateErr
	}
	return freebusy.CreatedEvent{ID: f.CreateID}, nil
}

// CreateCalls is safe to call while other goroutines use the fake.
func (f *Fake) CreateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Created)
}
