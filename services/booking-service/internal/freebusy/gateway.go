// Package freebusy talks to the external calendar provider: it reads free
// slots and creates appointments on a tenant's calendar.
package freebusy

import (
	"context"
	"time"
)

type FreeSlotsQuery struct {
	CalendarID string
	APIToken   string
	Start      time.Time
	End        time.Time
	Timezone   string
}

// AppointmentCommand creates one event on the tenant's calendar.
type AppointmentCommand struct {
	CalendarID string
	LocationID string
	APIToken   string
	ContactID  string
	StartTime  time.Time
	EndTime    time.Time
	Title      string
}

type CreatedEvent struct {
	// ID is the provider's event id; empty if the provider did not return one.
	ID string
}

// Gateway is the provider boundary. Every failure is an
// *apperr.UpstreamError.
type Gateway interface {
	// FreeSlots returns free slot start timestamps keyed by calendar date.
	FreeSlots(ctx context.Context, q FreeSlotsQuery) (map[string][]string, error)
	CreateAppointment(ctx context.Context, cmd AppointmentCommand) (CreatedEvent, error)
}
