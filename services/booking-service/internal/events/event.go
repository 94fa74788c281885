package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/model"
)

// TypeAppointmentBooked is also the Kafka topic the event is written to.
const TypeAppointmentBooked = "booking.appointment.booked.v1"

// Event is the domain event envelope.
type Event struct {
	EventID     string
	EventType   string
	AggregateID string
	Payload     []byte
}

type AppointmentBooked struct {
	EventID     string            `json:"eventId"`
	TenantID    string            `json:"tenantId"`
	Appointment model.Appointment `json:"appointment"`
	OccurredAt  time.Time         `json:"occurredAt"`
}

func NewAppointmentBooked(tenantID string, appt model.Appointment, at time.Time) (Event, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(AppointmentBooked{
		EventID:     id,
		TenantID:    tenantID,
		Appointment: appt,
		OccurredAt:  at.UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:     id,
		EventType:   TypeAppointmentBooked,
		AggregateID: tenantID,
		Payload:     payload,
	}, nil
}
