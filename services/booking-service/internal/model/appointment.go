package model

import "time"

// Appointment is a committed booking. Appointments are only ever appended.
type Appointment struct {
	ID             string    `json:"id"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	Service        string    `json:"service"`
	CustomerName   string    `json:"customerName"`
	CustomerPhone  string    `json:"customerPhone"`
	ContactID      string    `json:"contactId,omitempty"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	CreatedAt      time.Time `json:"createdAt,omitzero"`
}

type PendingStatus string

const (
	PendingReserving  PendingStatus = "reserving"
	PendingUnresolved PendingStatus = "unresolved"
)

// PendingBooking marks a booking whose external reservation was issued but
// whose local commit has not been recorded yet.
type PendingBooking struct {
	ID             string        `json:"id"`
	Date           string        `json:"date"`
	Time           string        `json:"time"`
	Service        string        `json:"service"`
	CustomerName   string        `json:"customerName"`
	CustomerPhone  string        `json:"customerPhone"`
	ContactID      string        `json:"contactId,omitempty"`
	IdempotencyKey string        `json:"idempotencyKey,omitempty"`
	Status         PendingStatus `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	Traceparent    string        `json:"traceparent,omitempty"`
	Tracestate     string        `json:"tracestate,omitempty"`
}
