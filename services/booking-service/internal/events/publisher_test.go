package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/tenantbook/libs/kafkax"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/model"
)

type captureWriter struct {
	msgs []kafka.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestPublishAppointmentBooked(t *testing.T) {
	w := &captureWriter{}
	p := &KafkaPublisher{writer: w, logger: slog.New(slog.NewTextHandler(io.Discard, nil)), timeout: time.Second}

	appt := model.Appointment{ID: "evt-1", Date: "2024-06-10", Time: "10:00", Service: "Cut", CustomerName: "Dana"}
	ev, err := NewAppointmentBooked("t1", appt, time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != TypeAppointmentBooked || string(msg.Key) != "t1" {
		t.Fatalf("unexpected routing: topic=%s key=%s", msg.Topic, msg.Key)
	}
	if kafkax.HeaderValue(msg.Headers, "event_id") != ev.EventID || kafkax.HeaderValue(msg.Headers, "event_type") != TypeAppointmentBooked {
		t.Fatalf("missing meta headers: %+v", msg.Headers)
	}

	var body AppointmentBooked
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if body.TenantID != "t1" || body.Appointment.ID != "evt-1" || body.EventID != ev.EventID {
		t.Fatalf("unexpected payload: %+v", body)
	}
}

func TestPublishTopicOverride(t *testing.T) {
	w := &captureWriter{}
	p := &KafkaPublisher{
		writer:  w,
		topics:  map[string]string{TypeAppointmentBooked: "salon.bookings"},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: time.Second,
	}
	ev, err := NewAppointmentBooked("t1", model.Appointment{ID: "a"}, time.Now())
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if w.msgs[0].Topic != "salon.bookings" {
		t.Fatalf("topic = %s, want salon.bookings", w.msgs[0].Topic)
	}
	if kafkax.HeaderValue(w.msgs[0].Headers, "event_type") != TypeAppointmentBooked {
		t.Fatalf("event_type header must keep the event type")
	}
}
