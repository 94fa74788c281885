package freebusy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/apperr"
)

func newTestClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:    srv.URL + "/",
		HTTPClient: &http.Client{Timeout: timeout},
	})
}

func TestFreeSlotsRequestAndDecode(t *testing.T) {
	start := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/calendars/cal-1/free-slots" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Fatalf("authorization = %q", got)
		}
		if got := r.Header.Get("Version"); got != DefaultAPIVersion {
			t.Fatalf("version = %q", got)
		}
		q := r.URL.Query()
		if q.Get("startDate") != "1717977600000" || q.Get("endDate") != "1718064000000" || q.Get("timezone") != "Asia/Jerusalem" {
			t.Fatalf("unexpected query %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"2024-06-10": {"slots": ["2024-06-10T09:00:00+03:00", "2024-06-10T10:00:00+03:00"]},
			"traceId": "abc"
		}`))
	}, time.Second)

	got, err := client.FreeSlots(context.Background(), FreeSlotsQuery{
		CalendarID: "cal-1",
		APIToken:   "tok-1",
		Start:      start,
		End:        start.AddDate(0, 0, 1),
		Timezone:   "Asia/Jerusalem",
	})
	if err != nil {
		t.Fatalf("free slots: %v", err)
	}
	if len(got) != 1 || len(got["2024-06-10"]) != 2 {
		t.Fatalf("unexpected slots: %#v", got)
	}
}

func TestFreeSlotsNon2xxIsUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"Invalid JWT"}`, http.StatusUnauthorized)
	}, time.Second)

	_, err := client.FreeSlots(context.Background(), FreeSlotsQuery{CalendarID: "c", APIToken: "bad"})
	var up *apperr.UpstreamError
	if !errors.As(err, &up) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if up.StatusCode != http.StatusUnauthorized || !up.NeedsReconfiguration() || up.Retryable() {
		t.Fatalf("unexpected error details: %+v", up)
	}
}

func TestFreeSlotsTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	_, err := client.FreeSlots(context.Background(), FreeSlotsQuery{CalendarID: "c", APIToken: "t"})
	var up *apperr.UpstreamError
	if !errors.As(err, &up) || !up.Timeout {
		t.Fatalf("expected timeout UpstreamError, got %v", err)
	}
}

func TestFreeSlotsMalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"2024-06-10": {"slots": "nope"}}`))
	}, time.Second)

	_, err := client.FreeSlots(context.Background(), FreeSlotsQuery{CalendarID: "c", APIToken: "t"})
	var up *apperr.UpstreamError
	if !errors.As(err, &up) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
}

func TestCreateAppointment(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	start := time.Date(2024, 6, 10, 10, 0, 0, 0, loc)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/calendars/events/appointments" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		want := map[string]string{
			"calendarId":          "cal-1",
			"locationId":          "loc-1",
			"contactId":           "contact-1",
			"startTime":           "2024-06-10T10:00:00+03:00",
			"endTime":             "2024-06-10T11:00:00+03:00",
			"title":               "Haircut",
			"meetingLocationType": "default",
			"appointmentStatus":   "new",
		}
		for k, v := range want {
			if body[k] != v {
				t.Fatalf("%s = %q, want %q", k, body[k], v)
			}
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"evt-42","status":"new"}`))
	}, time.Second)

	ev, err := client.CreateAppointment(context.Background(), AppointmentCommand{
		CalendarID: "cal-1",
		LocationID: "loc-1",
		APIToken:   "tok",
		ContactID:  "contact-1",
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		Title:      "Haircut",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ev.ID != "evt-42" {
		t.Fatalf("unexpected id %q", ev.ID)
	}
}

func TestCreateAppointmentConflictCarriesBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"slot no longer available"}`))
	}, time.Second)

	_, err := client.CreateAppointment(context.Background(), AppointmentCommand{CalendarID: "c"})
	var up *apperr.UpstreamError
	if !errors.As(err, &up) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if up.StatusCode != http.StatusConflict || up.Body != `{"message":"slot no longer available"}` {
		t.Fatalf("unexpected error details: %+v", up)
	}
}
