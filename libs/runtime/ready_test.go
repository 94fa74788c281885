package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadyzReportsFailingCheck(t *testing.T) {
	mux := NewBaseMuxWithReady(
		ReadyCheck{Name: "store", Check: func(context.Context) error { return nil }},
		ReadyCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "connection refused") || !strings.Contains(body, `"store":"ok"`) {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestHealthzAlwaysOK(t *testing.T) {
	mux := NewBaseMuxWithReady()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG").String() != "DEBUG" || ParseLevel("bogus").String() != "INFO" {
		t.Fatalf("unexpected level parsing")
	}
}
