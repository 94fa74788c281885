package otelx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const sampleTraceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func TestTraceID(t *testing.T) {
	if got := TraceID(sampleTraceparent); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("trace id = %q", got)
	}
	if got := TraceID("garbage"); got != "" {
		t.Fatalf("expected empty trace id for garbage, got %q", got)
	}
	if got := TraceID(""); got != "" {
		t.Fatalf("expected empty trace id, got %q", got)
	}
}

func TestContextWithTraceContextRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	ctx := ContextWithTraceContext(context.Background(), sampleTraceparent, "")
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsRemote() || sc.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("unexpected span context: %+v", sc)
	}

	tp, _ := TraceContextStrings(ctx)
	if tp != sampleTraceparent {
		t.Fatalf("traceparent = %q", tp)
	}

	bare := context.Background()
	if got := ContextWithTraceContext(bare, "", "ignored"); got != bare {
		t.Fatal("expected context to be returned unchanged")
	}
}
