package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	traceparentKey = "traceparent"
	tracestateKey  = "tracestate"
)

// TraceContextStrings returns the W3C headers for the span in ctx, so a
// record written now can be correlated with the request that wrote it.
func TraceContextStrings(ctx context.Context) (traceparent, tracestate string) {
	c := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, c)
	return c.Get(traceparentKey), c.Get(tracestateKey)
}

// ContextWithTraceContext attaches a stored trace context to ctx as the
// remote parent. ctx is returned untouched when nothing was stored.
func ContextWithTraceContext(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	c := propagation.MapCarrier{traceparentKey: traceparent}
	if tracestate != "" {
		c.Set(tracestateKey, tracestate)
	}
	return otel.GetTextMapPropagator().Extract(ctx, c)
}

// TraceID extracts the trace id from a stored traceparent, or "" if it
// does not parse.
func TraceID(traceparent string) string {
	if traceparent == "" {
		return ""
	}
	ctx := propagation.TraceContext{}.Extract(context.Background(), propagation.MapCarrier{traceparentKey: traceparent})
	sc := trace.SpanContextFromContext(ctx)
	if !sc.TraceID().IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
