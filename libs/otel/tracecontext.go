package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceCarrier captures the trace context of ctx so work handed to another
// goroutine can continue the same trace after ctx itself is canceled.
type TraceCarrier map[string]string

func CaptureTrace(ctx context.Context) TraceCarrier {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		return nil
	}
	return TraceCarrier(carrier)
}

// Restore returns ctx carrying the captured trace context.
func (c TraceCarrier) Restore(ctx context.Context) context.Context {
	if len(c) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(c))
}
