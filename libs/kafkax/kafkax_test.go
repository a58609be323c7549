package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMetaFallbacks(t *testing.T) {
	msg := kafka.Message{Topic: "scheduling.notification.confirmation.v1", Key: []byte("appt-1")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "appt-1" || meta.EventType != msg.Topic {
		t.Fatalf("unexpected fallback meta %+v", meta)
	}

	msg.Headers = EventMeta{EventID: "evt-9", EventType: "confirmation"}.Headers()
	meta = ExtractEventMeta(msg)
	if meta.EventID != "evt-9" || meta.EventType != "confirmation" {
		t.Fatalf("unexpected header meta %+v", meta)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTraceHeaders(ctx, EventMeta{EventID: "e"}.Headers())
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatalf("expected traceparent header, got %v", headers)
	}

	out := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), kafka.Message{Headers: headers}))
	if out.TraceID() != traceID {
		t.Fatalf("expected trace id to survive, got %s", out.TraceID())
	}
}
