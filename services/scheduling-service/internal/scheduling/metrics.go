package scheduling

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type metrics struct {
	booked        metric.Int64Counter
	conflicts     metric.Int64Counter
	skipped       metric.Int64Counter
	cancellations metric.Int64Counter
}

func newMetrics(meter metric.Meter, logger *slog.Logger) *metrics {
	fallback := noop.NewMeterProvider().Meter("")
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Warn("metric registration failed", "metric", name, "err", err)
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}
	return &metrics{
		booked:        counter("scheduling_appointments_booked", "Appointments persisted, one-off and recurring."),
		conflicts:     counter("scheduling_booking_conflicts", "Booking attempts rejected by the overlap check."),
		skipped:       counter("scheduling_recurring_occurrences_skipped", "Recurring occurrences not created."),
		cancellations: counter("scheduling_cancellations", "Cancellation attempts by outcome."),
	}
}

func (m *metrics) cancellation(ctx context.Context, outcome string) {
	m.cancellations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
