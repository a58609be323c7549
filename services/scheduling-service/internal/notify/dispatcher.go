package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Sink delivers one event to the outside world.
type Sink interface {
	Deliver(ctx context.Context, evt Event) error
}

type DispatcherOptions struct {
	// Buffer is how many events may wait for delivery. Emit drops beyond it.
	Buffer int
	// DeliverTimeout bounds each delivery attempt.
	DeliverTimeout time.Duration
	MaxAttempts    int
	Backoff        time.Duration
}

func (o DispatcherOptions) withDefaults() DispatcherOptions {
	if o.Buffer <= 0 {
		o.Buffer = 256
	}
	if o.DeliverTimeout <= 0 {
		o.DeliverTimeout = 5 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 200 * time.Millisecond
	}
	return o
}

type envelope struct {
	evt   Event
	trace otelx.TraceCarrier
}

// Dispatcher is an Emitter that hands events to a Sink on its own
// goroutine, so booking never waits on delivery.
type Dispatcher struct {
	sink   Sink
	logger *slog.Logger
	opts   DispatcherOptions
	queue  chan envelope

	// mu guards closed so nothing is queued after the final flush.
	mu     sync.RWMutex
	closed bool

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	outcomes  metric.Int64Counter
}

func NewDispatcher(sink Sink, logger *slog.Logger, opts DispatcherOptions) *Dispatcher {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		sink:   sink,
		logger: logger,
		opts:   opts,
		queue:  make(chan envelope, opts.Buffer),
	}
	counter, err := otel.Meter("github.com/md-rashed-zaman/clinicbook/notify").Int64Counter(
		"scheduling_notifications",
		metric.WithDescription("Notification events by outcome."),
	)
	if err != nil {
		logger.Warn("metric registration failed", "metric", "scheduling_notifications", "err", err)
	}
	d.outcomes = counter
	return d
}

// Emit queues evt. A full queue, or a dispatcher whose Run has already
// returned, drops the event and logs it.
func (d *Dispatcher) Emit(ctx context.Context, evt Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ctx, evt, "dispatcher stopped")
		return
	}
	select {
	case d.queue <- envelope{evt: evt, trace: otelx.CaptureTrace(ctx)}:
	default:
		d.drop(ctx, evt, "queue full")
	}
}

func (d *Dispatcher) drop(ctx context.Context, evt Event, reason string) {
	d.dropped.Add(1)
	d.record(ctx, evt, "dropped")
	d.logger.Warn("notification dropped: "+reason,
		"event_id", evt.ID, "type", evt.Type, "appointment_id", evt.AppointmentID)
}

// Run delivers queued events until ctx ends, then stops accepting new
// ones and flushes whatever is already queued before returning. Callers
// should end ctx only after the producers (HTTP and gRPC servers) have
// drained.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case env := <-d.queue:
			d.deliver(ctx, env)
		case <-ctx.Done():
			d.mu.Lock()
			d.closed = true
			d.mu.Unlock()
			d.flush()
			return
		}
	}
}

func (d *Dispatcher) flush() {
	for {
		select {
		case env := <-d.queue:
			d.deliver(context.Background(), env)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(parent context.Context, env envelope) {
	base := env.trace.Restore(context.WithoutCancel(parent))
	var err error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(base, d.opts.DeliverTimeout)
		err = d.sink.Deliver(ctx, env.evt)
		cancel()
		if err == nil {
			d.delivered.Add(1)
			d.record(base, env.evt, "delivered")
			return
		}
		if attempt < d.opts.MaxAttempts {
			select {
			case <-time.After(time.Duration(attempt) * d.opts.Backoff):
			case <-parent.Done():
				// shutting down, retry without waiting
			}
		}
	}
	d.failed.Add(1)
	d.record(base, env.evt, "failed")
	d.logger.Error("notification delivery failed",
		"event_id", env.evt.ID, "type", env.evt.Type, "appointment_id", env.evt.AppointmentID, "err", err)
}

func (d *Dispatcher) record(ctx context.Context, evt Event, outcome string) {
	if d.outcomes == nil {
		return
	}
	d.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(evt.Type)),
		attribute.String("outcome", outcome),
	))
}

type DispatcherStats struct {
	Delivered int64
	Failed    int64
	Dropped   int64
	Queued    int
}

func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
		Queued:    len(d.queue),
	}
}
