package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox deduplicates events by id.
type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers     string
	GroupID     string
	Topics      []string
	MaxAttempts int
	Backoff     time.Duration
}

type Consumer struct {
	reader      reader
	logger      *slog.Logger
	inbox       Inbox
	handler     Handler
	maxAttempts int
	backoff     time.Duration
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newConsumer(r, logger, inbox, cfg, handler)
}

func newConsumer(r reader, logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Consumer{
		reader:      r,
		logger:      logger,
		inbox:       inbox,
		handler:     handler,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}
}

// Run consumes until ctx is done. Offsets are committed only after a
// message has been handled or given up on.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			if !sleep(ctx, c.backoff) {
				return
			}
			continue
		}

		if !c.process(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit error", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// process reports false only when ctx ended before msg was settled.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	for attempt := 1; ; attempt++ {
		err := c.attempt(ctxSpan, msg, meta)
		if err == nil {
			return true
		}
		span.RecordError(err)
		if attempt >= c.maxAttempts {
			span.SetStatus(codes.Error, "giving up")
			c.logger.Error("event dropped after retries", "err", err, "event_id", meta.EventID, "attempts", attempt)
			return true
		}
		c.logger.Warn("event handling failed; retrying", "err", err, "event_id", meta.EventID, "attempt", attempt)
		if !sleep(ctx, time.Duration(attempt)*c.backoff) {
			return false
		}
	}
}

func (c *Consumer) attempt(ctx context.Context, msg kafka.Message, meta kafkax.EventMeta) error {
	ok, err := c.inbox.Record(ctx, meta.EventID, meta.EventType)
	if err != nil {
		return err
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return nil
	}
	if err := c.handler(ctx, msg); err != nil {
		if ferr := c.inbox.Forget(context.WithoutCancel(ctx), meta.EventID); ferr != nil {
			c.logger.Error("inbox release failed", "err", ferr, "event_id", meta.EventID)
		}
		return err
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
