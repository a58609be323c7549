package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each event to its type's topic, keyed by appointment
// so one appointment's events stay ordered.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string) *KafkaSink {
	return &KafkaSink{writer: kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Balancer: &kafka.Hash{},
	})}
}

func (s *KafkaSink) Deliver(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Topic: evt.Type.Topic(),
		Key:   []byte(evt.AppointmentID),
		Value: payload,
		Headers: kafkax.EventMeta{
			EventID:   evt.ID,
			EventType: string(evt.Type),
		}.Headers(),
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	return s.writer.WriteMessages(ctx, msg)
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// LogSink writes events to the log. Used when no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(ctx context.Context, evt Event) error {
	s.logger.InfoContext(ctx, "notification",
		"event_id", evt.ID,
		"type", evt.Type,
		"appointment_id", evt.AppointmentID,
		"recipient_user_id", evt.RecipientUserID,
		"start_time", evt.RenderContext[KeyStartTime],
	)
	return nil
}
