package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/event"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/render"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/storage"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/whatsapp"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/md-rashed-zaman/clinicbook/notification"

// Store persists one row per event and channel.
type Store interface {
	CreatePending(ctx context.Context, n storage.Notification) (string, storage.Status, error)
	MarkSent(ctx context.Context, id, provider, providerMessageID string, at time.Time) error
	MarkFailed(ctx context.Context, id, provider, reason string) error
}

type Processor struct {
	store    Store
	email    email.Sender
	whatsapp whatsapp.Sender
	logger   *slog.Logger
	now      func() time.Time
	sent     metric.Int64Counter
}

func NewProcessor(store Store, mail email.Sender, wa whatsapp.Sender, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	sent, err := otel.Meter(instrumentationName).Int64Counter("notifications_delivered",
		metric.WithDescription("Notification deliveries by channel and outcome"))
	if err != nil {
		logger.Warn("notification counter unavailable", "err", err)
	}
	return &Processor{store: store, email: mail, whatsapp: wa, logger: logger, now: time.Now, sent: sent}
}

// Handle processes one Kafka message. Only storage failures are returned;
// undeliverable or malformed events are recorded or logged and dropped.
func (p *Processor) Handle(ctx context.Context, msg kafka.Message) error {
	evt, err := event.Decode(msg)
	if err != nil {
		p.logger.Error("dropping notification event", "topic", msg.Topic, "offset", msg.Offset, "err", err)
		return nil
	}
	messages, err := render.Render(evt)
	if errors.Is(err, render.ErrNoChannel) {
		p.logger.Warn("notification has no reachable channel", "event_id", evt.ID, "recipient_user_id", evt.RecipientUserID)
		return nil
	}
	if err != nil {
		p.logger.Error("notification render failed", "event_id", evt.ID, "err", err)
		return nil
	}

	for _, m := range messages {
		if err := p.deliver(ctx, evt, m); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) deliver(ctx context.Context, evt event.Event, m render.Message) error {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "notification.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("notification.channel", string(m.Channel)),
		attribute.String("notification.type", string(evt.Type)),
		attribute.String("appointment.id", evt.AppointmentID),
	)

	id, status, err := p.store.CreatePending(ctx, storage.Notification{
		EventID:         evt.ID,
		EventType:       string(evt.Type),
		AppointmentID:   evt.AppointmentID,
		RecipientUserID: evt.RecipientUserID,
		Channel:         string(m.Channel),
		Recipient:       m.To,
		Subject:         m.Subject,
		Body:            m.Body,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist")
		return err
	}
	if status != storage.StatusPending {
		p.logger.Info("notification already handled", "notification_id", id, "status", status)
		return nil
	}

	provider, messageID, sendErr := p.send(ctx, m)
	if sendErr != nil {
		span.RecordError(sendErr)
		span.SetStatus(codes.Error, "send")
		p.count(ctx, m.Channel, "failed")
		p.logger.Error("notification send failed", "notification_id", id, "channel", m.Channel, "err", sendErr)
		return p.store.MarkFailed(ctx, id, provider, sendErr.Error())
	}
	p.count(ctx, m.Channel, "sent")
	p.logger.Info("notification sent", "notification_id", id, "channel", m.Channel, "type", evt.Type, "appointment_id", evt.AppointmentID)
	return p.store.MarkSent(ctx, id, provider, messageID, p.now().UTC())
}

func (p *Processor) send(ctx context.Context, m render.Message) (provider, messageID string, err error) {
	switch m.Channel {
	case render.ChannelEmail:
		return p.email.ProviderID(), "", p.email.Send(ctx, m.To, m.Subject, m.Body)
	case render.ChannelWhatsApp:
		id, err := p.whatsapp.Send(ctx, m.To, m.Body)
		return p.whatsapp.ProviderID(), id, err
	}
	return "", "", errors.New("unsupported channel " + string(m.Channel))
}

func (p *Processor) count(ctx context.Context, channel render.Channel, outcome string) {
	if p.sent == nil {
		return
	}
	p.sent.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", string(channel)),
		attribute.String("outcome", outcome),
	))
}
