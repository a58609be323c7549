package scheduling

import (
	"context"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CancelAppointment applies the cancellation matrix for actorID. The
// appointment is resolved before the actor, so an unknown appointment is
// reported first. A rejected attempt leaves the appointment untouched.
func (s *Service) CancelAppointment(ctx context.Context, appointmentID, actorID, reason string) error {
	ctx, span := s.tracer.Start(ctx, "scheduling.CancelAppointment", trace.WithAttributes(
		attribute.String("appointment.id", appointmentID),
	))
	defer span.End()

	if strings.TrimSpace(appointmentID) == "" || strings.TrimSpace(actorID) == "" {
		return spanError(span, invalid("appointment id and actor are required"))
	}
	if _, err := s.findAppointment(ctx, appointmentID); err != nil {
		return spanError(span, err)
	}
	actor, err := s.findUser(ctx, actorID)
	if err != nil {
		return spanError(span, err)
	}
	_, err = s.cancelOne(ctx, actor, appointmentID, reason, true)
	return spanError(span, err)
}

// cancelOne locks the appointment, decides, and persists the outcome.
func (s *Service) cancelOne(ctx context.Context, actor model.User, appointmentID, reason string, announce bool) (model.Appointment, error) {
	var (
		canceled model.Appointment
		decision cancelDecision
	)
	err := s.inTx(ctx, "cancel appointment", nil, func(ctx context.Context, tx Tx) error {
		current, err := tx.LockAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		now := s.now()
		decision, err = decideCancellation(ClassifyActor(actor, current), actor.ID, current, reason, now, s.opts.NoticeWindow)
		if err != nil {
			return err
		}

		current.Status = decision.outcome
		current.CancelReason = decision.reason
		current.CanceledAt = &now
		current.CanceledBy = actor.ID
		canceled, err = tx.UpdateCancellation(ctx, current)
		return err
	})
	if err != nil {
		s.metrics.cancellation(ctx, "rejected")
		return model.Appointment{}, err
	}

	s.metrics.cancellation(ctx, string(decision.outcome))
	s.logger.Info("appointment canceled",
		"appointment_id", canceled.ID,
		"status", canceled.Status,
		"actor_id", actor.ID,
		"actor_kind", decision.actor.String(),
	)
	if announce {
		s.notifyCancellation(ctx, canceled, decision)
	}
	return canceled, nil
}

// SkippedCancellation is a series member that stayed as it was.
type SkippedCancellation struct {
	AppointmentID string
	Err           error
}

type SeriesResult struct {
	Canceled []model.Appointment
	Skipped  []SkippedCancellation
}

// CancelSeries cancels appointmentID and every later active member of its
// recurrence group. The first appointment's rejection is returned as the
// error; later members that are rejected are reported in Skipped. Only the
// first cancellation is notified.
func (s *Service) CancelSeries(ctx context.Context, appointmentID, actorID, reason string) (SeriesResult, error) {
	ctx, span := s.tracer.Start(ctx, "scheduling.CancelSeries", trace.WithAttributes(
		attribute.String("appointment.id", appointmentID),
	))
	defer span.End()

	if strings.TrimSpace(appointmentID) == "" || strings.TrimSpace(actorID) == "" {
		return SeriesResult{}, spanError(span, invalid("appointment id and actor are required"))
	}
	if _, err := s.findAppointment(ctx, appointmentID); err != nil {
		return SeriesResult{}, spanError(span, err)
	}
	actor, err := s.findUser(ctx, actorID)
	if err != nil {
		return SeriesResult{}, spanError(span, err)
	}
	first, err := s.cancelOne(ctx, actor, appointmentID, reason, true)
	if err != nil {
		return SeriesResult{}, spanError(span, err)
	}
	result := SeriesResult{Canceled: []model.Appointment{first}}
	if first.RecurrenceGroupID == "" {
		return result, nil
	}

	members, err := call(ctx, s, "list series", func(ctx context.Context) ([]model.Appointment, error) {
		return s.store.ListSeries(ctx, first.RecurrenceGroupID, first.Start)
	})
	if err != nil {
		return result, spanError(span, err)
	}
	for _, m := range members {
		if m.ID == first.ID || !m.Start.After(first.Start) || !m.Status.Active() {
			continue
		}
		canceled, err := s.cancelOne(ctx, actor, m.ID, reason, false)
		if err != nil {
			if !IsDomainError(err) {
				return result, spanError(span, err)
			}
			result.Skipped = append(result.Skipped, SkippedCancellation{AppointmentID: m.ID, Err: err})
			continue
		}
		result.Canceled = append(result.Canceled, canceled)
	}
	span.SetAttributes(attribute.Int("series.canceled", len(result.Canceled)))
	return result, nil
}
