package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type RecurringRequest struct {
	BookingRequest
	Frequency model.Recurrence
	// EndDate bounds a date-driven series. Only its calendar date, read in
	// its own location, is used: occurrences on that day are included.
	EndDate *time.Time
	// Occurrences bounds a count-driven series. Exactly one of EndDate and
	// Occurrences must be set.
	Occurrences int
}

// SkippedOccurrence is a planned start that could not be booked.
type SkippedOccurrence struct {
	Index int
	Start time.Time
	Err   error
}

type RecurringResult struct {
	Appointments []model.Appointment
	Skipped      []SkippedOccurrence
}

// Anchor is the first appointment created, or nil.
func (r RecurringResult) Anchor() *model.Appointment {
	if len(r.Appointments) == 0 {
		return nil
	}
	return &r.Appointments[0]
}

// CreateRecurringAppointments books a series. Occurrences that conflict
// are skipped and reported; the rest of the series is still booked.
func (s *Service) CreateRecurringAppointments(ctx context.Context, req RecurringRequest) (RecurringResult, error) {
	ctx, span := s.tracer.Start(ctx, "scheduling.CreateRecurringAppointments", trace.WithAttributes(
		attribute.String("clinic.id", req.ClinicID),
		attribute.String("recurrence.frequency", string(req.Frequency)),
	))
	defer span.End()

	if err := validateRecurrence(req); err != nil {
		return RecurringResult{}, spanError(span, err)
	}
	b, err := s.prepare(ctx, req.BookingRequest)
	if err != nil {
		return RecurringResult{}, spanError(span, err)
	}
	starts, err := planOccurrences(req.Start.In(b.loc), req.Frequency, req.EndDate, req.Occurrences, s.opts.MaxOccurrences)
	if err != nil {
		return RecurringResult{}, spanError(span, err)
	}

	var result RecurringResult
	for i, start := range starts {
		id := uuid.NewString()
		groupID := id
		if anchor := result.Anchor(); anchor != nil {
			groupID = anchor.ID
		}

		appt, err := s.book(ctx, b, start, req.Frequency, groupID, id)
		if err != nil {
			if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrValidation) {
				// Infrastructure failure: stop, keep what was committed.
				if anchor := result.Anchor(); anchor != nil {
					s.notifyConfirmation(ctx, b, *anchor)
				}
				return result, spanError(span, err)
			}
			result.Skipped = append(result.Skipped, SkippedOccurrence{Index: i, Start: start, Err: err})
			s.metrics.skipped.Add(ctx, 1)
			s.logger.Info("recurring occurrence skipped", "index", i, "start", start, "err", err)
			continue
		}
		result.Appointments = append(result.Appointments, appt)
	}

	span.SetAttributes(
		attribute.Int("recurrence.planned", len(starts)),
		attribute.Int("recurrence.created", len(result.Appointments)),
	)
	anchor := result.Anchor()
	if anchor == nil {
		return result, spanError(span, &BusinessRuleError{
			Rule:   RuleNoOccurrences,
			Detail: fmt.Sprintf("all %d planned occurrences failed", len(starts)),
		})
	}

	s.logger.Info("recurring appointments booked",
		"group_id", anchor.ID,
		"frequency", req.Frequency,
		"created", len(result.Appointments),
		"skipped", len(result.Skipped),
	)
	s.notifyConfirmation(ctx, b, *anchor)
	return result, nil
}

func validateRecurrence(req RecurringRequest) error {
	if !req.Frequency.Valid() || req.Frequency == model.RecurrenceNone {
		return invalid("frequency must be WEEKLY, BIWEEKLY or MONTHLY")
	}
	if req.Occurrences < 0 {
		return invalid("occurrence count must be positive")
	}
	hasEnd, hasCount := req.EndDate != nil, req.Occurrences > 0
	if hasEnd == hasCount {
		return invalid("exactly one of end date and occurrence count is required")
	}
	if hasEnd && civilDate(*req.EndDate).Before(civilDate(req.Start)) {
		return invalid("end date is before the first occurrence")
	}
	return nil
}

// planOccurrences lists start times stepping from first. Count-driven plans
// are capped by limit; date-driven plans fail if they would exceed it.
func planOccurrences(first time.Time, freq model.Recurrence, until *time.Time, count, limit int) ([]time.Time, error) {
	if count > limit {
		return nil, invalid("at most %d occurrences may be booked at once (requested %d)", limit, count)
	}

	var starts []time.Time
	for i := 0; ; i++ {
		if count > 0 && i == count {
			return starts, nil
		}
		next := occurrence(first, freq, i)
		if until != nil && civilDate(next).After(civilDate(*until)) {
			return starts, nil
		}
		if len(starts) == limit {
			return nil, invalid("date range yields more than %d occurrences", limit)
		}
		starts = append(starts, next)
	}
}

// occurrence returns the i-th start of the series. Monthly steps are
// anchored on first and clamp to the last day of short months, so Jan 31
// yields Feb 28, Mar 31, Apr 30.
func occurrence(first time.Time, freq model.Recurrence, i int) time.Time {
	switch freq {
	case model.RecurrenceWeekly:
		return first.AddDate(0, 0, 7*i)
	case model.RecurrenceBiweekly:
		return first.AddDate(0, 0, 14*i)
	case model.RecurrenceMonthly:
		y, m, d := first.Date()
		target := time.Date(y, m+time.Month(i), 1, 0, 0, 0, 0, first.Location())
		if last := daysIn(target.Year(), target.Month()); d > last {
			d = last
		}
		return time.Date(target.Year(), target.Month(), d,
			first.Hour(), first.Minute(), first.Second(), first.Nanosecond(), first.Location())
	}
	return first
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// civilDate truncates t to midnight UTC of its calendar date in its own
// location, for date-only comparisons.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
