package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type BookingRequest struct {
	ClinicID       string
	CreatorID      string
	PatientID      string
	ProfessionalID string
	ProcedureID    string // optional
	Start          time.Time
	Observations   string
}

// booking holds the entities resolved and validated once per request.
type booking struct {
	req          BookingRequest
	clinic       model.Clinic
	patient      model.User
	professional model.User
	procedure    *model.Procedure
	duration     time.Duration
	loc          *time.Location
}

// CreateAppointment books a single appointment and sends the patient a
// confirmation.
func (s *Service) CreateAppointment(ctx context.Context, req BookingRequest) (model.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "scheduling.CreateAppointment", trace.WithAttributes(
		attribute.String("clinic.id", req.ClinicID),
		attribute.String("professional.id", req.ProfessionalID),
	))
	defer span.End()

	b, err := s.prepare(ctx, req)
	if err != nil {
		return model.Appointment{}, spanError(span, err)
	}
	appt, err := s.book(ctx, b, b.req.Start, model.RecurrenceNone, "", uuid.NewString())
	if err != nil {
		return model.Appointment{}, spanError(span, err)
	}

	s.logger.Info("appointment booked", "appointment_id", appt.ID, "clinic_id", appt.ClinicID,
		"professional_id", appt.ProfessionalID, "start", appt.Start)
	s.notifyConfirmation(ctx, b, appt)
	return appt, nil
}

// prepare resolves and validates everything a booking needs before any
// slot is checked.
func (s *Service) prepare(ctx context.Context, req BookingRequest) (*booking, error) {
	req.Observations = strings.TrimSpace(req.Observations)
	switch {
	case req.ClinicID == "":
		return nil, invalid("clinic_id is required")
	case req.CreatorID == "":
		return nil, invalid("creator is required")
	case req.PatientID == "":
		return nil, invalid("patient_id is required")
	case req.ProfessionalID == "":
		return nil, invalid("professional_id is required")
	case req.Start.IsZero():
		return nil, invalid("start is required")
	}

	clinic, err := call(ctx, s, "find clinic", func(ctx context.Context) (model.Clinic, error) {
		return s.dir.FindClinic(ctx, req.ClinicID)
	})
	if err != nil {
		return nil, err
	}
	creator, err := s.findUser(ctx, req.CreatorID)
	if err != nil {
		return nil, err
	}
	patient, err := s.findUser(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	professional, err := s.findUser(ctx, req.ProfessionalID)
	if err != nil {
		return nil, err
	}

	if !clinic.Active {
		return nil, invalid("clinic %s is inactive", clinic.ID)
	}
	if patient.Role != model.RolePatient || !patient.Active {
		return nil, invalid("user %s is not an active patient", patient.ID)
	}
	if professional.Role != model.RoleProfessional || !professional.Active {
		return nil, invalid("user %s is not an active professional", professional.ID)
	}
	if professional.ClinicID != clinic.ID {
		return nil, invalid("professional %s does not work at clinic %s", professional.ID, clinic.ID)
	}
	if !req.Start.After(s.now()) {
		return nil, invalid("start must be in the future")
	}
	if !mayBook(creator, req) {
		return nil, &AuthorizationError{ActorID: creator.ID, Action: "book for patient " + patient.ID}
	}

	duration, procedure, err := s.resolveDuration(ctx, clinic.ID, professional, req.ProcedureID)
	if err != nil {
		return nil, err
	}

	return &booking{
		req:          req,
		clinic:       clinic,
		patient:      patient,
		professional: professional,
		procedure:    procedure,
		duration:     duration,
		loc:          clinicLocation(clinic),
	}, nil
}

// resolveDuration picks the procedure's duration, then the professional's
// default, then the service-wide default.
func (s *Service) resolveDuration(ctx context.Context, clinicID string, professional model.User, procedureID string) (time.Duration, *model.Procedure, error) {
	if procedureID != "" {
		proc, err := call(ctx, s, "find procedure", func(ctx context.Context) (model.Procedure, error) {
			return s.dir.FindProcedure(ctx, procedureID)
		})
		if err != nil {
			return 0, nil, err
		}
		if proc.ClinicID != clinicID {
			return 0, nil, invalid("procedure %s does not belong to clinic %s", proc.ID, clinicID)
		}
		if !proc.Active {
			return 0, nil, invalid("procedure %s is inactive", proc.ID)
		}
		if proc.DurationMinutes > 0 {
			return time.Duration(proc.DurationMinutes) * time.Minute, &proc, nil
		}
		return s.professionalDuration(professional), &proc, nil
	}
	return s.professionalDuration(professional), nil, nil
}

func (s *Service) professionalDuration(professional model.User) time.Duration {
	if professional.DefaultDurationMinutes > 0 {
		return time.Duration(professional.DefaultDurationMinutes) * time.Minute
	}
	return s.opts.DefaultDuration
}

// book checks both schedules and inserts one appointment inside a single
// unit of work locked on the professional and the patient.
func (s *Service) book(ctx context.Context, b *booking, start time.Time, rec model.Recurrence, groupID, id string) (model.Appointment, error) {
	appt := model.Appointment{
		ID:                id,
		ClinicID:          b.clinic.ID,
		PatientID:         b.patient.ID,
		ProfessionalID:    b.professional.ID,
		Start:             start,
		End:               start.Add(b.duration),
		Status:            model.StatusScheduled,
		Observations:      b.req.Observations,
		Recurrence:        rec,
		RecurrenceGroupID: groupID,
		CreatedBy:         b.req.CreatorID,
	}
	if b.procedure != nil {
		appt.ProcedureID = b.procedure.ID
	}

	locks := []LockKey{
		{Party: availability.PartyProfessional, ID: appt.ProfessionalID},
		{Party: availability.PartyPatient, ID: appt.PatientID},
	}
	var saved model.Appointment
	err := s.inTx(ctx, "book appointment", locks, func(ctx context.Context, tx Tx) error {
		conflict, err := availability.Check(ctx, tx, availability.Candidate{
			ProfessionalID: appt.ProfessionalID,
			PatientID:      appt.PatientID,
			Interval:       availability.Of(appt),
		})
		if err != nil {
			return err
		}
		if conflict.Found() {
			return &ConflictError{Conflict: conflict}
		}
		saved, err = tx.Insert(ctx, appt)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.metrics.conflicts.Add(ctx, 1)
		}
		return model.Appointment{}, err
	}
	s.metrics.booked.Add(ctx, 1)
	return saved, nil
}

func (s *Service) findUser(ctx context.Context, id string) (model.User, error) {
	return call(ctx, s, "find user", func(ctx context.Context) (model.User, error) {
		return s.dir.FindUser(ctx, id)
	})
}

func (s *Service) findAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return call(ctx, s, "find appointment", func(ctx context.Context) (model.Appointment, error) {
		return s.store.FindAppointment(ctx, id)
	})
}

func clinicLocation(c model.Clinic) *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func spanError(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
