package scheduling

import (
	"context"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/notify"
)

type renderInput struct {
	appt         model.Appointment
	clinic       model.Clinic
	patient      model.User
	professional model.User
	procedure    *model.Procedure
	recipient    model.User
	reason       string
}

func renderContext(in renderInput) map[string]string {
	rc := map[string]string{
		notify.KeyRecipientName:    in.recipient.Name,
		notify.KeyRecipientEmail:   in.recipient.Email,
		notify.KeyRecipientPhone:   in.recipient.Phone,
		notify.KeyPatientName:      in.patient.Name,
		notify.KeyProfessionalName: in.professional.Name,
		notify.KeyClinicName:       in.clinic.Name,
		notify.KeyClinicAddress:    in.clinic.Address.String(),
		notify.KeyStartTime:        in.appt.Start.In(clinicLocation(in.clinic)).Format(notify.StartTimeLayout),
	}
	if in.procedure != nil {
		rc[notify.KeyProcedureName] = in.procedure.Name
	}
	if in.reason != "" {
		rc[notify.KeyReason] = in.reason
	}
	return rc
}

func (s *Service) emit(ctx context.Context, typ notify.Type, in renderInput) {
	s.notifier.Emit(ctx, notify.Event{
		ID:              uuid.NewString(),
		Type:            typ,
		AppointmentID:   in.appt.ID,
		RecipientUserID: in.recipient.ID,
		RenderContext:   renderContext(in),
		OccurredAt:      s.now().UTC(),
	})
}

func (s *Service) notifyConfirmation(ctx context.Context, b *booking, appt model.Appointment) {
	s.emit(ctx, notify.TypeConfirmation, renderInput{
		appt:         appt,
		clinic:       b.clinic,
		patient:      b.patient,
		professional: b.professional,
		procedure:    b.procedure,
		recipient:    b.patient,
	})
}

// notifyCancellation runs after commit. Lookup failures only cost the
// notification.
func (s *Service) notifyCancellation(ctx context.Context, appt model.Appointment, d cancelDecision) {
	in := renderInput{appt: appt, reason: d.reason}
	var err error
	if in.clinic, err = call(ctx, s, "find clinic", func(ctx context.Context) (model.Clinic, error) {
		return s.dir.FindClinic(ctx, appt.ClinicID)
	}); err != nil {
		s.logger.Warn("cancellation notification skipped", "appointment_id", appt.ID, "err", err)
		return
	}
	if in.patient, err = s.findUser(ctx, appt.PatientID); err != nil {
		s.logger.Warn("cancellation notification skipped", "appointment_id", appt.ID, "err", err)
		return
	}
	if in.professional, err = s.findUser(ctx, appt.ProfessionalID); err != nil {
		s.logger.Warn("cancellation notification skipped", "appointment_id", appt.ID, "err", err)
		return
	}
	if appt.ProcedureID != "" {
		proc, err := call(ctx, s, "find procedure", func(ctx context.Context) (model.Procedure, error) {
			return s.dir.FindProcedure(ctx, appt.ProcedureID)
		})
		if err == nil {
			in.procedure = &proc
		}
	}

	typ := notify.TypeCanceledByClinic
	in.recipient = in.patient
	if d.notify == notifyProfessional {
		typ = notify.TypeCanceledByPatient
		in.recipient = in.professional
	}
	s.emit(ctx, typ, in)
}
