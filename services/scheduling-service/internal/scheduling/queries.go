package scheduling

import (
	"context"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

// GetAppointment returns one appointment if actorID may read it.
func (s *Service) GetAppointment(ctx context.Context, id, actorID string) (model.Appointment, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(actorID) == "" {
		return model.Appointment{}, invalid("appointment id and actor are required")
	}
	appt, err := s.findAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	actor, err := s.findUser(ctx, actorID)
	if err != nil {
		return model.Appointment{}, err
	}
	if !mayRead(actor, appt) {
		return model.Appointment{}, &AuthorizationError{ActorID: actor.ID, Action: "read appointment " + appt.ID}
	}
	return appt, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID, actorID string) ([]model.Appointment, error) {
	if strings.TrimSpace(patientID) == "" || strings.TrimSpace(actorID) == "" {
		return nil, invalid("patient id and actor are required")
	}
	actor, err := s.findUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := mayListParty(actor, patientID, "list appointments of patient "+patientID); err != nil {
		return nil, err
	}
	list, err := call(ctx, s, "list by patient", func(ctx context.Context) ([]model.Appointment, error) {
		return s.store.ListByPatient(ctx, patientID)
	})
	if err != nil {
		return nil, err
	}
	return readable(actor, list), nil
}

func (s *Service) ListByProfessional(ctx context.Context, professionalID, actorID string) ([]model.Appointment, error) {
	if strings.TrimSpace(professionalID) == "" || strings.TrimSpace(actorID) == "" {
		return nil, invalid("professional id and actor are required")
	}
	actor, err := s.findUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := mayListParty(actor, professionalID, "list appointments of professional "+professionalID); err != nil {
		return nil, err
	}
	list, err := call(ctx, s, "list by professional", func(ctx context.Context) ([]model.Appointment, error) {
		return s.store.ListByProfessional(ctx, professionalID)
	})
	if err != nil {
		return nil, err
	}
	return readable(actor, list), nil
}

// ListByClinicAndDateRange returns the clinic's appointments starting in
// [from, to). Only admins and the clinic's staff may read the agenda.
func (s *Service) ListByClinicAndDateRange(ctx context.Context, clinicID, actorID string, from, to time.Time) ([]model.Appointment, error) {
	if strings.TrimSpace(clinicID) == "" || strings.TrimSpace(actorID) == "" {
		return nil, invalid("clinic id and actor are required")
	}
	if !to.After(from) {
		return nil, invalid("range end must be after range start")
	}
	actor, err := s.findUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !mayReadAgenda(actor, clinicID) {
		return nil, &AuthorizationError{ActorID: actor.ID, Action: "read agenda of clinic " + clinicID}
	}
	return call(ctx, s, "list by clinic", func(ctx context.Context) ([]model.Appointment, error) {
		return s.store.ListByClinic(ctx, clinicID, from, to)
	})
}

type SlotQuery struct {
	ProfessionalID string
	ProcedureID    string
	From           time.Time
	To             time.Time
	// Step between candidate starts; defaults to 15 minutes.
	Step time.Duration
}

type Slot struct {
	Start time.Time
	End   time.Time
}

// FreeSlots lists start times in [From, To) where the professional could
// take a booking of the resolved duration. The patient side is not checked.
func (s *Service) FreeSlots(ctx context.Context, q SlotQuery) ([]Slot, error) {
	if strings.TrimSpace(q.ProfessionalID) == "" {
		return nil, invalid("professional id is required")
	}
	if !q.To.After(q.From) {
		return nil, invalid("range end must be after range start")
	}
	if q.To.Sub(q.From) > maxSlotWindow {
		return nil, invalid("slot search is limited to %s", maxSlotWindow)
	}
	if q.Step <= 0 {
		q.Step = defaultSlotStep
	}

	professional, err := s.findUser(ctx, q.ProfessionalID)
	if err != nil {
		return nil, err
	}
	if professional.Role != model.RoleProfessional || !professional.Active {
		return nil, invalid("user %s is not an active professional", professional.ID)
	}
	duration, _, err := s.resolveDuration(ctx, professional.ClinicID, professional, q.ProcedureID)
	if err != nil {
		return nil, err
	}

	window := availability.Interval{Start: q.From, End: q.To}
	existing, err := call(ctx, s, "list busy", func(ctx context.Context) ([]model.Appointment, error) {
		return s.store.Overlapping(ctx, availability.Query{
			Party:   availability.PartyProfessional,
			PartyID: professional.ID,
			Window:  window,
		})
	})
	if err != nil {
		return nil, err
	}
	busy := make([]availability.Interval, 0, len(existing))
	for _, a := range existing {
		if a.Status.Blocking() {
			busy = append(busy, availability.Of(a))
		}
	}

	starts := availability.AvailableSlots(q.From, q.To, duration, q.Step, busy, s.now())
	slots := make([]Slot, 0, len(starts))
	for _, st := range starts {
		slots = append(slots, Slot{Start: st, End: st.Add(duration)})
	}
	return slots, nil
}
