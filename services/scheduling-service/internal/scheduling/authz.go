package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

// ActorKind is how a user relates to one appointment.
type ActorKind int

const (
	ActorOther ActorKind = iota
	ActorAdmin
	ActorClinicStaff
	ActorProfessional
	ActorPatient
)

func (k ActorKind) String() string {
	switch k {
	case ActorAdmin:
		return "admin"
	case ActorClinicStaff:
		return "clinic_staff"
	case ActorProfessional:
		return "professional"
	case ActorPatient:
		return "patient"
	default:
		return "other"
	}
}

// ClassifyActor places user in the first matching kind, in priority order:
// admin, staff of the appointment's clinic, its professional, its patient.
// Inactive users are always ActorOther.
func ClassifyActor(user model.User, appt model.Appointment) ActorKind {
	switch {
	case !user.Active:
		return ActorOther
	case user.Role == model.RoleAdmin:
		return ActorAdmin
	case user.Role.ClinicStaff() && user.ClinicID != "" && user.ClinicID == appt.ClinicID:
		return ActorClinicStaff
	case user.ID == appt.ProfessionalID:
		return ActorProfessional
	case user.ID == appt.PatientID:
		return ActorPatient
	}
	return ActorOther
}

type recipient int

const (
	notifyPatient recipient = iota + 1
	notifyProfessional
)

// cancelRule is one row of the cancellation matrix.
type cancelRule struct {
	outcome        model.Status
	reasonRequired bool
	noticeApplies  bool
	notify         recipient
}

// cancelPolicy is the cancellation matrix. Kinds missing from it may not
// cancel.
var cancelPolicy = map[ActorKind]cancelRule{
	ActorAdmin:        {outcome: model.StatusCanceledByClinic, reasonRequired: true, notify: notifyPatient},
	ActorClinicStaff:  {outcome: model.StatusCanceledByClinic, reasonRequired: true, notify: notifyPatient},
	ActorProfessional: {outcome: model.StatusCanceledByClinic, reasonRequired: true, notify: notifyPatient},
	ActorPatient:      {outcome: model.StatusCanceledByPatient, noticeApplies: true, notify: notifyProfessional},
}

// bookingPolicy lists who may create an appointment for someone.
var bookingPolicy = map[ActorKind]bool{
	ActorAdmin:        true,
	ActorClinicStaff:  true,
	ActorProfessional: true,
	ActorPatient:      true,
}

// readPolicy lists who may see a single appointment.
var readPolicy = map[ActorKind]bool{
	ActorAdmin:        true,
	ActorClinicStaff:  true,
	ActorProfessional: true,
	ActorPatient:      true,
}

// agendaPolicy lists who may read a clinic's whole agenda.
var agendaPolicy = map[ActorKind]bool{
	ActorAdmin:       true,
	ActorClinicStaff: true,
}

func mayRead(actor model.User, appt model.Appointment) bool {
	return readPolicy[ClassifyActor(actor, appt)]
}

func mayReadAgenda(actor model.User, clinicID string) bool {
	return agendaPolicy[ClassifyActor(actor, model.Appointment{ClinicID: clinicID})]
}

// mayListParty decides whether actor may list partyID's appointments at
// all. Admins and the party see everything; clinic staff are let through
// and see only what readable keeps.
func mayListParty(actor model.User, partyID, action string) error {
	switch {
	case !actor.Active:
	case actor.Role == model.RoleAdmin, actor.ID == partyID, actor.Role.ClinicStaff():
		return nil
	}
	return &AuthorizationError{ActorID: actor.ID, Action: action}
}

func readable(actor model.User, list []model.Appointment) []model.Appointment {
	out := make([]model.Appointment, 0, len(list))
	for _, a := range list {
		if mayRead(actor, a) {
			out = append(out, a)
		}
	}
	return out
}

type cancelDecision struct {
	actor   ActorKind
	outcome model.Status
	reason  string
	notify  recipient
}

// decideCancellation evaluates the cancellation matrix without side effects.
func decideCancellation(kind ActorKind, actorID string, appt model.Appointment, reason string, now time.Time, notice time.Duration) (cancelDecision, error) {
	if !appt.Status.Active() {
		return cancelDecision{}, &BusinessRuleError{Rule: RuleAlreadyTerminal, Detail: "status is " + string(appt.Status)}
	}
	rule, ok := cancelPolicy[kind]
	if !ok {
		return cancelDecision{}, &AuthorizationError{ActorID: actorID, Action: "cancel appointment " + appt.ID}
	}

	reason = strings.TrimSpace(reason)
	if rule.reasonRequired && reason == "" {
		return cancelDecision{}, invalid("a cancellation reason is required")
	}
	if rule.noticeApplies && !now.Before(appt.Start.Add(-notice)) {
		return cancelDecision{}, &BusinessRuleError{
			Rule:   RuleInsufficientNotice,
			Detail: fmt.Sprintf("patients must cancel at least %s before the appointment", notice),
		}
	}
	if reason == "" {
		reason = DefaultPatientReason
	}
	return cancelDecision{actor: kind, outcome: rule.outcome, reason: reason, notify: rule.notify}, nil
}

func mayBook(creator model.User, req BookingRequest) bool {
	kind := ClassifyActor(creator, model.Appointment{
		ClinicID:       req.ClinicID,
		PatientID:      req.PatientID,
		ProfessionalID: req.ProfessionalID,
	})
	return bookingPolicy[kind]
}
