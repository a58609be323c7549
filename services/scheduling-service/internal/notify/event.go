package notify

import (
	"context"
	"strings"
	"time"
)

type Type string

const (
	TypeConfirmation      Type = "CONFIRMATION"
	TypeCanceledByClinic  Type = "CANCELED_BY_CLINIC"
	TypeCanceledByPatient Type = "CANCELED_BY_PATIENT"
)

// Types lists every event type, in topic subscription order.
func Types() []Type {
	return []Type{TypeConfirmation, TypeCanceledByClinic, TypeCanceledByPatient}
}

// Topic is the Kafka topic carrying events of type t.
func (t Type) Topic() string {
	return "scheduling.notification." + strings.ToLower(string(t)) + ".v1"
}

// Render context keys.
const (
	KeyRecipientName    = "recipient_name"
	KeyRecipientEmail   = "recipient_email"
	KeyRecipientPhone   = "recipient_phone"
	KeyPatientName      = "patient_name"
	KeyProfessionalName = "professional_name"
	KeyClinicName       = "clinic_name"
	KeyClinicAddress    = "clinic_address"
	KeyStartTime        = "start_time"
	KeyProcedureName    = "procedure_name"
	KeyReason           = "reason"
)

// StartTimeLayout formats KeyStartTime in the clinic's timezone.
const StartTimeLayout = "02/01/2006 15:04"

// Event asks the notification collaborator to tell one user about an
// appointment change. RenderContext holds everything needed to render the
// message without calling back into scheduling.
type Event struct {
	ID              string            `json:"event_id"`
	Type            Type              `json:"type"`
	AppointmentID   string            `json:"appointment_id"`
	RecipientUserID string            `json:"recipient_user_id"`
	RenderContext   map[string]string `json:"render_context"`
	OccurredAt      time.Time         `json:"occurred_at"`
}

// Emitter hands an event off for delivery. It never blocks on delivery and
// reports nothing back.
type Emitter interface {
	Emit(ctx context.Context, evt Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(context.Context, Event) {}
