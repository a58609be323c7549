package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type Type string

const (
	TypeConfirmation      Type = "CONFIRMATION"
	TypeCanceledByClinic  Type = "CANCELED_BY_CLINIC"
	TypeCanceledByPatient Type = "CANCELED_BY_PATIENT"
)

func (t Type) Valid() bool {
	switch t {
	case TypeConfirmation, TypeCanceledByClinic, TypeCanceledByPatient:
		return true
	}
	return false
}

// Topic matches the topic the scheduling service publishes type t on.
func (t Type) Topic() string {
	return "scheduling.notification." + strings.ToLower(string(t)) + ".v1"
}

// Topics lists every topic this service consumes.
func Topics() []string {
	return []string{TypeConfirmation.Topic(), TypeCanceledByClinic.Topic(), TypeCanceledByPatient.Topic()}
}

// Render context keys set by the scheduling service.
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

type Event struct {
	ID              string            `json:"event_id"`
	Type            Type              `json:"type"`
	AppointmentID   string            `json:"appointment_id"`
	RecipientUserID string            `json:"recipient_user_id"`
	RenderContext   map[string]string `json:"render_context"`
	OccurredAt      time.Time         `json:"occurred_at"`
}

func (e Event) Get(key string) string {
	return strings.TrimSpace(e.RenderContext[key])
}

// ErrMalformed marks a message that can never be processed. Consumers
// drop it instead of retrying.
var ErrMalformed = errors.New("malformed notification event")

// Decode parses msg. Header metadata fills fields the payload omits.
func Decode(msg kafka.Message) (Event, error) {
	var evt Event
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if evt.ID == "" {
		evt.ID = meta.EventID
	}
	if evt.Type == "" {
		evt.Type = Type(meta.EventType)
	}
	switch {
	case evt.ID == "":
		return Event{}, fmt.Errorf("%w: missing event id", ErrMalformed)
	case !evt.Type.Valid():
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, evt.Type)
	case evt.AppointmentID == "" || evt.RecipientUserID == "":
		return Event{}, fmt.Errorf("%w: appointment and recipient are required", ErrMalformed)
	}
	if evt.RenderContext == nil {
		evt.RenderContext = map[string]string{}
	}
	return evt, nil
}
