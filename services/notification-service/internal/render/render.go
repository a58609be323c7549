package render

import (
	"bytes"
	"errors"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/event"
)

type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelWhatsApp Channel = "WHATSAPP"
)

// Message is one rendered notification for one channel.
type Message struct {
	Channel Channel
	To      string
	Subject string // email only
	Body    string // HTML for email, plain text for WhatsApp
}

// ErrNoChannel means the recipient has neither an email nor a phone.
var ErrNoChannel = errors.New("recipient has no email or phone")

type templates struct {
	subject string
	email   *htmltemplate.Template
	text    *texttemplate.Template
}

var byType = map[event.Type]templates{
	event.TypeConfirmation: {
		subject: "Appointment confirmed",
		email: htmltemplate.Must(htmltemplate.New("confirmation").Option("missingkey=zero").Parse(
			`<h3>Hello, {{.recipient_name}}</h3>` +
				`<p>Your appointment with {{.professional_name}} is confirmed for <b>{{.start_time}}</b>.</p>` +
				`{{if .procedure_name}}<p>Procedure: {{.procedure_name}}</p>{{end}}` +
				`<p>Clinic: {{.clinic_name}}</p>` +
				`{{if .clinic_address}}<p>Address: {{.clinic_address}}</p>{{end}}` +
				`<p>If you have any questions, please contact us.</p>`)),
		text: texttemplate.Must(texttemplate.New("confirmation").Option("missingkey=zero").Parse(
			`Hello {{.recipient_name}}, your appointment at {{.clinic_name}} with {{.professional_name}} is confirmed for {{.start_time}}.`)),
	},
	event.TypeCanceledByPatient: {
		subject: "Appointment canceled",
		email: htmltemplate.Must(htmltemplate.New("canceled_by_patient").Option("missingkey=zero").Parse(
			`<h3>Hello, {{.recipient_name}}</h3>` +
				`<p>Patient {{.patient_name}} canceled the appointment scheduled for <b>{{.start_time}}</b>.</p>` +
				`<p><b>Reason:</b> {{.reason}}</p>`)),
		text: texttemplate.Must(texttemplate.New("canceled_by_patient").Option("missingkey=zero").Parse(
			`Attention {{.recipient_name}}: patient {{.patient_name}} canceled the appointment on {{.start_time}}. Reason: {{.reason}}`)),
	},
	event.TypeCanceledByClinic: {
		subject: "Appointment canceled",
		email: htmltemplate.Must(htmltemplate.New("canceled_by_clinic").Option("missingkey=zero").Parse(
			`<h3>Hello, {{.recipient_name}}</h3>` +
				`<p>Your appointment on <b>{{.start_time}}</b> with {{.professional_name}} was canceled by the clinic.</p>` +
				`<p><b>Reason:</b> {{.reason}}</p>` +
				`<p>Please contact us to reschedule.</p>`)),
		text: texttemplate.Must(texttemplate.New("canceled_by_clinic").Option("missingkey=zero").Parse(
			`Hello {{.recipient_name}}, your appointment at {{.clinic_name}} on {{.start_time}} was canceled. Reason: {{.reason}}. Please contact us to reschedule.`)),
	},
}

// Render produces an email when the recipient has an address and a
// WhatsApp message when they have a phone.
func Render(evt event.Event) ([]Message, error) {
	tpl, ok := byType[evt.Type]
	if !ok {
		return nil, errors.New("no template for " + string(evt.Type))
	}
	data := make(map[string]string, len(evt.RenderContext))
	for k, v := range evt.RenderContext {
		data[k] = strings.TrimSpace(v)
	}

	var out []Message
	if to := data[event.KeyRecipientEmail]; to != "" {
		var buf bytes.Buffer
		if err := tpl.email.Execute(&buf, data); err != nil {
			return nil, err
		}
		subject := tpl.subject
		if clinic := data[event.KeyClinicName]; clinic != "" {
			subject += " - " + clinic
		}
		out = append(out, Message{Channel: ChannelEmail, To: to, Subject: subject, Body: buf.String()})
	}
	if to := data[event.KeyRecipientPhone]; to != "" {
		var buf bytes.Buffer
		if err := tpl.text.Execute(&buf, data); err != nil {
			return nil, err
		}
		out = append(out, Message{Channel: ChannelWhatsApp, To: to, Body: buf.String()})
	}
	if len(out) == 0 {
		return nil, ErrNoChannel
	}
	return out, nil
}
