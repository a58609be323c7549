package event

import (
	"errors"
	"testing"

	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

func TestTopicsMatchPublisher(t *testing.T) {
	want := []string{
		"scheduling.notification.confirmation.v1",
		"scheduling.notification.canceled_by_clinic.v1",
		"scheduling.notification.canceled_by_patient.v1",
	}
	got := Topics()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("topic %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestDecode(t *testing.T) {
	msg := kafka.Message{
		Topic:   TypeConfirmation.Topic(),
		Value:   []byte(`{"type":"CONFIRMATION","appointment_id":"a1","recipient_user_id":"u1","render_context":{"start_time":"03/03/2026 10:00"}}`),
		Headers: kafkax.EventMeta{EventID: "evt-1", EventType: "CONFIRMATION"}.Headers(),
	}
	evt, err := Decode(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.ID != "evt-1" || evt.Get(KeyStartTime) != "03/03/2026 10:00" {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestDecodeRejects(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"unknown type":   `{"event_id":"e","type":"REMINDER","appointment_id":"a","recipient_user_id":"u"}`,
		"no recipient":   `{"event_id":"e","type":"CONFIRMATION","appointment_id":"a"}`,
		"no appointment": `{"event_id":"e","type":"CONFIRMATION","recipient_user_id":"u"}`,
	}
	for name, body := range cases {
		if _, err := Decode(kafka.Message{Value: []byte(body)}); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}
