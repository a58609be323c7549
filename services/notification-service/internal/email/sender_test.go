package email

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/gomail.v2"
)

type captureDialer struct {
	raw   string
	err   error
	block chan struct{}
}

func (d *captureDialer) DialAndSend(msgs ...*gomail.Message) error {
	if d.block != nil {
		<-d.block
	}
	var buf bytes.Buffer
	for _, m := range msgs {
		if _, err := m.WriteTo(&buf); err != nil {
			return err
		}
	}
	d.raw = buf.String()
	return d.err
}

func TestSendBuildsHTMLMessage(t *testing.T) {
	d := &captureDialer{}
	s := newSender(Config{From: "agenda@clinic.example"}, d)
	if err := s.Send(context.Background(), "ana@example.com", "Appointment confirmed", "<p>Hi</p>"); err != nil {
		t.Fatalf("send: %v", err)
	}
	for _, want := range []string{"From: agenda@clinic.example", "To: ana@example.com", "Subject: Appointment confirmed", "text/html", "<p>Hi</p>"} {
		if !strings.Contains(d.raw, want) {
			t.Fatalf("message missing %q:\n%s", want, d.raw)
		}
	}
}

func TestSendDefaultsAndErrors(t *testing.T) {
	d := &captureDialer{err: errors.New("relay refused")}
	s := newSender(Config{}, d)
	if s.from != "no-reply@clinicbook.local" {
		t.Fatalf("unexpected default from %q", s.from)
	}
	if err := s.Send(context.Background(), "ana@example.com", "s", "b"); err == nil || !strings.Contains(err.Error(), "relay refused") {
		t.Fatalf("expected relay error, got %v", err)
	}
	if err := s.Send(context.Background(), " ", "s", "b"); err == nil {
		t.Fatalf("expected error for empty recipient")
	}
}

func TestSendTimesOut(t *testing.T) {
	d := &captureDialer{block: make(chan struct{})}
	defer close(d.block)
	s := newSender(Config{Timeout: 20 * time.Millisecond}, d)
	if err := s.Send(context.Background(), "ana@example.com", "s", "b"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}
