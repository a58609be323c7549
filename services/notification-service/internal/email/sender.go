package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
	ProviderID() string
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	SSL      bool
	Timeout  time.Duration
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends HTML mail through gomail. Unauthenticated relays such
// as Mailpit work with an empty Username.
type SMTPSender struct {
	from    string
	timeout time.Duration
	dialer  dialer
}

func NewSMTPSender(cfg Config) *SMTPSender {
	d := gomail.NewDialer(strings.TrimSpace(cfg.Host), cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.SSL
	return newSender(cfg, d)
}

func newSender(cfg Config, d dialer) *SMTPSender {
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "no-reply@clinicbook.local"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMTPSender{from: from, timeout: timeout, dialer: d}
}

func (s *SMTPSender) ProviderID() string {
	return "smtp"
}

// Send gives up when ctx ends or the configured timeout passes, whichever
// is first. gomail has no context support, so the dial may outlive the call.
func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("email recipient is empty")
	}
	m := gomail.NewMessage(gomail.SetCharset("UTF-8"))
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return context.DeadlineExceeded
	}
}
