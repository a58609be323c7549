package main

import (
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
)

func TestLoadSettingsDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "GRPC_PORT", "SMTP_PORT", "SMTP_SSL", "WHATSAPP_API_URL", "DELIVERY_MAX_ATTEMPTS"} {
		t.Setenv(k, "")
	}
	t.Setenv("DATABASE_URL", "postgres://localhost/notify")
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	t.Setenv("SMTP_FROM", "agenda@clinic.example")

	s, err := LoadSettings(config.FromEnv())
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if s.HTTPPort != "8081" || s.SMTP.Port != 1025 || s.SMTP.From != "agenda@clinic.example" || s.SMTP.SSL {
		t.Fatalf("unexpected settings %+v", s)
	}
	if s.MaxAttempts != 5 || s.RetryBackoff != time.Second {
		t.Fatalf("unexpected retry settings %d %s", s.MaxAttempts, s.RetryBackoff)
	}
}

func TestLoadSettingsRequiresInfrastructure(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "KAFKA_BROKERS", "WHATSAPP_INSTANCE", "PORT", "GRPC_PORT"} {
		t.Setenv(k, "")
	}
	t.Setenv("WHATSAPP_API_URL", "http://evolution:8080")
	t.Setenv("SMTP_SSL", "maybe")

	_, err := LoadSettings(config.FromEnv())
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"DATABASE_URL", "KAFKA_BROKERS", "WHATSAPP_INSTANCE", "SMTP_SSL"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err)
		}
	}
}
