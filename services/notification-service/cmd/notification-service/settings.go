package main

import (
	"errors"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/email"
)

type Settings struct {
	ServiceName string
	HTTPPort    string
	GRPCPort    string
	Log         runtime.LogOptions

	DatabaseURL string
	DBMaxConns  int

	KafkaBrokers    string
	KafkaGroupID    string
	MaxAttempts     int
	RetryBackoff    time.Duration
	ShutdownTimeout time.Duration

	SMTP email.Config

	WhatsAppURL      string
	WhatsAppInstance string
	WhatsAppAPIKey   string
}

func LoadSettings(src *config.Source) (Settings, error) {
	var errs []error
	integer := func(key string, fallback int) int {
		n, err := src.Int(key, fallback)
		errs = append(errs, err)
		return n
	}
	duration := func(key string, fallback time.Duration) time.Duration {
		d, err := src.Duration(key, fallback)
		errs = append(errs, err)
		return d
	}

	ssl, err := src.Bool("SMTP_SSL", false)
	errs = append(errs, err)

	s := Settings{
		ServiceName: src.String("SERVICE_NAME", "notification-service"),
		Log: runtime.LogOptions{
			Level:      src.String("LOG_LEVEL", "info"),
			File:       src.String("LOG_FILE", ""),
			MaxSizeMB:  integer("LOG_MAX_SIZE_MB", 100),
			MaxBackups: integer("LOG_MAX_BACKUPS", 3),
		},
		DatabaseURL:     src.String("DATABASE_URL", ""),
		DBMaxConns:      integer("DB_MAX_CONNS", 5),
		KafkaBrokers:    src.String("KAFKA_BROKERS", ""),
		KafkaGroupID:    src.String("KAFKA_GROUP_ID", "notification-service"),
		MaxAttempts:     integer("DELIVERY_MAX_ATTEMPTS", 5),
		RetryBackoff:    duration("DELIVERY_RETRY_BACKOFF", time.Second),
		ShutdownTimeout: duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		SMTP: email.Config{
			Host:     src.String("SMTP_HOST", "localhost"),
			Port:     integer("SMTP_PORT", 1025),
			Username: src.String("SMTP_USERNAME", ""),
			Password: src.String("SMTP_PASSWORD", ""),
			From:     src.String("SMTP_FROM", ""),
			SSL:      ssl,
			Timeout:  duration("SMTP_TIMEOUT", 10*time.Second),
		},
		WhatsAppURL:      src.String("WHATSAPP_API_URL", ""),
		WhatsAppInstance: src.String("WHATSAPP_INSTANCE", ""),
		WhatsAppAPIKey:   src.String("WHATSAPP_API_KEY", ""),
	}

	if s.HTTPPort, err = src.Port("PORT", "8081"); err != nil {
		errs = append(errs, err)
	}
	if s.GRPCPort, err = src.Port("GRPC_PORT", "9081"); err != nil {
		errs = append(errs, err)
	}
	if s.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if s.KafkaBrokers == "" {
		errs = append(errs, errors.New("KAFKA_BROKERS is required"))
	}
	if s.WhatsAppURL != "" && s.WhatsAppInstance == "" {
		errs = append(errs, errors.New("WHATSAPP_INSTANCE is required with WHATSAPP_API_URL"))
	}
	return s, errors.Join(errs...)
}
