package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/scheduling"
)

const (
	driverPostgres = "postgres"
	driverMemory   = "memory"
)

type Settings struct {
	ServiceName string
	HTTPPort    string
	GRPCPort    string
	Log         runtime.LogOptions

	StoreDriver string
	DatabaseURL string
	DBMaxConns  int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	KafkaBrokers string

	JWTSecret string
	JWTIssuer string

	Scheduling scheduling.Options

	RateLimit       int
	RateLimitWindow time.Duration
	CORS            httpx.CORSPolicy
	BodyLimitBytes  int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// LoadSettings reads every setting and reports all invalid ones at once.
func LoadSettings(src *config.Source) (Settings, error) {
	var errs []error
	duration := func(key string, fallback time.Duration) time.Duration {
		d, err := src.Duration(key, fallback)
		errs = append(errs, err)
		return d
	}
	integer := func(key string, fallback int) int {
		n, err := src.Int(key, fallback)
		errs = append(errs, err)
		return n
	}

	s := Settings{
		ServiceName: src.String("SERVICE_NAME", "scheduling-service"),
		Log: runtime.LogOptions{
			Level:      src.String("LOG_LEVEL", "info"),
			File:       src.String("LOG_FILE", ""),
			MaxSizeMB:  integer("LOG_MAX_SIZE_MB", 100),
			MaxBackups: integer("LOG_MAX_BACKUPS", 3),
		},
		StoreDriver:   strings.ToLower(src.String("STORE_DRIVER", driverPostgres)),
		DatabaseURL:   src.String("DATABASE_URL", ""),
		DBMaxConns:    integer("DB_MAX_CONNS", 10),
		RedisAddr:     src.String("REDIS_ADDR", ""),
		RedisPassword: src.String("REDIS_PASSWORD", ""),
		RedisDB:       integer("REDIS_DB", 0),
		CacheTTL:      duration("DIRECTORY_CACHE_TTL", 30*time.Second),
		KafkaBrokers:  src.String("KAFKA_BROKERS", ""),
		JWTSecret:     src.String("JWT_SECRET", ""),
		JWTIssuer:     src.String("JWT_ISSUER", "clinicbook"),
		Scheduling: scheduling.Options{
			NoticeWindow:    duration("CANCELLATION_NOTICE", scheduling.DefaultNoticeWindow),
			DefaultDuration: duration("DEFAULT_APPOINTMENT_DURATION", scheduling.DefaultDuration),
			MaxOccurrences:  integer("MAX_RECURRING_OCCURRENCES", scheduling.DefaultMaxOccurrences),
			CallTimeout:     duration("CALL_TIMEOUT", scheduling.DefaultCallTimeout),
		},
		RateLimit:       integer("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow: duration("RATE_LIMIT_WINDOW", time.Minute),
		CORS: httpx.CORSPolicy{
			AllowedOrigins: src.List("CORS_ALLOWED_ORIGINS"),
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		},
		BodyLimitBytes:  integer("HTTP_BODY_LIMIT_BYTES", 1<<20),
		RequestTimeout:  duration("HTTP_REQUEST_TIMEOUT", 15*time.Second),
		ShutdownTimeout: duration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	var err error
	if s.HTTPPort, err = src.Port("PORT", "8080"); err != nil {
		errs = append(errs, err)
	}
	if s.GRPCPort, err = src.Port("GRPC_PORT", "9080"); err != nil {
		errs = append(errs, err)
	}

	switch s.StoreDriver {
	case driverPostgres:
		if s.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required with STORE_DRIVER=postgres"))
		}
	case driverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %s or %s (got %q)", driverPostgres, driverMemory, s.StoreDriver))
	}
	if n := s.Scheduling.MaxOccurrences; n <= 0 || n > scheduling.DefaultMaxOccurrences {
		errs = append(errs, fmt.Errorf("MAX_RECURRING_OCCURRENCES must be between 1 and %d (got %d)", scheduling.DefaultMaxOccurrences, n))
	}
	return s, errors.Join(errs...)
}
