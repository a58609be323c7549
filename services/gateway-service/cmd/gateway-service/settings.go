package main

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
)

type Settings struct {
	ServiceName string
	HTTPPort    string
	Log         runtime.LogOptions

	SchedulingURL *url.URL
	JWTSecret     string
	JWTIssuer     string

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RateLimit       int
	RateLimitWindow time.Duration
	RateLimitPrefix string
	RateLimitOpen   bool

	CORS            httpx.CORSPolicy
	BodyLimitBytes  int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
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
	boolean := func(key string, fallback bool) bool {
		b, err := src.Bool(key, fallback)
		errs = append(errs, err)
		return b
	}

	s := Settings{
		ServiceName: src.String("SERVICE_NAME", "gateway-service"),
		Log: runtime.LogOptions{
			Level:      src.String("LOG_LEVEL", "info"),
			File:       src.String("LOG_FILE", ""),
			MaxSizeMB:  integer("LOG_MAX_SIZE_MB", 100),
			MaxBackups: integer("LOG_MAX_BACKUPS", 3),
		},
		JWTIssuer:       src.String("JWT_ISSUER", "clinicbook"),
		RedisAddr:       src.String("REDIS_ADDR", ""),
		RedisPassword:   src.String("REDIS_PASSWORD", ""),
		RedisDB:         integer("REDIS_DB", 0),
		RateLimit:       integer("RATE_LIMIT_PER_WINDOW", 60),
		RateLimitWindow: duration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitPrefix: src.String("RATE_LIMIT_PREFIX", "gw:rl"),
		RateLimitOpen:   boolean("RATE_LIMIT_FAIL_OPEN", true),
		CORS: httpx.CORSPolicy{
			AllowedOrigins:   src.List("CORS_ALLOWED_ORIGINS"),
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
			AllowCredentials: boolean("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           duration("CORS_MAX_AGE", 10*time.Minute),
		},
		BodyLimitBytes:  integer("HTTP_BODY_LIMIT_BYTES", 1<<20),
		RequestTimeout:  duration("HTTP_REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout: duration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	var err error
	if s.HTTPPort, err = src.Port("PORT", "8000"); err != nil {
		errs = append(errs, err)
	}
	if s.JWTSecret, err = src.RequiredString("JWT_SECRET"); err != nil {
		errs = append(errs, err)
	}
	raw := src.String("SCHEDULING_URL", "http://scheduling-service:8080")
	if s.SchedulingURL, err = url.Parse(raw); err != nil || s.SchedulingURL.Host == "" {
		errs = append(errs, fmt.Errorf("SCHEDULING_URL must be an absolute URL (got %q)", raw))
	}
	if s.RateLimit <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_WINDOW must be positive"))
	}
	return s, errors.Join(errs...)
}
