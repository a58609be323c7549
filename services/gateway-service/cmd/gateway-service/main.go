package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	var configFile string
	root := &cobra.Command{
		Use:          "gateway-service",
		Short:        "Authenticating edge proxy for the clinicbook API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := config.Load(configFile)
			if err != nil {
				return err
			}
			settings, err := LoadSettings(src)
			if err != nil {
				return err
			}
			return run(settings)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "optional config file (.env, yaml or json); environment variables win")
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(s Settings) error {
	logger := runtime.NewLogger(s.ServiceName, s.Log)
	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFrom(config.FromEnv(), s.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
		otelShutdown = nil
	}

	var (
		checks      []runtime.ReadyCheck
		rateLimitMW httpx.Middleware
	)
	if s.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: s.RedisAddr, Password: s.RedisPassword, DB: s.RedisDB})
		defer func() { _ = rdb.Close() }()
		rateLimitMW = httpx.NewRedisRateLimiter(rdb, s.RateLimit, s.RateLimitWindow, s.RateLimitPrefix, httpx.ClientKey).Middleware(logger, s.RateLimitOpen)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("rate limiting enabled (redis)", "limit", s.RateLimit, "window", s.RateLimitWindow, "redis_addr", s.RedisAddr)
	} else {
		rateLimitMW = httpx.NewRateLimiter(s.RateLimit, s.RateLimitWindow, httpx.ClientKey).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "limit", s.RateLimit, "window", s.RateLimitWindow)
	}

	probes := runtime.NewProbes(checks...)
	mux := runtime.NewBaseMux(probes)
	registerRoutes(mux, s.SchedulingURL, auth.NewVerifier(s.JWTSecret, s.JWTIssuer))

	handler := httpx.Chain(mux,
		httpx.WithCORS(s.CORS),
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(s.BodyLimitBytes)),
		httpx.WithTimeout(s.RequestTimeout),
		rateLimitMW,
	)
	srv := &http.Server{
		Addr:              ":" + s.HTTPPort,
		Handler:           otelhttp.NewHandler(handler, "gateway"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "scheduling", s.SchedulingURL.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	probes.Drain()
	if err := runtime.Shutdown(s.ShutdownTimeout, srv.Shutdown, otelShutdown); err != nil {
		logger.Error("shutdown incomplete", "err", err)
		return err
	}
	logger.Info("http server stopped")
	return nil
}
