package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/grpcx"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/consumer"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/delivery"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/event"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/inbox"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/storage"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/whatsapp"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/migrations"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const grpcServiceName = "clinicbook.notification.v1.Notification"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string
	load := func() (Settings, error) {
		src, err := config.Load(configFile)
		if err != nil {
			return Settings{}, err
		}
		return LoadSettings(src)
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Consume notification events and deliver them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := load()
			if err != nil {
				return err
			}
			return runServe(settings)
		},
	}
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := load()
			if err != nil {
				return err
			}
			return runMigrate(cmd.Context(), settings)
		},
	}

	root := &cobra.Command{
		Use:          "notification-service",
		Short:        "Appointment notification delivery",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.PersistentFlags().StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "optional config file (.env, yaml or json); environment variables win")
	root.AddCommand(serve, migrate)
	return root
}

func runMigrate(ctx context.Context, s Settings) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := runtime.NewLogger(s.ServiceName, s.Log)
	pool, err := db.Open(ctx, s.DatabaseURL, db.Options{MaxConns: 2})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	list, err := db.LoadMigrations(migrations.FS, ".")
	if err != nil {
		return err
	}
	n, err := db.Migrate(ctx, pool, list)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", "count", n, "known", len(list))
	return nil
}

func runServe(s Settings) error {
	logger := runtime.NewLogger(s.ServiceName, s.Log)
	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFrom(config.FromEnv(), s.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
		otelShutdown = nil
	}
	metrics, err := otelx.SetupMetrics(ctx, s.ServiceName)
	if err != nil {
		logger.Error("metrics setup failed", "err", err)
	}

	pool, err := db.Open(ctx, s.DatabaseURL, db.Options{MaxConns: int32(s.DBMaxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		return err
	}
	defer pool.Close()

	var wa whatsapp.Sender
	if s.WhatsAppURL != "" {
		wa = whatsapp.NewWebhookSender(s.WhatsAppURL, s.WhatsAppInstance, s.WhatsAppAPIKey)
	} else {
		logger.Warn("WHATSAPP_API_URL not set; whatsapp messages are recorded but not sent")
		wa = whatsapp.NewNoopSender()
	}
	processor := delivery.NewProcessor(storage.NewRepository(pool), email.NewSMTPSender(s.SMTP), wa, logger)

	c := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
		Brokers:     s.KafkaBrokers,
		GroupID:     s.KafkaGroupID,
		Topics:      event.Topics(),
		MaxAttempts: s.MaxAttempts,
		Backoff:     s.RetryBackoff,
	}, processor.Handle)
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		logger.Info("consuming notification events", "topics", event.Topics(), "group", s.KafkaGroupID)
		c.Run(ctx)
	}()

	probes := runtime.NewProbes(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(s.KafkaBrokers)},
	)
	mux := runtime.NewBaseMux(probes)
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}
	srv := &http.Server{
		Addr:              ":" + s.HTTPPort,
		Handler:           otelhttp.NewHandler(httpx.Chain(mux, httpx.WithRequestID, httpx.WithRecover(logger)), "notification"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpcx.NewServer(logger)
	grpcSrv.SetServing(true, grpcServiceName)
	go func() {
		if err := grpcSrv.Serve(ctx, ":"+s.GRPCPort); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	probes.Drain()
	grpcSrv.SetServing(false, grpcServiceName)

	err = runtime.Shutdown(s.ShutdownTimeout,
		srv.Shutdown,
		func(ctx context.Context) error {
			select {
			case <-consumed:
				return nil
			case <-ctx.Done():
				return errors.New("consumer did not stop")
			}
		},
		func(ctx context.Context) error {
			if metrics == nil {
				return nil
			}
			return metrics.Shutdown(ctx)
		},
		otelShutdown,
	)
	if err != nil {
		logger.Error("shutdown incomplete", "err", err)
		return err
	}
	logger.Info("notification service stopped")
	return nil
}
