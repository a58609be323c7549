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
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/grpcx"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/cache"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/notify"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/scheduling"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/storage"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/migrations"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const grpcServiceName = "clinicbook.scheduling.v1.Scheduling"

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
		Short: "Run the scheduling HTTP and gRPC servers",
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
		Use:          "scheduling-service",
		Short:        "Clinic appointment scheduling",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.PersistentFlags().StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "optional config file (.env, yaml or json); environment variables win")
	root.AddCommand(serve, migrate)
	return root
}

func runMigrate(ctx context.Context, s Settings) error {
	if s.StoreDriver != driverPostgres {
		return errors.New("migrate requires STORE_DRIVER=postgres")
	}
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

	var (
		checks []runtime.ReadyCheck
		store  scheduling.Store
		pool   *db.Pool
	)
	switch s.StoreDriver {
	case driverMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		store = storage.NewMemory()
	default:
		pool, err = db.Open(ctx, s.DatabaseURL, db.Options{MaxConns: int32(s.DBMaxConns)})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			return err
		}
		defer pool.Close()
		store = storage.NewRepository(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	}

	var (
		directory   scheduling.Directory = store
		rateLimiter httpx.Middleware
		actorKey    = func(r *http.Request) string {
			if actor := auth.ActorFromContext(r.Context()); actor != "" {
				return "user:" + actor
			}
			return httpx.ClientKey(r)
		}
	)
	if s.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: s.RedisAddr, Password: s.RedisPassword, DB: s.RedisDB})
		defer func() { _ = rdb.Close() }()
		directory = cache.NewDirectory(store, rdb, s.CacheTTL, s.ServiceName+":dir", logger)
		rateLimiter = httpx.NewRedisRateLimiter(rdb, s.RateLimit, s.RateLimitWindow, s.ServiceName+":rl", actorKey).Middleware(logger, true)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	} else {
		rateLimiter = httpx.NewRateLimiter(s.RateLimit, s.RateLimitWindow, actorKey).Middleware()
	}

	var sink notify.Sink
	if brokers := kafkax.SplitBrokers(s.KafkaBrokers); len(brokers) > 0 {
		kafkaSink := notify.NewKafkaSink(brokers)
		defer func() { _ = kafkaSink.Close() }()
		sink = kafkaSink
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(s.KafkaBrokers)})
	} else {
		logger.Warn("KAFKA_BROKERS not set; notifications are logged only")
		sink = notify.NewLogSink(logger)
	}
	dispatcher := notify.NewDispatcher(sink, logger, notify.DispatcherOptions{})
	// The dispatcher outlives the signal so requests still draining during
	// srv.Shutdown can emit. It is stopped after the HTTP server.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		dispatcher.Run(dispatchCtx)
	}()

	svc := scheduling.New(scheduling.Deps{
		Store:     store,
		Directory: directory,
		Notifier:  dispatcher,
		Logger:    logger,
	}, s.Scheduling)

	var verifier *auth.Verifier
	if s.JWTSecret != "" {
		verifier = auth.NewVerifier(s.JWTSecret, s.JWTIssuer)
	} else {
		logger.Warn("JWT_SECRET not set; trusting gateway identity header", "header", auth.UserIDHeader)
	}

	api := http.NewServeMux()
	handlers.NewAppointmentHandler(svc, logger).Register(api)

	probes := runtime.NewProbes(checks...)
	mux := runtime.NewBaseMux(probes)
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}
	mux.Handle("/api/", httpx.Chain(api,
		httpx.Middleware(auth.Middleware(verifier)),
		rateLimiter,
	))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(s.CORS),
		httpx.WithBodyLimit(int64(s.BodyLimitBytes)),
		httpx.WithTimeout(s.RequestTimeout),
	)
	srv := &http.Server{
		Addr:              ":" + s.HTTPPort,
		Handler:           otelhttp.NewHandler(handler, "scheduling"),
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
		logger.Info("http server starting", "addr", srv.Addr, "store", s.StoreDriver)
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
			stopDispatch()
			select {
			case <-dispatched:
				return nil
			case <-ctx.Done():
				return errors.New("notification dispatcher did not drain")
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
	logger.Info("scheduling service stopped", "notifications", dispatcher.Stats())
	return nil
}
