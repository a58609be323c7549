package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/notify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultNoticeWindow   = 24 * time.Hour
	DefaultDuration       = 60 * time.Minute
	DefaultMaxOccurrences = 52 // also the ceiling for any configured limit
	DefaultCallTimeout    = 5 * time.Second
	DefaultPatientReason  = "canceled by patient"
	defaultSlotStep       = 15 * time.Minute
	maxSlotWindow         = 31 * 24 * time.Hour
	instrumentationName   = "github.com/md-rashed-zaman/clinicbook/scheduling"
)

type Options struct {
	NoticeWindow    time.Duration
	DefaultDuration time.Duration
	MaxOccurrences  int
	// CallTimeout bounds every directory lookup and every unit of work.
	CallTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.NoticeWindow <= 0 {
		o.NoticeWindow = DefaultNoticeWindow
	}
	if o.DefaultDuration <= 0 {
		o.DefaultDuration = DefaultDuration
	}
	if o.MaxOccurrences <= 0 || o.MaxOccurrences > DefaultMaxOccurrences {
		o.MaxOccurrences = DefaultMaxOccurrences
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	return o
}

type Deps struct {
	Store Store
	// Directory overrides Store for user/clinic/procedure lookups, e.g. with
	// a cache. Defaults to Store.
	Directory Directory
	Notifier  notify.Emitter
	Logger    *slog.Logger
	Now       func() time.Time
}

// Service is the scheduling core. It is safe for concurrent use.
type Service struct {
	store    Store
	dir      Directory
	notifier notify.Emitter
	logger   *slog.Logger
	now      func() time.Time
	opts     Options
	tracer   trace.Tracer
	metrics  *metrics
}

func New(deps Deps, opts Options) *Service {
	s := &Service{
		store:    deps.Store,
		dir:      deps.Directory,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		now:      deps.Now,
		opts:     opts.withDefaults(),
		tracer:   otel.Tracer(instrumentationName),
	}
	if s.dir == nil {
		s.dir = deps.Store
	}
	if s.notifier == nil {
		s.notifier = notify.Discard{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.metrics = newMetrics(otel.Meter(instrumentationName), s.logger)
	return s
}

// infra passes domain errors through and wraps everything else.
func infra(op string, err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	var ie *InfraError
	if errors.As(err, &ie) {
		return err
	}
	return &InfraError{Op: op, Err: err, retryable: db.IsRetryable(err)}
}

// call runs one collaborator call under CallTimeout.
func call[T any](ctx context.Context, s *Service, op string, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	v, err := fn(cctx)
	return v, infra(op, err)
}

func (s *Service) inTx(ctx context.Context, op string, locks []LockKey, fn func(context.Context, Tx) error) error {
	_, err := call(ctx, s, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.InTx(ctx, locks, fn)
	})
	return err
}
