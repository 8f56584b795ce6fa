package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"rollguard/internal/dedupe/metrics"
	"rollguard/internal/dedupe/models"
	"rollguard/internal/dedupe/ports"
	"rollguard/internal/matching/biometric"
	"rollguard/internal/scoring"
)

const (
	defaultWorkers      = 8
	defaultAppealWindow = 30 * 24 * time.Hour
	defaultLockTTL      = 30 * time.Minute
)

// FlagStore persists duplicate flags.
type FlagStore interface {
	// FindByPair returns the flag for the unordered pair in scope or
	// sentinel.ErrNotFound.
	FindByPair(ctx context.Context, scope, idA, idB string) (*models.DuplicateFlag, error)
	// Upsert inserts flag unless its pair is already flagged in the scope.
	// created is false when an existing flag was kept.
	Upsert(ctx context.Context, flag *models.DuplicateFlag) (created bool, err error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.DuplicateFlag, error)
	// Transition stores flag's new state if its persisted status is still
	// from, else returns sentinel.ErrConflict.
	Transition(ctx context.Context, flag *models.DuplicateFlag, from models.FlagStatus) error
	List(ctx context.Context, filter models.ListFilter) ([]*models.DuplicateFlag, int, error)
}

// Service runs duplicate detection over a population scope and drives the
// review workflow of the resulting flags.
type Service struct {
	records   ports.RecordSource
	flags     FlagStore
	scorer    *scoring.Scorer
	blocker   Blocker
	lifecycle ports.RecordLifecycle
	auditor   ports.AuditPublisher
	events    ports.EventPublisher
	lock      ports.RunLock
	tx        ports.TxRunner
	captures  ports.CaptureSource
	extractor biometric.FeatureExtractor
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time

	workers      int
	appealWindow time.Duration
	lockTTL      time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithScorer(sc *scoring.Scorer) Option {
	return func(s *Service) {
		s.scorer = sc
	}
}

// WithBlocker replaces exhaustive pairing with a candidate blocker.
func WithBlocker(b Blocker) Option {
	return func(s *Service) {
		s.blocker = b
	}
}

func WithRecordLifecycle(l ports.RecordLifecycle) Option {
	return func(s *Service) {
		s.lifecycle = l
	}
}

func WithAuditPublisher(p ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithEventPublisher(p ports.EventPublisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithRunLock replaces the in-process run lock, e.g. with a Redis lock shared
// by several engine nodes.
func WithRunLock(l ports.RunLock) Option {
	return func(s *Service) {
		s.lock = l
	}
}

func WithTxRunner(tx ports.TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithEnrichment extracts features for records that carry raw captures but
// no embedding or minutiae before they are scored.
func WithEnrichment(src ports.CaptureSource, ex biometric.FeatureExtractor) Option {
	return func(s *Service) {
		s.captures = src
		s.extractor = ex
	}
}

func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithAppealWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.appealWindow = d
		}
	}
}

func WithLockTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New constructs a dedupe Service.
func New(records ports.RecordSource, flags FlagStore, opts ...Option) (*Service, error) {
	if records == nil {
		return nil, errors.New("record source is required")
	}
	if flags == nil {
		return nil, errors.New("flag store is required")
	}
	s := &Service{
		records:      records,
		flags:        flags,
		scorer:       scoring.New(),
		blocker:      AllPairs{},
		lock:         newLocalRunLock(),
		tx:           passthroughTx{},
		logger:       slog.Default(),
		tracer:       otel.Tracer("rollguard/dedupe"),
		now:          time.Now,
		workers:      defaultWorkers,
		appealWindow: defaultAppealWindow,
		lockTTL:      defaultLockTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// passthroughTx runs fn directly; stores without transactions apply each
// write immediately.
type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *Service) publish(ctx context.Context, event models.FlagEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishFlag(ctx, event); err != nil {
		s.metrics.IncPublishFailure()
		s.logger.WarnContext(ctx, "flag event not published",
			"flag_id", event.FlagID,
			"type", event.Type,
			"error", err,
		)
	}
}
