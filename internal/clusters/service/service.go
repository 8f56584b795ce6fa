package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"rollguard/internal/clusters/metrics"
	"rollguard/internal/clusters/models"
	"rollguard/internal/clusters/ports"
)

const defaultWorkers = 4

// Store persists cluster flags.
type Store interface {
	// Latest returns the most recently created flag for an address hash, in
	// any status, or sentinel.ErrNotFound.
	Latest(ctx context.Context, addressHash string) (*models.AddressClusterFlag, error)
	// Create returns sentinel.ErrConflict when the address already has a live flag.
	Create(ctx context.Context, flag *models.AddressClusterFlag) error
	// Save overwrites flag if its stored status is still from, else returns
	// sentinel.ErrConflict.
	Save(ctx context.Context, flag *models.AddressClusterFlag, from models.ClusterStatus) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.AddressClusterFlag, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.AddressClusterFlag, int, error)
}

// Service finds addresses with suspicious voter concentrations and tracks
// their review.
type Service struct {
	records    ports.RecordSource
	store      Store
	auditor    ports.AuditPublisher
	events     ports.EventPublisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time
	thresholds models.Thresholds
	workers    int
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

// WithThresholds sets the thresholds used when Detect receives zero values.
func WithThresholds(t models.Thresholds) Option {
	return func(s *Service) {
		s.thresholds = t
	}
}

func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
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

func New(records ports.RecordSource, store Store, opts ...Option) (*Service, error) {
	if records == nil {
		return nil, errors.New("record source is required")
	}
	if store == nil {
		return nil, errors.New("cluster store is required")
	}
	s := &Service{
		records:    records,
		store:      store,
		logger:     slog.Default(),
		tracer:     otel.Tracer("rollguard/clusters"),
		now:        time.Now,
		thresholds: models.DefaultThresholds(),
		workers:    defaultWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) publish(ctx context.Context, event models.ClusterEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishCluster(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "cluster event not published",
			"flag_id", event.FlagID,
			"type", event.Type,
			"error", err,
		)
	}
}
