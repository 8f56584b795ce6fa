package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	clusteradapters "rollguard/internal/clusters/adapters"
	clustermetrics "rollguard/internal/clusters/metrics"
	clustermodels "rollguard/internal/clusters/models"
	clusterservice "rollguard/internal/clusters/service"
	clusterstore "rollguard/internal/clusters/store"
	dedupeadapters "rollguard/internal/dedupe/adapters"
	dedupemetrics "rollguard/internal/dedupe/metrics"
	dedupemodels "rollguard/internal/dedupe/models"
	dedupeservice "rollguard/internal/dedupe/service"
	dedupestore "rollguard/internal/dedupe/store"
	identity "rollguard/internal/identity/models"
	identitystore "rollguard/internal/identity/store"
	ledgeradapters "rollguard/internal/ledger/adapters"
	ledgermetrics "rollguard/internal/ledger/metrics"
	ledgermodels "rollguard/internal/ledger/models"
	ledgerservice "rollguard/internal/ledger/service"
	ledgerstore "rollguard/internal/ledger/store"
	"rollguard/internal/ops"
	"rollguard/internal/platform/config"
	"rollguard/internal/platform/kafka"
	"rollguard/internal/platform/postgres"
	"rollguard/internal/platform/redis"
	"rollguard/internal/scoring"
	"rollguard/migrations"
	"rollguard/pkg/platform/audit/publishers/compliance"
)

// roll is the identity store seen by the engine.
type roll interface {
	Fetch(ctx context.Context, scope identity.Scope) ([]identity.IdentityRecord, error)
	Deactivate(ctx context.Context, ids []string, linkedTo string) error
}

type engine struct {
	db       *sql.DB
	redis    *redis.Client
	kafka    *kgo.Client
	closers  []func() error
	ledger   *ledgerservice.Service
	dedupe   *dedupeservice.Service
	clusters *clusterservice.Service
	cfg      config.DetectionConfig
	logger   *slog.Logger
}

// buildEngine opens every configured backend and wires the services. Each
// backend is optional: without a database the engine runs on memory stores
// and an embedded ledger, without Redis the run lock is process local, and
// without brokers no events are published.
func buildEngine(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *engine, err error) {
	e := &engine{cfg: cfg.Detection, logger: log}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	if e.db, err = postgres.Open(ctx, cfg.Database); err != nil {
		return nil, err
	}
	if e.db != nil {
		e.closers = append(e.closers, e.db.Close)
		if err = migrations.Apply(ctx, e.db); err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}
	if e.redis, err = redis.New(cfg.Redis); err != nil {
		return nil, err
	}
	if e.redis != nil {
		e.closers = append(e.closers, e.redis.Close)
	}
	if e.kafka, err = kafka.NewClient(cfg.Kafka); err != nil {
		return nil, err
	}
	if e.kafka != nil {
		e.closers = append(e.closers, func() error { e.kafka.Close(); return nil })
		if err = kafka.EnsureTopics(ctx, e.kafka, cfg.Kafka.Topic); err != nil {
			return nil, err
		}
	}

	if err = e.buildLedger(cfg.Ledger); err != nil {
		return nil, err
	}
	records, err := e.openRoll(cfg.Roll)
	if err != nil {
		return nil, err
	}
	auditor := compliance.New(ledgeradapters.NewAuditStore(e.ledger),
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics()),
	)

	var publisher *kafka.Publisher
	if e.kafka != nil {
		publisher = kafka.NewPublisher(e.kafka, cfg.Kafka.Topic, kafka.WithPublisherLogger(log))
	}
	if err = e.buildDedupe(cfg.Detection, cfg.Biometric, records, auditor, publisher); err != nil {
		return nil, err
	}
	if err = e.buildClusters(cfg, records, auditor, publisher); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *engine) buildLedger(cfg config.LedgerConfig) error {
	var store ledgerservice.Store
	if e.db != nil {
		store = ledgerstore.NewPostgres(e.db)
	} else {
		bolt, err := ledgerstore.NewBolt(cfg.BoltPath)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		e.closers = append(e.closers, bolt.Close)
		store = bolt
	}
	svc, err := ledgerservice.New(store,
		ledgerservice.WithLogger(e.logger),
		ledgerservice.WithMetrics(ledgermetrics.New()),
	)
	if err != nil {
		return err
	}
	e.ledger = svc
	return nil
}

// openRoll prefers the database. A roll file seeds an in-memory roll for
// single-node runs; with neither, the engine starts on an empty roll.
func (e *engine) openRoll(cfg config.RollConfig) (roll, error) {
	switch {
	case e.db != nil:
		return identitystore.NewPostgres(e.db), nil
	case cfg.File != "":
		store, err := identitystore.LoadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		e.logger.Info("loaded roll file", "path", cfg.File, "records", len(store.IDs()))
		return store, nil
	default:
		e.logger.Warn("no database or roll file configured, starting on an empty roll")
		return identitystore.NewInMemory(), nil
	}
}

func (e *engine) buildDedupe(cfg config.DetectionConfig, bio config.BiometricConfig, records roll, auditor *compliance.Publisher, publisher *kafka.Publisher) error {
	var flags dedupeservice.FlagStore = dedupestore.NewInMemory()
	opts := []dedupeservice.Option{
		dedupeservice.WithLogger(e.logger),
		dedupeservice.WithMetrics(dedupemetrics.New()),
		dedupeservice.WithRecordLifecycle(records),
		dedupeservice.WithAuditPublisher(auditor),
		dedupeservice.WithWorkers(cfg.Workers),
		dedupeservice.WithAppealWindow(cfg.AppealWindow),
		dedupeservice.WithLockTTL(cfg.LockTTL),
	}
	if e.db != nil {
		flags = dedupestore.NewPostgres(e.db)
		opts = append(opts, dedupeservice.WithTxRunner(postgres.NewTxRunner(e.db)))
	}
	if e.redis != nil {
		opts = append(opts, dedupeservice.WithRunLock(dedupeadapters.NewRedisRunLock(e.redis.Client)))
	}
	if publisher != nil {
		opts = append(opts, dedupeservice.WithEventPublisher(dedupeadapters.NewFlagPublisher(publisher)))
	}
	if bio.Enabled() {
		opts = append(opts, dedupeservice.WithEnrichment(
			dedupeadapters.NewCaptureDir(bio.CaptureDir),
			dedupeadapters.NewHTTPExtractor(bio.ExtractorURL, bio.ExtractorTimeout),
		))
		e.logger.Info("biometric enrichment enabled", "capture_dir", bio.CaptureDir)
	}
	svc, err := dedupeservice.New(records, flags, opts...)
	if err != nil {
		return err
	}
	e.dedupe = svc
	return nil
}

func (e *engine) buildClusters(cfg config.Config, records roll, auditor *compliance.Publisher, publisher *kafka.Publisher) error {
	var store clusterservice.Store = clusterstore.NewInMemory()
	if e.db != nil {
		store = clusterstore.NewPostgres(e.db)
	}
	opts := []clusterservice.Option{
		clusterservice.WithLogger(e.logger),
		clusterservice.WithMetrics(clustermetrics.New()),
		clusterservice.WithAuditPublisher(auditor),
		clusterservice.WithWorkers(cfg.Detection.Workers),
		clusterservice.WithThresholds(clusterThresholds(cfg.Clusters)),
	}
	if publisher != nil {
		opts = append(opts, clusterservice.WithEventPublisher(clusteradapters.NewClusterPublisher(publisher)))
	}
	svc, err := clusterservice.New(records, store, opts...)
	if err != nil {
		return err
	}
	e.clusters = svc
	return nil
}

func (e *engine) readinessChecks() []ops.Option {
	var checks []ops.Option
	if e.db != nil {
		checks = append(checks, ops.WithCheck("database", e.db.PingContext))
	}
	if e.redis != nil {
		checks = append(checks, ops.WithCheck("redis", e.redis.Health))
	}
	if e.kafka != nil {
		checks = append(checks, ops.WithCheck("kafka", e.kafka.Ping))
	}
	return checks
}

func (e *engine) jobs(cfg config.SchedulerConfig) []ops.Job {
	profile, ok := scoring.ProfileByName(e.cfg.Profile)
	if !ok {
		e.logger.Warn("unknown detection profile, using rule_based", "profile", e.cfg.Profile)
		profile = scoring.RuleBased()
	}
	return []ops.Job{
		{
			Name:     "duplicate_detection",
			Interval: cfg.DetectInterval,
			Run: func(ctx context.Context) error {
				res, err := e.dedupe.Detect(ctx, dedupemodels.DetectRequest{
					Scope:     identity.AllScope,
					Threshold: e.cfg.Threshold,
					Profile:   profile,
				})
				if err != nil {
					return err
				}
				e.logger.InfoContext(ctx, "duplicate detection run",
					"run_id", res.RunID,
					"comparisons", res.Comparisons,
					"flags", len(res.Flags),
				)
				return nil
			},
		},
		{
			Name:     "cluster_detection",
			Interval: cfg.ClusterInterval,
			Run: func(ctx context.Context) error {
				res, err := e.clusters.Detect(ctx, clustermodels.Thresholds{})
				if err != nil {
					return err
				}
				e.logger.InfoContext(ctx, "cluster detection run",
					"run_id", res.RunID,
					"created", res.FlagsCreated,
					"updated", res.FlagsUpdated,
				)
				return nil
			},
		},
		{
			Name:     "ledger_verification",
			Interval: cfg.VerifyInterval,
			Run: func(ctx context.Context) error {
				var errs []error
				for _, chain := range []string{ledgermodels.ChainAudit, ledgermodels.ChainVotes} {
					v, err := e.ledger.Verify(ctx, chain)
					if err != nil {
						errs = append(errs, err)
						continue
					}
					if !v.Valid {
						errs = append(errs, fmt.Errorf("chain %s invalid at block %d", chain, *v.FirstInvalidIndex))
					}
				}
				return errors.Join(errs...)
			},
		},
	}
}

func clusterThresholds(c config.ClusterConfig) clustermodels.Thresholds {
	return clustermodels.Thresholds{Low: c.LowCount, Medium: c.MediumCount, High: c.HighCount}
}

// Close releases backends in reverse order of opening.
func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn("close failed", "error", err)
		}
	}
	e.closers = nil
}
