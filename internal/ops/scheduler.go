package ops

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"rollguard/internal/platform/metrics"
)

// Job is a unit of periodic work. A failing run is logged and counted; the
// next tick runs it again.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	jobs    []Job
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithSchedulerMetrics(m *metrics.Metrics) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// NewScheduler drops jobs with a non-positive interval, which is how a job is
// disabled from configuration.
func NewScheduler(jobs []Job, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	for _, j := range jobs {
		if j.Interval <= 0 || j.Run == nil {
			s.logger.Info("scheduled job disabled", "job", j.Name)
			continue
		}
		s.jobs = append(s.jobs, j)
	}
	return s
}

// Run runs every job once immediately and then on its interval until ctx is
// done. Runs of the same job never overlap.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, j := range s.jobs {
		g.Go(func() error {
			s.loop(gctx, j)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		s.runOnce(ctx, j)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j Job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	s.metrics.IncScheduledRun(j.Name)
	if err := j.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.metrics.IncScheduledFailure(j.Name)
		s.logger.WarnContext(ctx, "scheduled job failed", "job", j.Name, "error", err)
		return
	}
	s.logger.InfoContext(ctx, "scheduled job finished", "job", j.Name, "duration_ms", time.Since(start).Milliseconds())
}
