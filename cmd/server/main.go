package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"rollguard/internal/ops"
	"rollguard/internal/platform/config"
	"rollguard/internal/platform/httpserver"
	"rollguard/internal/platform/logger"
	"rollguard/internal/platform/metrics"
)

var version = "dev"

// main wires the engine, exposes the ops router and runs the scheduled jobs
// until a termination signal arrives. Business logic lives in the internal
// service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("rollguard server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	procMetrics := metrics.New()
	procMetrics.BuildInfo.WithLabelValues(version).Set(1)

	eng, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	opsOpts := []ops.Option{
		ops.WithLogger(log),
		ops.WithFlagResolver(eng.dedupe),
		ops.WithClusterReviewer(eng.clusters),
	}
	handler := ops.New(eng.ledger, append(opsOpts, eng.readinessChecks()...)...)
	srv := httpserver.New(cfg.Server.Addr, ops.NewRouter(handler, log))
	scheduler := ops.NewScheduler(eng.jobs(cfg.Scheduler),
		ops.WithSchedulerLogger(log),
		ops.WithSchedulerMetrics(procMetrics),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting rollguard ops server", "addr", cfg.Server.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}
