package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"rollguard/internal/dedupe/models"
	identity "rollguard/internal/identity/models"
	"rollguard/internal/matching/biometric"
	"rollguard/internal/scoring"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/sentinel"
)

// Detect scores every candidate pair of the scope's population and reports
// pairs at or above the threshold that are not flagged yet. Unless DryRun is
// set the new flags are committed before returning.
//
// Cancellation is checked between pairs. A cancelled run commits the flags
// found so far and returns its partial result together with a CodeTimeout
// error.
func (s *Service) Detect(ctx context.Context, req models.DetectRequest) (*models.DetectResult, error) {
	req, err := s.normalizeRequest(req)
	if err != nil {
		return nil, err
	}
	scope := req.Scope.String()

	ctx, span := s.tracer.Start(ctx, "dedupe.Detect", trace.WithAttributes(
		attribute.String("dedupe.scope", scope),
		attribute.Bool("dedupe.dry_run", req.DryRun),
	))
	defer span.End()

	if !req.DryRun {
		release, err := s.lock.Acquire(ctx, "detect:"+scope, s.lockTTL)
		if err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return nil, dErrors.New(dErrors.CodeConflict, "a detection run is already in progress for scope "+scope)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to acquire detection lock")
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.WarnContext(ctx, "detection lock release failed", "scope", scope, "error", err)
			}
		}()
	}

	start := s.now()
	records, err := s.records.Fetch(ctx, req.Scope)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to fetch records")
	}
	subjects, skipped := s.prepare(ctx, records)

	result := &models.DetectResult{
		RunID:      uuid.NewString(),
		Scope:      scope,
		Threshold:  req.Threshold,
		Algorithms: req.Algorithms.Slice(),
		DryRun:     req.DryRun,
		Records:    len(subjects),
		Skipped:    skipped,
		StartedAt:  start,
	}

	candidates, comparisons, runErr := s.scoreAll(ctx, subjects, req)
	result.Comparisons = comparisons
	if runErr != nil {
		if !isCancellation(runErr) {
			return nil, dErrors.Wrap(runErr, dErrors.CodeInternal, "detection failed")
		}
		result.Cancelled = true
		// Already found flags are kept.
		ctx = context.WithoutCancel(ctx)
	}

	flags, err := s.newFlags(ctx, candidates, scope, result.RunID)
	if err != nil {
		return nil, err
	}
	result.Flags = flags
	result.FlagsFound = len(flags)

	if !req.DryRun {
		if _, err := s.Commit(ctx, result); err != nil {
			return nil, err
		}
	}
	result.FinishedAt = s.now()

	outcome := "completed"
	if result.Cancelled {
		outcome = "cancelled"
	}
	s.metrics.ObserveRun(outcome, req.DryRun, result.FinishedAt.Sub(start).Seconds(), comparisons, skipped)
	span.SetAttributes(
		attribute.Int64("dedupe.comparisons", comparisons),
		attribute.Int("dedupe.flags_found", result.FlagsFound),
	)
	s.logger.InfoContext(ctx, "duplicate detection finished",
		"run_id", result.RunID,
		"scope", scope,
		"outcome", outcome,
		"records", result.Records,
		"skipped", skipped,
		"comparisons", comparisons,
		"flags_found", result.FlagsFound,
		"dry_run", req.DryRun,
	)

	if result.Cancelled {
		return result, dErrors.Wrap(runErr, dErrors.CodeTimeout, "detection cancelled")
	}
	return result, nil
}

// Commit persists the flags of a (typically dry-run) result. Pairs flagged in
// the meantime are skipped. It returns the number of flags created.
func (s *Service) Commit(ctx context.Context, result *models.DetectResult) (int, error) {
	if result == nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, "result is required")
	}
	created := 0
	for _, flag := range result.Flags {
		ok, err := s.flags.Upsert(ctx, flag)
		if err != nil {
			return created, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist duplicate flag")
		}
		if !ok {
			continue
		}
		created++
		s.publish(ctx, models.NewFlagEvent(models.EventFlagRaised, flag, s.now()))
	}
	s.metrics.AddFlagsRaised(created)
	return created, nil
}

func (s *Service) normalizeRequest(req models.DetectRequest) (models.DetectRequest, error) {
	if req.Threshold == 0 {
		req.Threshold = models.DefaultThreshold
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		return req, dErrors.New(dErrors.CodeValidation, "threshold must be within [0,1]")
	}
	if req.Algorithms.Len() == 0 {
		req.Algorithms = scoring.AllAlgorithms()
	}
	if req.Profile.Name == "" {
		req.Profile = scoring.RuleBased()
	}
	if req.Scope.Kind == "" {
		req.Scope = identity.AllScope
	}
	return req, nil
}

// prepare normalizes each usable record once. Malformed records and repeated
// ids are skipped and logged.
func (s *Service) prepare(ctx context.Context, records []identity.IdentityRecord) ([]scoring.Subject, int) {
	usable := make([]identity.IdentityRecord, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	skipped := 0
	for _, r := range records {
		if err := r.Validate(); err != nil {
			skipped++
			s.logger.WarnContext(ctx, "skipping malformed record", "record_id", r.ID, "error", err)
			continue
		}
		if _, dup := seen[r.ID]; dup {
			skipped++
			s.logger.WarnContext(ctx, "skipping repeated record id", "record_id", r.ID)
			continue
		}
		seen[r.ID] = struct{}{}
		usable = append(usable, r)
	}

	s.enrich(ctx, usable)
	subjects := make([]scoring.Subject, len(usable))
	for i, r := range usable {
		subjects[i] = scoring.Prepare(r)
	}
	return subjects, skipped
}

// enrich fills in features extracted from captures, in place. A record whose
// extraction fails is scored on what it already has.
func (s *Service) enrich(ctx context.Context, records []identity.IdentityRecord) {
	if s.captures == nil || s.extractor == nil {
		return
	}
	var ids []string
	for _, r := range records {
		if !r.HasFace() || !r.HasFingerprint() {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	found, err := s.captures.Captures(ctx, ids)
	if err != nil {
		s.logger.WarnContext(ctx, "captures unavailable, scoring without enrichment", "error", err)
		return
	}
	enriched := 0
	for i, r := range records {
		c, ok := found[r.ID]
		if !ok {
			continue
		}
		out, err := biometric.Enrich(ctx, s.extractor, r, c)
		if err != nil {
			s.logger.WarnContext(ctx, "feature extraction failed", "record_id", r.ID, "error", err)
			continue
		}
		records[i] = out
		enriched++
	}
	s.logger.InfoContext(ctx, "enriched records from captures", "requested", len(ids), "enriched", enriched)
}

type candidate struct {
	idA, idB string
	score    scoring.SimilarityScore
}

// pairSink collects candidates from concurrent workers, keeping one entry per
// unordered pair.
type pairSink struct {
	mu    sync.Mutex
	pairs map[string]candidate
}

func newPairSink() *pairSink {
	return &pairSink{pairs: make(map[string]candidate)}
}

func (p *pairSink) add(c candidate) {
	c.idA, c.idB = models.OrderPair(c.idA, c.idB)
	key := c.idA + "|" + c.idB
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pairs[key]; !ok {
		p.pairs[key] = c
	}
}

// sorted returns candidates by descending score, ties by pair.
func (p *pairSink) sorted() []candidate {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]candidate, 0, len(p.pairs))
	for _, c := range p.pairs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score.Combined != out[j].score.Combined {
			return out[i].score.Combined > out[j].score.Combined
		}
		if out[i].idA != out[j].idA {
			return out[i].idA < out[j].idA
		}
		return out[i].idB < out[j].idB
	})
	return out
}

func (s *Service) scoreAll(ctx context.Context, subjects []scoring.Subject, req models.DetectRequest) ([]candidate, int64, error) {
	g, gctx := errgroup.WithContext(ctx)
	pairs := make(chan [2]int, s.workers*64)
	sink := newPairSink()
	var comparisons atomic.Int64

	g.Go(func() error {
		defer close(pairs)
		for i, j := range s.blocker.Pairs(subjects) {
			select {
			case pairs <- [2]int{i, j}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for range s.workers {
		g.Go(func() error {
			for p := range pairs {
				if err := gctx.Err(); err != nil {
					return err
				}
				a, b := subjects[p[0]], subjects[p[1]]
				score := s.scorer.ScoreSubjects(a, b, req.Algorithms, req.Profile)
				comparisons.Add(1)
				if score.Combined >= req.Threshold {
					sink.add(candidate{idA: a.Record.ID, idB: b.Record.ID, score: score.WithThreshold(req.Threshold)})
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		// A cancellation after the last pair still counts as cancelled.
		err = ctx.Err()
	}
	return sink.sorted(), comparisons.Load(), err
}

// newFlags turns candidates into pending flags, dropping pairs already
// flagged in the scope.
func (s *Service) newFlags(ctx context.Context, candidates []candidate, scope, runID string) ([]*models.DuplicateFlag, error) {
	now := s.now()
	flags := make([]*models.DuplicateFlag, 0, len(candidates))
	for _, c := range candidates {
		_, err := s.flags.FindByPair(ctx, scope, c.idA, c.idB)
		if err == nil {
			continue
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up existing flag")
		}
		flag, err := models.NewDuplicateFlag(scope, c.idA, c.idB, c.score, now)
		if err != nil {
			return nil, err
		}
		flag.RunID = runID
		flags = append(flags, flag)
	}
	return flags, nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

