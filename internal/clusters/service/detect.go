package service

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"rollguard/internal/clusters/models"
	identity "rollguard/internal/identity/models"
	"rollguard/internal/scoring"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/sentinel"
)

// Detect groups the active roll by normalized address and flags every group
// of at least t.Low voters. A live flag for an address is refreshed in
// place. A reviewed flag is left alone unless the address has gained voters
// since, in which case a new flag is opened.
func (s *Service) Detect(ctx context.Context, t models.Thresholds) (*models.DetectResult, error) {
	if t == (models.Thresholds{}) {
		t = s.thresholds
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "clusters.Detect", trace.WithAttributes(
		attribute.Int("clusters.threshold_low", t.Low),
	))
	defer span.End()

	start := s.now()
	records, err := s.records.Fetch(ctx, identity.AllScope)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to fetch records")
	}

	groups := groupByAddress(records, t.Low)
	assessments := make([]models.Assessment, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, members := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			assessments[i] = assess(members, t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "cluster detection cancelled")
	}

	result := &models.DetectResult{
		RunID:      uuid.NewString(),
		Thresholds: t,
		Records:    len(records),
		Groups:     len(groups),
		StartedAt:  start,
	}
	for _, a := range assessments {
		flag, created, err := s.upsert(ctx, a)
		if err != nil {
			return nil, err
		}
		if flag == nil {
			continue
		}
		if created {
			result.FlagsCreated++
		} else {
			result.FlagsUpdated++
		}
		result.Flags = append(result.Flags, flag)
		s.metrics.IncFlagged(string(flag.RiskLevel))
		s.publish(ctx, models.NewClusterEvent(models.EventClusterFlagged, flag, s.now()))
	}
	result.FinishedAt = s.now()

	s.metrics.ObserveRun(result.FinishedAt.Sub(start).Seconds())
	span.SetAttributes(attribute.Int("clusters.flags", len(result.Flags)))
	s.logger.InfoContext(ctx, "address cluster detection finished",
		"run_id", result.RunID,
		"records", result.Records,
		"groups", result.Groups,
		"created", result.FlagsCreated,
		"updated", result.FlagsUpdated,
	)
	return result, nil
}

// upsert returns a nil flag when a reviewed flag already covers the
// assessment.
func (s *Service) upsert(ctx context.Context, a models.Assessment) (*models.AddressClusterFlag, bool, error) {
	now := s.now()
	latest, err := s.store.Latest(ctx, a.AddressHash)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
	case err != nil:
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load cluster flag")
	case latest.Status.IsLive():
		from := latest.Status
		if err := latest.Refresh(a, now); err != nil {
			return nil, false, err
		}
		if err := s.store.Save(ctx, latest, from); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return nil, false, dErrors.New(dErrors.CodeConflict, "cluster flag changed during detection")
			}
			return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update cluster flag")
		}
		return latest, false, nil
	case a.VoterCount <= latest.VoterCount:
		return nil, false, nil
	}

	flag := models.NewAddressClusterFlag(a, now)
	if err := s.store.Create(ctx, flag); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, false, dErrors.New(dErrors.CodeConflict, "address already has a live cluster flag")
		}
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create cluster flag")
	}
	return flag, true, nil
}

// groupByAddress returns groups of at least minSize valid records sharing an
// address hash, largest first. Records without an address are ignored.
func groupByAddress(records []identity.IdentityRecord, minSize int) [][]scoring.Subject {
	byHash := make(map[string][]scoring.Subject)
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.Validate() != nil {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		subj := scoring.Prepare(r)
		if subj.Norm.Address.Hash == "" {
			continue
		}
		byHash[subj.Norm.Address.Hash] = append(byHash[subj.Norm.Address.Hash], subj)
	}

	groups := make([][]scoring.Subject, 0)
	for _, members := range byHash {
		if len(members) >= minSize {
			groups = append(groups, members)
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i]) != len(groups[j]) {
			return len(groups[i]) > len(groups[j])
		}
		return groups[i][0].Norm.Address.Hash < groups[j][0].Norm.Address.Hash
	})
	return groups
}
