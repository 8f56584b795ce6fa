package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"

	"rollguard/internal/clusters/models"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/audit"
	"rollguard/pkg/platform/sentinel"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Assign puts a live cluster flag under review by reviewer.
func (s *Service) Assign(ctx context.Context, id uuid.UUID, reviewer string) (*models.AddressClusterFlag, error) {
	if reviewer == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reviewer is required")
	}
	return s.review(ctx, id, audit.EventClusterAssigned, func(f *models.AddressClusterFlag) error {
		return f.Assign(reviewer, s.now())
	})
}

// Resolve closes a live cluster flag. confirmed records that the reviewer
// found a real anomaly; otherwise the flag becomes a false positive.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, reviewer string, confirmed bool, note string) (*models.AddressClusterFlag, error) {
	if reviewer == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reviewer is required")
	}
	return s.review(ctx, id, audit.EventClusterResolved, func(f *models.AddressClusterFlag) error {
		return f.Resolve(reviewer, confirmed, note, s.now())
	})
}

func (s *Service) review(ctx context.Context, id uuid.UUID, action audit.AuditEvent, apply func(*models.AddressClusterFlag) error) (*models.AddressClusterFlag, error) {
	flag, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := flag.Status
	if err := apply(flag); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, flag, from); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "cluster flag was reviewed concurrently")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update cluster flag")
	}
	if s.auditor != nil {
		err := s.auditor.Emit(ctx, audit.Event{
			Action:  string(action),
			Subject: flag.ID.String(),
			ActorID: flag.Reviewer,
			Reason:  flag.Note,
			Metadata: map[string]string{
				"address_hash": flag.AddressHash,
				"status":       string(flag.Status),
				"risk_level":   string(flag.RiskLevel),
				"voter_count":  strconv.Itoa(flag.VoterCount),
			},
		})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
		}
	}

	s.metrics.IncReview(string(flag.Status))
	s.publish(ctx, models.NewClusterEvent(models.EventClusterReviewed, flag, s.now()))
	s.logger.InfoContext(ctx, "cluster flag reviewed",
		"flag_id", flag.ID,
		"status", flag.Status,
		"reviewer", flag.Reviewer,
	)
	return flag, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.AddressClusterFlag, error) {
	flag, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "cluster flag not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load cluster flag")
	}
	return flag, nil
}

// List returns one page of cluster flags ordered by risk score, then voter
// count, both descending.
func (s *Service) List(ctx context.Context, filter models.ListFilter) (*models.Page, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown cluster status "+string(filter.Status))
	}
	if filter.RiskLevel != "" && !filter.RiskLevel.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown risk level "+string(filter.RiskLevel))
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultPageLimit
	}
	filter.Limit = min(filter.Limit, maxPageLimit)
	flags, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list cluster flags")
	}
	return &models.Page{Flags: flags, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}
