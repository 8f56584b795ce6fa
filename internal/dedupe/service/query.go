package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"rollguard/internal/dedupe/models"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/sentinel"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.DuplicateFlag, error) {
	flag, err := s.flags.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "flag not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load flag")
	}
	return flag, nil
}

// List returns one page of flags, newest first.
func (s *Service) List(ctx context.Context, filter models.ListFilter) (*models.FlagPage, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown flag status "+string(filter.Status))
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultPageLimit
	}
	if filter.Limit > maxPageLimit {
		filter.Limit = maxPageLimit
	}
	flags, total, err := s.flags.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list flags")
	}
	return &models.FlagPage{Flags: flags, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}
