package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rollguard/internal/dedupe/models"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/audit"
	"rollguard/pkg/platform/sentinel"
)

// Resolve applies a reviewer decision to a flag. The status transition, the
// record deactivation and the audit entry are written inside one transaction
// when the configured TxRunner provides one.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, res models.Resolution) (*models.DuplicateFlag, error) {
	if !res.Action.Target().IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown action "+string(res.Action))
	}
	if res.Reviewer == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reviewer is required")
	}

	ctx, span := s.tracer.Start(ctx, "dedupe.Resolve", trace.WithAttributes(
		attribute.String("dedupe.flag_id", id.String()),
		attribute.String("dedupe.action", string(res.Action)),
	))
	defer span.End()

	var resolved *models.DuplicateFlag
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		flag, err := s.flags.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "flag not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load flag")
		}

		from := flag.Status
		now := s.now()
		appealUntil := now.Add(s.appealWindow)
		if res.AppealUntil != nil {
			appealUntil = *res.AppealUntil
		}
		if err := flag.Apply(res, now, appealUntil); err != nil {
			return err
		}

		if err := s.flags.Transition(ctx, flag, from); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "flag was resolved concurrently")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update flag")
		}

		if err := s.deactivate(ctx, flag); err != nil {
			return err
		}

		if s.auditor != nil {
			if err := s.auditor.Emit(ctx, resolutionAudit(flag, res)); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
			}
		}
		resolved = flag
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncResolution(string(res.Action))
	s.publish(ctx, models.NewFlagEvent(models.EventFlagResolved, resolved, s.now()))
	s.logger.InfoContext(ctx, "duplicate flag resolved",
		"flag_id", resolved.ID,
		"action", res.Action,
		"status", resolved.Status,
		"reviewer", res.Reviewer,
	)
	return resolved, nil
}

func (s *Service) deactivate(ctx context.Context, flag *models.DuplicateFlag) error {
	if s.lifecycle == nil {
		return nil
	}
	var ids []string
	linkedTo := ""
	switch flag.Status {
	case models.StatusMerged:
		ids = []string{flag.Loser()}
		linkedTo = flag.MergedInto
	case models.StatusGhost:
		ids = []string{flag.RecordA, flag.RecordB}
	default:
		return nil
	}
	if err := s.lifecycle.Deactivate(ctx, ids, linkedTo); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate records")
	}
	return nil
}

func resolutionAudit(flag *models.DuplicateFlag, res models.Resolution) audit.Event {
	action := audit.EventDuplicateResolved
	switch res.Action {
	case models.ActionMerge:
		action = audit.EventVoterMerged
	case models.ActionGhost:
		action = audit.EventVoterGhosted
	case models.ActionEscalate:
		action = audit.EventDuplicateEscalated
	}
	meta := map[string]string{
		"scope":    flag.Scope,
		"record_a": flag.RecordA,
		"record_b": flag.RecordB,
		"action":   string(res.Action),
		"status":   string(flag.Status),
	}
	if flag.MergedInto != "" {
		meta["merged_into"] = flag.MergedInto
	}
	if flag.AppealUntil != nil {
		meta["appeal_until"] = flag.AppealUntil.UTC().Format(time.RFC3339)
	}
	return audit.Event{
		Category: action.Category(),
		Action:   string(action),
		Subject:  flag.ID.String(),
		ActorID:  res.Reviewer,
		Reason:   res.Note,
		Metadata: meta,
	}
}
