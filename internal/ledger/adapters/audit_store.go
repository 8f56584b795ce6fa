package adapters

import (
	"context"
	"fmt"
	"time"

	"rollguard/internal/ledger/models"
	audit "rollguard/pkg/platform/audit"
)

// Appender is the slice of the ledger service the audit store needs.
type Appender interface {
	Append(ctx context.Context, chain string, payload any) (*models.Block, error)
}

// AuditStore implements audit.Store by appending every event to the audit
// chain, making the audit trail tamper-evident.
type AuditStore struct {
	ledger Appender
	chain  string
}

func NewAuditStore(ledger Appender) *AuditStore {
	return &AuditStore{ledger: ledger, chain: models.ChainAudit}
}

func (s *AuditStore) Append(ctx context.Context, event audit.Event) error {
	if _, err := s.ledger.Append(ctx, s.chain, eventPayload(event)); err != nil {
		return fmt.Errorf("append audit block: %w", err)
	}
	return nil
}

// eventPayload flattens event into the block payload. Empty fields are
// omitted so the encoding does not depend on zero values.
func eventPayload(e audit.Event) map[string]any {
	p := map[string]any{
		"action":      e.Action,
		"category":    string(e.Category),
		"subject":     e.Subject,
		"occurred_at": e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if e.ActorID != "" {
		p["actor_id"] = e.ActorID
	}
	if e.Reason != "" {
		p["reason"] = e.Reason
	}
	if len(e.Metadata) > 0 {
		p["metadata"] = e.Metadata
	}
	return p
}
