package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks RecordSource,RecordLifecycle,AuditPublisher,EventPublisher,RunLock,CaptureSource

import (
	"context"
	"time"

	"rollguard/internal/dedupe/models"
	identity "rollguard/internal/identity/models"
	"rollguard/internal/matching/biometric"
	"rollguard/pkg/platform/audit"
)

// RecordSource yields the population of a scope. Records are read-only.
type RecordSource interface {
	Fetch(ctx context.Context, scope identity.Scope) ([]identity.IdentityRecord, error)
}

// RecordLifecycle soft-deactivates records taken off the roll by a
// resolution. linkedTo is the surviving record of a merge, empty otherwise.
type RecordLifecycle interface {
	Deactivate(ctx context.Context, ids []string, linkedTo string) error
}

// AuditPublisher records roll changes. It is fail-closed: an error must
// abort the resolution.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// EventPublisher notifies subscribers of flag changes. Failures are logged
// and never fail the operation.
type EventPublisher interface {
	PublishFlag(ctx context.Context, event models.FlagEvent) error
}

// RunLock prevents overlapping detection runs on one scope. Acquire returns
// sentinel.ErrConflict when the key is held.
type RunLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// TxRunner runs fn so that every store reached through its ctx commits or
// rolls back together.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CaptureSource supplies raw captures for records enrolled without extracted
// features. Ids with nothing on file are absent from the result.
type CaptureSource interface {
	Captures(ctx context.Context, ids []string) (map[string]biometric.Captures, error)
}
