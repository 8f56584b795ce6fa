package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks RecordSource,AuditPublisher,EventPublisher

import (
	"context"

	"rollguard/internal/clusters/models"
	identity "rollguard/internal/identity/models"
	"rollguard/pkg/platform/audit"
)

// RecordSource yields the active roll for a scope.
type RecordSource interface {
	Fetch(ctx context.Context, scope identity.Scope) ([]identity.IdentityRecord, error)
}

// AuditPublisher records review outcomes. Errors abort the review action.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// EventPublisher notifies subscribers of cluster flag changes. Failures are
// logged only.
type EventPublisher interface {
	PublishCluster(ctx context.Context, event models.ClusterEvent) error
}
