package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance: changes to the
	// voter roll such as merges and ghost removals. They are written to the
	// tamper-evident audit chain.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers review workflow activity useful for
	// operational visibility.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	Action    string
	// Subject is the primary entity acted on (flag id, cluster id, record id).
	Subject string
	// ActorID is the reviewer or system component that performed the action.
	ActorID  string
	Reason   string
	Metadata map[string]string
}

type AuditEvent string

const (
	EventDuplicateResolved  AuditEvent = "duplicate_resolved"
	EventVoterMerged        AuditEvent = "voter_merged"
	EventVoterGhosted       AuditEvent = "voter_ghosted"
	EventDuplicateEscalated AuditEvent = "duplicate_escalated"

	EventClusterAssigned AuditEvent = "cluster_assigned"
	EventClusterResolved AuditEvent = "cluster_resolved"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventDuplicateResolved:  CategoryCompliance,
	EventVoterMerged:        CategoryCompliance,
	EventVoterGhosted:       CategoryCompliance,
	EventDuplicateEscalated: CategoryOperations,
	EventClusterAssigned:    CategoryOperations,
	EventClusterResolved:    CategoryCompliance,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
