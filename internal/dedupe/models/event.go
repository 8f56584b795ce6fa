package models

import "time"

// FlagEventType names a flag lifecycle event published to subscribers.
type FlagEventType string

const (
	EventFlagRaised   FlagEventType = "duplicate_flagged"
	EventFlagResolved FlagEventType = "duplicate_resolved"
)

// FlagEvent is the published form of a flag change. It carries ids and
// scores only, never personal data.
type FlagEvent struct {
	Type       FlagEventType `json:"type"`
	FlagID     string        `json:"flag_id"`
	Scope      string        `json:"scope"`
	RecordA    string        `json:"record_a"`
	RecordB    string        `json:"record_b"`
	Status     FlagStatus    `json:"status"`
	Combined   float64       `json:"combined"`
	Tier       string        `json:"tier"`
	RunID      string        `json:"run_id,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// NewFlagEvent snapshots f.
func NewFlagEvent(t FlagEventType, f *DuplicateFlag, now time.Time) FlagEvent {
	return FlagEvent{
		Type:       t,
		FlagID:     f.ID.String(),
		Scope:      f.Scope,
		RecordA:    f.RecordA,
		RecordB:    f.RecordB,
		Status:     f.Status,
		Combined:   f.Score.Combined,
		Tier:       string(f.Score.Tier),
		RunID:      f.RunID,
		OccurredAt: now,
	}
}
