package models

import "time"

type ClusterEventType string

const (
	EventClusterFlagged  ClusterEventType = "address_cluster_flagged"
	EventClusterReviewed ClusterEventType = "address_cluster_reviewed"
)

// ClusterEvent is the published form of a cluster flag change. It carries no
// names or addresses.
type ClusterEvent struct {
	Type        ClusterEventType `json:"type"`
	FlagID      string           `json:"flag_id"`
	AddressHash string           `json:"address_hash"`
	VoterCount  int              `json:"voter_count"`
	RiskScore   float64          `json:"risk_score"`
	RiskLevel   RiskLevel        `json:"risk_level"`
	Status      ClusterStatus    `json:"status"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

func NewClusterEvent(t ClusterEventType, f *AddressClusterFlag, now time.Time) ClusterEvent {
	return ClusterEvent{
		Type:        t,
		FlagID:      f.ID.String(),
		AddressHash: f.AddressHash,
		VoterCount:  f.VoterCount,
		RiskScore:   f.RiskScore,
		RiskLevel:   f.RiskLevel,
		Status:      f.Status,
		OccurredAt:  now,
	}
}
