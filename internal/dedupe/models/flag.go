package models

import (
	"time"

	"github.com/google/uuid"

	"rollguard/internal/scoring"
	dErrors "rollguard/pkg/domain-errors"
)

// FlagStatus is the review state of a DuplicateFlag.
type FlagStatus string

const (
	StatusPending   FlagStatus = "pending"
	StatusMerged    FlagStatus = "merged"
	StatusRejected  FlagStatus = "rejected"
	StatusGhost     FlagStatus = "ghost"
	StatusEscalated FlagStatus = "escalated"
)

// IsTerminal reports whether no further transition is allowed.
func (s FlagStatus) IsTerminal() bool {
	return s == StatusMerged || s == StatusRejected || s == StatusGhost
}

func (s FlagStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusMerged, StatusRejected, StatusGhost, StatusEscalated:
		return true
	}
	return false
}

// Action is a reviewer decision on a flag.
type Action string

const (
	ActionMerge    Action = "merge"
	ActionReject   Action = "reject"
	ActionGhost    Action = "ghost"
	ActionEscalate Action = "escalate"
)

// ParseAction accepts the action names plus the "mark-as-ghost" alias.
func ParseAction(raw string) (Action, error) {
	switch raw {
	case string(ActionMerge):
		return ActionMerge, nil
	case string(ActionReject):
		return ActionReject, nil
	case string(ActionGhost), "mark-as-ghost":
		return ActionGhost, nil
	case string(ActionEscalate):
		return ActionEscalate, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown resolution action: "+raw)
}

// Target is the status an action moves a flag to.
func (a Action) Target() FlagStatus {
	switch a {
	case ActionMerge:
		return StatusMerged
	case ActionReject:
		return StatusRejected
	case ActionGhost:
		return StatusGhost
	case ActionEscalate:
		return StatusEscalated
	}
	return ""
}

// Deactivates reports whether the action takes records off the active roll.
func (a Action) Deactivates() bool {
	return a == ActionMerge || a == ActionGhost
}

// DuplicateFlag records that two records in a scope likely describe the same
// person.
//
// Invariants:
//   - RecordA < RecordB; the pair is unordered and unique within Scope
//   - Score is the snapshot taken when the flag was raised
//   - Status only moves forward: pending -> {merged, rejected, ghost, escalated},
//     escalated -> {merged, rejected, ghost}
type DuplicateFlag struct {
	ID          uuid.UUID
	Scope       string
	RecordA     string
	RecordB     string
	Score       scoring.SimilarityScore
	Status      FlagStatus
	RunID       string
	Reviewer    string
	Note        string
	MergedInto  string
	AppealUntil *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ResolvedAt  *time.Time
}

// NewDuplicateFlag orders the pair and returns a pending flag.
func NewDuplicateFlag(scope, idA, idB string, score scoring.SimilarityScore, now time.Time) (*DuplicateFlag, error) {
	if idA == "" || idB == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "flag requires two record ids")
	}
	if idA == idB {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "a record cannot be flagged against itself")
	}
	a, b := OrderPair(idA, idB)
	return &DuplicateFlag{
		ID:        uuid.New(),
		Scope:     scope,
		RecordA:   a,
		RecordB:   b,
		Score:     score,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// OrderPair returns the ids in canonical (ascending) order.
func OrderPair(idA, idB string) (string, string) {
	if idB < idA {
		return idB, idA
	}
	return idA, idB
}

// PairKey identifies an unordered pair within a scope.
func PairKey(scope, idA, idB string) string {
	a, b := OrderPair(idA, idB)
	return scope + "|" + a + "|" + b
}

func (f *DuplicateFlag) Key() string {
	return PairKey(f.Scope, f.RecordA, f.RecordB)
}

// IsUnresolved reports whether the flag still awaits a final decision.
func (f *DuplicateFlag) IsUnresolved() bool {
	return !f.Status.IsTerminal()
}

// CanApply reports whether action is a legal transition from the current status.
func (f *DuplicateFlag) CanApply(action Action) bool {
	switch f.Status {
	case StatusPending:
		return action.Target() != ""
	case StatusEscalated:
		return action != ActionEscalate && action.Target() != ""
	default:
		return false
	}
}

// Resolution carries reviewer metadata for a decision.
type Resolution struct {
	Action   Action
	Reviewer string
	Note     string
	// MergedInto selects the surviving record of a merge; it defaults to RecordA.
	MergedInto string
	// AppealUntil overrides the computed appeal window end.
	AppealUntil *time.Time
}

// Apply performs the transition. appealUntil is recorded for deactivating
// actions only.
func (f *DuplicateFlag) Apply(res Resolution, now time.Time, appealUntil time.Time) error {
	if !f.CanApply(res.Action) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"cannot "+string(res.Action)+" a flag in status "+string(f.Status))
	}
	if res.Action == ActionMerge {
		survivor := res.MergedInto
		if survivor == "" {
			survivor = f.RecordA
		}
		if survivor != f.RecordA && survivor != f.RecordB {
			return dErrors.New(dErrors.CodeValidation, "merge survivor must be one of the flagged records")
		}
		f.MergedInto = survivor
	}
	f.Status = res.Action.Target()
	f.Reviewer = res.Reviewer
	f.Note = res.Note
	f.UpdatedAt = now
	if res.Action.Deactivates() {
		until := appealUntil
		f.AppealUntil = &until
	}
	if f.Status.IsTerminal() {
		resolved := now
		f.ResolvedAt = &resolved
	}
	return nil
}

// Loser is the record deactivated by a merge.
func (f *DuplicateFlag) Loser() string {
	if f.MergedInto == f.RecordB {
		return f.RecordA
	}
	return f.RecordB
}
