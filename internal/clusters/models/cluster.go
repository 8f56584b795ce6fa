package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "rollguard/pkg/domain-errors"
)

// ClusterStatus is the review state of an address cluster flag.
type ClusterStatus string

const (
	StatusOpen          ClusterStatus = "open"
	StatusUnderReview   ClusterStatus = "under_review"
	StatusResolved      ClusterStatus = "resolved"
	StatusFalsePositive ClusterStatus = "false_positive"
)

// IsLive reports whether the flag is still awaiting a review outcome. At most
// one live flag exists per address hash.
func (s ClusterStatus) IsLive() bool {
	return s == StatusOpen || s == StatusUnderReview
}

func (s ClusterStatus) IsValid() bool {
	switch s {
	case StatusOpen, StatusUnderReview, StatusResolved, StatusFalsePositive:
		return true
	}
	return false
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Escalate raises the level by one step; high stays high.
func (l RiskLevel) Escalate() RiskLevel {
	switch l {
	case RiskLow:
		return RiskMedium
	default:
		return RiskHigh
	}
}

func (l RiskLevel) IsValid() bool {
	return l == RiskLow || l == RiskMedium || l == RiskHigh
}

// Reasons explain which signals raised a cluster's risk.
const (
	ReasonVoterCount        = "voter_count"
	ReasonSurnameDiversity  = "low_surname_diversity"
	ReasonDOBClustering     = "dob_clustering"
	ReasonRegistrationBurst = "registration_burst"
)

// MaxExampleNames bounds the names kept on a flag for reviewers.
const MaxExampleNames = 5

// Thresholds are the group sizes at which an address becomes a low, medium
// or high risk cluster.
type Thresholds struct {
	Low    int
	Medium int
	High   int
}

func DefaultThresholds() Thresholds {
	return Thresholds{Low: 6, Medium: 12, High: 20}
}

func (t Thresholds) Validate() error {
	if t.Low < 2 {
		return dErrors.New(dErrors.CodeValidation, "low threshold must be at least 2")
	}
	if t.Medium < t.Low || t.High < t.Medium {
		return dErrors.New(dErrors.CodeValidation, "thresholds must satisfy low <= medium <= high")
	}
	return nil
}

// Assessment is the risk evaluation of one address group.
type Assessment struct {
	AddressHash      string
	CanonicalAddress string
	VoterCount       int
	RiskScore        float64
	RiskLevel        RiskLevel
	SurnameDiversity float64
	DOBClustering    float64
	// VelocityDays is the span between first and last registration; negative
	// when fewer than two members carry a registration time.
	VelocityDays float64
	Reasons      []string
	ExampleNames []string
}

// AddressClusterFlag records a suspicious concentration of voters at one
// normalized address.
type AddressClusterFlag struct {
	ID uuid.UUID
	Assessment
	Status    ClusterStatus
	Reviewer  string
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewAddressClusterFlag(a Assessment, now time.Time) *AddressClusterFlag {
	return &AddressClusterFlag{
		ID:         uuid.New(),
		Assessment: a,
		Status:     StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Refresh replaces the assessment of a live flag with a newer one.
func (f *AddressClusterFlag) Refresh(a Assessment, now time.Time) error {
	if !f.Status.IsLive() {
		return dErrors.New(dErrors.CodeInvariantViolation, "cannot refresh a "+string(f.Status)+" cluster flag")
	}
	f.Assessment = a
	f.UpdatedAt = now
	return nil
}

// Assign moves the flag under review by reviewer. A flag under review may be
// reassigned.
func (f *AddressClusterFlag) Assign(reviewer string, now time.Time) error {
	if !f.Status.IsLive() {
		return dErrors.New(dErrors.CodeInvariantViolation, "cannot assign a "+string(f.Status)+" cluster flag")
	}
	f.Status = StatusUnderReview
	f.Reviewer = reviewer
	f.UpdatedAt = now
	return nil
}

// Resolve closes the flag: resolved when the reviewer confirmed the anomaly,
// false_positive otherwise.
func (f *AddressClusterFlag) Resolve(reviewer string, confirmed bool, note string, now time.Time) error {
	if !f.Status.IsLive() {
		return dErrors.New(dErrors.CodeInvariantViolation, "cluster flag is already "+string(f.Status))
	}
	f.Status = StatusFalsePositive
	if confirmed {
		f.Status = StatusResolved
	}
	f.Reviewer = reviewer
	f.Note = note
	f.UpdatedAt = now
	return nil
}

// DetectResult summarizes one cluster run.
type DetectResult struct {
	RunID        string
	Thresholds   Thresholds
	Records      int
	Groups       int
	FlagsCreated int
	FlagsUpdated int
	Flags        []*AddressClusterFlag
	StartedAt    time.Time
	FinishedAt   time.Time
}

// ListFilter narrows cluster listings. Zero values match everything.
type ListFilter struct {
	Status    ClusterStatus
	RiskLevel RiskLevel
	Page      int
	Limit     int
}

// Page is one page of cluster flags ordered by descending risk.
type Page struct {
	Flags []*AddressClusterFlag
	Total int
	Page  int
	Limit int
}
