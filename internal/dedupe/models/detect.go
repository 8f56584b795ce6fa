package models

import (
	"time"

	identity "rollguard/internal/identity/models"
	"rollguard/internal/scoring"
)

const DefaultThreshold = 0.85

// DetectRequest parameterizes one detection run.
type DetectRequest struct {
	Scope      identity.Scope
	Threshold  float64
	Algorithms scoring.AlgorithmSet
	Profile    scoring.Profile
	DryRun     bool
}

// DetectResult summarizes a run. Flags holds only pairs not already flagged
// in the scope.
type DetectResult struct {
	RunID       string
	Scope       string
	Threshold   float64
	Algorithms  []scoring.Algorithm
	DryRun      bool
	Records     int
	Skipped     int
	Comparisons int64
	FlagsFound  int
	Flags       []*DuplicateFlag
	Cancelled   bool
	StartedAt   time.Time
	FinishedAt  time.Time
}

// ListFilter narrows flag listings. Zero values match everything.
type ListFilter struct {
	Status FlagStatus
	Scope  string
	Page   int
	Limit  int
}

// FlagPage is one page of flags ordered newest first.
type FlagPage struct {
	Flags []*DuplicateFlag
	Total int
	Page  int
	Limit int
}
