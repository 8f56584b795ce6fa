package models

import (
	"time"
)

// IdentityRecord is a read-only snapshot of a voter identity as held by the roll.
// The engine never mutates a record; status changes are applied by the record
// store through the resolution hook.
type IdentityRecord struct {
	ID           string
	Name         string
	DOB          string // ISO date, YYYY-MM-DD
	NationalID   string
	Address      Address
	Face         []float64 // optional embedding
	Fingerprint  []Minutia // optional minutiae set
	Quality      Quality
	RegisteredAt time.Time
	Active       bool
}

// Address holds the raw address components of a record. Any field may be empty.
type Address struct {
	House    string
	Street   string
	Locality string
	City     string
	District string
	State    string
	PIN      string
}

// Minutia is a single fingerprint feature point.
type Minutia struct {
	X     int
	Y     int
	Angle float64 // degrees
	Kind  MinutiaKind
}

type MinutiaKind string

const (
	MinutiaRidgeEnding MinutiaKind = "ridge_ending"
	MinutiaBifurcation MinutiaKind = "bifurcation"
)

// Quality carries capture quality scores in [0,1]. Zero means the capture
// device reported nothing.
type Quality struct {
	Face        float64
	Fingerprint float64
}

// HasFace reports whether the record carries a usable face embedding.
func (r IdentityRecord) HasFace() bool { return len(r.Face) > 0 }

// HasFingerprint reports whether the record carries any minutiae.
func (r IdentityRecord) HasFingerprint() bool { return len(r.Fingerprint) > 0 }

// Validate reports the first structural problem that makes a record unusable
// for batch processing.
func (r IdentityRecord) Validate() error {
	if r.ID == "" {
		return ErrMissingID
	}
	if r.DOB != "" {
		if _, err := time.Parse(time.DateOnly, r.DOB); err != nil {
			return ErrUnreadableDOB
		}
	}
	return nil
}

// BirthDate parses DOB. ok is false when DOB is empty or unreadable.
func (r IdentityRecord) BirthDate() (time.Time, bool) {
	if r.DOB == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, r.DOB)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
