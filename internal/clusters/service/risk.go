package service

import (
	"math"
	"slices"
	"time"

	"rollguard/internal/clusters/models"
	"rollguard/internal/scoring"
)

const (
	baseLow    = 0.1
	baseMedium = 0.3
	baseHigh   = 0.5

	signalBump = 0.2

	minSurnameDiversity = 0.3
	minDOBSpread        = 0.5
	burstMinVoters      = 10
	burstWindowDays     = 7.0
)

// assess scores one address group. members must share an address hash and
// hold at least one subject.
func assess(members []scoring.Subject, t models.Thresholds) models.Assessment {
	count := len(members)
	a := models.Assessment{
		AddressHash:      members[0].Norm.Address.Hash,
		CanonicalAddress: members[0].Norm.Address.Canonical,
		VoterCount:       count,
		VelocityDays:     -1,
	}

	switch {
	case count >= t.High:
		a.RiskScore, a.RiskLevel = baseHigh, models.RiskHigh
	case count >= t.Medium:
		a.RiskScore, a.RiskLevel = baseMedium, models.RiskMedium
	default:
		a.RiskScore, a.RiskLevel = baseLow, models.RiskLow
	}
	a.Reasons = append(a.Reasons, models.ReasonVoterCount)

	a.SurnameDiversity = surnameDiversity(members)
	if a.SurnameDiversity < minSurnameDiversity {
		a.RiskScore += signalBump
		if a.RiskLevel == models.RiskLow {
			a.RiskLevel = models.RiskMedium
		}
		a.Reasons = append(a.Reasons, models.ReasonSurnameDiversity)
	}

	a.DOBClustering = dobClustering(members)
	if a.DOBClustering < minDOBSpread {
		a.RiskScore += signalBump
		a.RiskLevel = a.RiskLevel.Escalate()
		a.Reasons = append(a.Reasons, models.ReasonDOBClustering)
	}

	if span, ok := registrationSpan(members); ok {
		a.VelocityDays = span.Hours() / 24
		if count > burstMinVoters && a.VelocityDays < burstWindowDays {
			a.RiskScore += signalBump
			a.RiskLevel = a.RiskLevel.Escalate()
			a.Reasons = append(a.Reasons, models.ReasonRegistrationBurst)
		}
	}

	a.RiskScore = math.Min(a.RiskScore, 1)
	a.ExampleNames = exampleNames(members)
	return a
}

// surnameDiversity is |unique surnames| / count. Members without a name
// contribute no surname.
func surnameDiversity(members []scoring.Subject) float64 {
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m.Norm.Surname != "" {
			seen[m.Norm.Surname] = struct{}{}
		}
	}
	return math.Min(float64(len(seen))/float64(len(members)), 1)
}

// dobClustering is 1 - maxDobCount/count; low values mean many members share
// one birth date.
func dobClustering(members []scoring.Subject) float64 {
	counts := make(map[string]int, len(members))
	maxCount := 0
	for _, m := range members {
		if m.Record.DOB == "" {
			continue
		}
		counts[m.Record.DOB]++
		maxCount = max(maxCount, counts[m.Record.DOB])
	}
	return 1 - float64(maxCount)/float64(len(members))
}

func registrationSpan(members []scoring.Subject) (time.Duration, bool) {
	var first, last time.Time
	n := 0
	for _, m := range members {
		t := m.Record.RegisteredAt
		if t.IsZero() {
			continue
		}
		if n == 0 || t.Before(first) {
			first = t
		}
		if n == 0 || t.After(last) {
			last = t
		}
		n++
	}
	if n < 2 {
		return 0, false
	}
	return last.Sub(first), true
}

// exampleNames keeps the first distinct names in registration order.
func exampleNames(members []scoring.Subject) []string {
	ordered := slices.Clone(members)
	slices.SortStableFunc(ordered, func(x, y scoring.Subject) int {
		return x.Record.RegisteredAt.Compare(y.Record.RegisteredAt)
	})
	names := make([]string, 0, models.MaxExampleNames)
	seen := make(map[string]struct{}, models.MaxExampleNames)
	for _, m := range ordered {
		if len(names) == models.MaxExampleNames {
			break
		}
		if m.Record.Name == "" {
			continue
		}
		if _, ok := seen[m.Norm.FullName]; ok {
			continue
		}
		seen[m.Norm.FullName] = struct{}{}
		names = append(names, m.Record.Name)
	}
	return names
}
