// Package scoring combines per-signal similarities into one confidence score.
//
// Scoring is pure: it reads two immutable records and returns a fresh
// SimilarityScore. A Scorer may be shared by any number of goroutines.
package scoring

import (
	"strings"
	"time"

	"rollguard/internal/identity/models"
	"rollguard/internal/identity/normalize"
	"rollguard/internal/matching/biometric"
	"rollguard/internal/matching/fuzzy"
)

// Sub-thresholds at which individual signals raise a flag.
const (
	defaultFuzzyFlagThreshold   = 0.85
	defaultAddressFlagThreshold = 0.7
)

// phoneticSecondary is the phonetic score when only the Metaphone codes agree.
const phoneticSecondary = 0.5

// Demographic sub-score contributions.
const (
	dobFactor         = 1.0
	pinFactor         = 0.3
	districtFactor    = 0.2
	dobWithinOneYear  = 0.8
	dobWithinTwoYears = 0.5
)

// Subject is a record paired with its normalized view, so callers comparing
// one record many times normalize it once.
type Subject struct {
	Record models.IdentityRecord
	Norm   models.NormalizedRecord
}

// Prepare normalizes r for repeated comparison.
func Prepare(r models.IdentityRecord) Subject {
	return Subject{Record: r, Norm: normalize.Record(r)}
}

// Scorer computes SimilarityScores.
type Scorer struct {
	fuzzyFlagThreshold   float64
	addressFlagThreshold float64
	mediumThreshold      float64
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithFuzzyFlagThreshold sets the Jaro-Winkler level that raises name_fuzzy_high.
func WithFuzzyFlagThreshold(t float64) Option {
	return func(s *Scorer) {
		if t > 0 {
			s.fuzzyFlagThreshold = t
		}
	}
}

// WithAddressFlagThreshold sets the address similarity that raises address_similar.
func WithAddressFlagThreshold(t float64) Option {
	return func(s *Scorer) {
		if t > 0 {
			s.addressFlagThreshold = t
		}
	}
}

// WithMediumThreshold sets the floor of the medium tier.
func WithMediumThreshold(t float64) Option {
	return func(s *Scorer) {
		if t > 0 {
			s.mediumThreshold = t
		}
	}
}

// New creates a Scorer with default sub-thresholds.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		fuzzyFlagThreshold:   defaultFuzzyFlagThreshold,
		addressFlagThreshold: defaultAddressFlagThreshold,
		mediumThreshold:      DefaultMediumThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScorePair compares two records using only the algorithms in algs, weighted
// by profile.
func (s *Scorer) ScorePair(a, b models.IdentityRecord, algs AlgorithmSet, profile Profile) SimilarityScore {
	return s.ScoreSubjects(Prepare(a), Prepare(b), algs, profile)
}

// ScoreSubjects is ScorePair over already prepared subjects.
func (s *Scorer) ScoreSubjects(a, b Subject, algs AlgorithmSet, profile Profile) SimilarityScore {
	f := s.measure(a, b, algs)

	var components map[Component]float64
	switch profile.Name {
	case ProfileML:
		components = f.mlComponents()
	default:
		components = f.ruleComponents()
	}

	combined := profile.combine(components)
	return SimilarityScore{
		Signals:    f.signals,
		Components: components,
		Combined:   combined,
		Tier:       Tier(combined, s.mediumThreshold),
		Flags:      f.flags,
		Profile:    profile.Name,
	}
}

// features are the raw measurements for one pair.
type features struct {
	signals map[Signal]float64
	flags   []Flag

	// demographic inputs used by the ML profile
	dobProximity float64
	hasDOB       bool
	pinEqual     bool
	hasPIN       bool
	districtJW   float64
	hasDistrict  bool
}

func (s *Scorer) measure(a, b Subject, algs AlgorithmSet) features {
	f := features{signals: make(map[Signal]float64, 6)}

	nameA, nameB := a.Norm.FullName, b.Norm.FullName
	namesPresent := nameA != "" && nameB != ""

	if algs.Has(AlgoPhonetic) && namesPresent {
		var v float64
		switch {
		case a.Norm.Soundex != "" && a.Norm.Soundex == b.Norm.Soundex:
			v = 1
			f.flag(FlagNamePhoneticMatch)
		case a.Norm.Metaphone != "" && a.Norm.Metaphone == b.Norm.Metaphone:
			v = phoneticSecondary
		}
		f.signals[SignalPhonetic] = v
	}

	if algs.Has(AlgoFuzzy) && namesPresent {
		v := fuzzy.JaroWinkler(nameA, nameB)
		f.signals[SignalFuzzyName] = v
		if v > s.fuzzyFlagThreshold {
			f.flag(FlagNameFuzzyHigh)
		}
	}

	if algs.Has(AlgoDOB) {
		da, okA := a.Record.BirthDate()
		db, okB := b.Record.BirthDate()
		if okA && okB {
			f.hasDOB = true
			if da.Equal(db) {
				f.signals[SignalDOB] = 1
				f.dobProximity = 1
				f.flag(FlagDOBMatch)
			} else {
				f.signals[SignalDOB] = 0
				f.dobProximity = dobProximity(da, db)
			}
		}
	}

	if algs.Has(AlgoAddress) {
		if v, ok := fuzzy.AddressSimilarity(a.Norm.Address, b.Norm.Address); ok {
			f.signals[SignalAddress] = v
			if v > s.addressFlagThreshold {
				f.flag(FlagAddressSimilar)
			}
		}
		pa, pb := a.Norm.Address.PIN, b.Norm.Address.PIN
		if pa != "" && pb != "" {
			f.hasPIN = true
			f.pinEqual = pa == pb
		}
		da, db := a.Norm.Address.District, b.Norm.Address.District
		if da != "" && db != "" {
			f.hasDistrict = true
			f.districtJW = fuzzy.JaroWinkler(da, db)
		}
	}

	// A zero vector on either side leaves the modality absent.
	var bio []float64
	if algs.Has(AlgoFace) {
		if sim, ok := biometric.Cosine(a.Record.Face, b.Record.Face); ok {
			bio = append(bio, clamp01(sim))
			if match, _ := biometric.IsMatch(sim, a.Record.Quality.Face, b.Record.Quality.Face, biometric.Face); match {
				f.flag(FlagFaceMatch)
			}
		}
	}
	if algs.Has(AlgoFingerprint) {
		if sim, ok := biometric.CompareMinutiae(a.Record.Fingerprint, b.Record.Fingerprint); ok {
			bio = append(bio, sim)
			if match, _ := biometric.IsMatch(sim, a.Record.Quality.Fingerprint, b.Record.Quality.Fingerprint, biometric.Fingerprint); match {
				f.flag(FlagFingerprintMatch)
			}
		}
	}
	if len(bio) > 0 {
		var sum float64
		for _, v := range bio {
			sum += v
		}
		f.signals[SignalBiometric] = sum / float64(len(bio))
	}

	if algs.Has(AlgoExactID) {
		ia, ib := canonicalID(a.Record.NationalID), canonicalID(b.Record.NationalID)
		if ia != "" && ib != "" {
			if ia == ib {
				f.signals[SignalExactID] = 1
				f.flag(FlagAadhaarExactMatch)
			} else {
				f.signals[SignalExactID] = 0
			}
		}
	}

	return f
}

func (f *features) flag(fl Flag) { f.flags = append(f.flags, fl) }

func (f features) ruleComponents() map[Component]float64 {
	out := make(map[Component]float64, len(f.signals))
	for sig, v := range f.signals {
		out[Component(sig)] = v
	}
	return out
}

func (f features) mlComponents() map[Component]float64 {
	out := make(map[Component]float64, 4)

	var demo, factors float64
	if f.hasDOB {
		demo += f.dobProximity * dobFactor
		factors += dobFactor
	}
	if f.hasPIN {
		if f.pinEqual {
			demo += pinFactor
		}
		factors += pinFactor
	}
	if f.hasDistrict {
		demo += f.districtJW * districtFactor
		factors += districtFactor
	}
	if factors > 0 {
		out[ComponentDemographic] = demo / factors
	}

	if v, ok := f.signals[SignalBiometric]; ok {
		out[ComponentBiometric] = v
	}
	if v, ok := f.signals[SignalAddress]; ok {
		out[ComponentAddress] = v
	}

	ph, hasPh := f.signals[SignalPhonetic]
	jw, hasJW := f.signals[SignalFuzzyName]
	switch {
	case hasPh && hasJW:
		out[ComponentName] = 0.5*ph + 0.5*jw
	case hasJW:
		out[ComponentName] = jw
	case hasPh:
		out[ComponentName] = ph
	}
	return out
}

// dobProximity gives partial credit for birth years one or two apart.
func dobProximity(a, b time.Time) float64 {
	diff := a.Year() - b.Year()
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff <= 1:
		return dobWithinOneYear
	case diff <= 2:
		return dobWithinTwoYears
	default:
		return 0
	}
}

// canonicalID strips separators so "1234 5678 9012" equals "1234-5678-9012".
func canonicalID(id string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(id))
}
