package scoring

// Signal names a per-pair similarity measurement.
type Signal string

const (
	SignalPhonetic  Signal = "phonetic"
	SignalFuzzyName Signal = "fuzzy_name"
	SignalDOB       Signal = "dob"
	SignalAddress   Signal = "address"
	SignalBiometric Signal = "biometric"
	SignalExactID   Signal = "exact_id"
)

// ConfidenceTier buckets a combined score.
type ConfidenceTier string

const (
	TierLow      ConfidenceTier = "low"
	TierMedium   ConfidenceTier = "medium"
	TierHigh     ConfidenceTier = "high"
	TierVeryHigh ConfidenceTier = "very_high"
)

// Flag marks a signal that crossed its own sub-threshold.
type Flag string

const (
	FlagNamePhoneticMatch Flag = "name_phonetic_match"
	FlagNameFuzzyHigh     Flag = "name_fuzzy_high"
	FlagDOBMatch          Flag = "dob_match"
	FlagAddressSimilar    Flag = "address_similar"
	FlagFaceMatch         Flag = "face_match"
	FlagFingerprintMatch  Flag = "fingerprint_match"
	FlagAadhaarExactMatch Flag = "aadhaar_exact_match"
)

// SimilarityScore is the immutable result of comparing two records.
//
// Signals holds every raw signal that could be computed for the pair;
// Components holds the profile-level values that were weighted into Combined.
// A signal absent from both maps was not computable and carried no weight.
type SimilarityScore struct {
	Signals    map[Signal]float64
	Components map[Component]float64
	Combined   float64
	Tier       ConfidenceTier
	Flags      []Flag
	Profile    ProfileName
}

// HasFlag reports whether f fired.
func (s SimilarityScore) HasFlag(f Flag) bool {
	for _, x := range s.Flags {
		if x == f {
			return true
		}
	}
	return false
}

// WithThreshold returns a copy re-tiered against a caller-supplied medium floor.
func (s SimilarityScore) WithThreshold(threshold float64) SimilarityScore {
	s.Tier = Tier(s.Combined, threshold)
	return s
}
