package scoring

// DefaultMediumThreshold is the floor of the medium tier when the caller does
// not supply one.
const DefaultMediumThreshold = 0.85

const (
	highThreshold     = 0.90
	veryHighThreshold = 0.95
)

// Tier buckets score. Scores above 0.95 are very_high and above 0.90 high;
// medium starts above mediumFloor, or above 0.85 when mediumFloor <= 0.
func Tier(score, mediumFloor float64) ConfidenceTier {
	if mediumFloor <= 0 {
		mediumFloor = DefaultMediumThreshold
	}
	switch {
	case score > veryHighThreshold:
		return TierVeryHigh
	case score > highThreshold:
		return TierHigh
	case score > mediumFloor:
		return TierMedium
	default:
		return TierLow
	}
}
