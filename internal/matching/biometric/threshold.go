package biometric

import (
	"math"
	"sort"
)

// Modality names a biometric capture type.
type Modality string

const (
	Face        Modality = "face"
	Fingerprint Modality = "fingerprint"
)

// DefaultQuality stands in for an unknown (zero) capture quality.
const DefaultQuality = 0.8

// probabilitySteepness is the slope of the similarity to probability sigmoid.
const probabilitySteepness = 10

// Threshold is a base match threshold and the quality penalty factor k.
type Threshold struct {
	Base float64
	K    float64
}

// DefaultThresholds holds the per-modality thresholds used by IsMatch.
var DefaultThresholds = map[Modality]Threshold{
	Face:        {Base: 0.6, K: 0.20},
	Fingerprint: {Base: 0.6, K: 0.15},
}

// AdaptiveThreshold raises base as capture quality drops:
// base + (1 - mean(qa, qb)) * k. Noisy captures must clear a higher bar.
func AdaptiveThreshold(base, qa, qb, k float64) float64 {
	avg := (effectiveQuality(qa) + effectiveQuality(qb)) / 2
	return base + (1-avg)*k
}

// IsMatch applies the modality's adaptive threshold to similarity and returns
// the decision together with the threshold it used.
func IsMatch(similarity, qa, qb float64, m Modality) (bool, float64) {
	t, ok := DefaultThresholds[m]
	if !ok {
		t = DefaultThresholds[Face]
	}
	threshold := AdaptiveThreshold(t.Base, qa, qb, t.K)
	return similarity >= threshold, threshold
}

// SimilarityToProbability maps a similarity onto (0,1) with a sigmoid
// centred on threshold.
func SimilarityToProbability(similarity, threshold float64) float64 {
	return 1 / (1 + math.Exp(-probabilitySteepness*(similarity-threshold)))
}

// Candidate is a gallery entry for BatchCompare.
type Candidate struct {
	ID        string
	Embedding []float64
}

// Match is a BatchCompare hit.
type Match struct {
	ID          string
	Similarity  float64
	Probability float64
}

// BatchCompare scores probe against every candidate and returns those at or
// above threshold, most similar first. Candidates with incompatible vectors
// are skipped.
func BatchCompare(probe []float64, gallery []Candidate, threshold float64) []Match {
	if len(probe) == 0 {
		return nil
	}
	var out []Match
	for _, c := range gallery {
		sim, ok := Cosine(probe, c.Embedding)
		if !ok || sim < threshold {
			continue
		}
		out = append(out, Match{
			ID:          c.ID,
			Similarity:  sim,
			Probability: SimilarityToProbability(sim, threshold),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out
}

func effectiveQuality(q float64) float64 {
	if q <= 0 {
		return DefaultQuality
	}
	return math.Min(q, 1)
}
