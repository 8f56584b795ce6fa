package biometric

import (
	"math"

	"rollguard/internal/identity/models"
)

// MinutiaeVectorLen is the fixed length of an encoded minutiae vector.
const MinutiaeVectorLen = 256

// MinutiaeToVector folds minutiae into a fixed-length accumulator. Each point
// lands in bucket (x*1000 + y) mod 256 and adds sin(angle) to it; the result
// is L2-normalized. Points at 0° contribute nothing, so a set made only of
// those encodes to the zero vector.
func MinutiaeToVector(points []models.Minutia) []float64 {
	v := make([]float64, MinutiaeVectorLen)
	for _, p := range points {
		bucket := (p.X*1000 + p.Y) % MinutiaeVectorLen
		if bucket < 0 {
			bucket += MinutiaeVectorLen
		}
		v[bucket] += math.Sin(p.Angle * math.Pi / 180)
	}
	return NormalizeEmbedding(v)
}

// CompareMinutiae is the cosine similarity of two encoded minutiae sets,
// floored at zero. ok is false when either set is empty or encodes to the
// zero vector; the fingerprint signal is then absent.
func CompareMinutiae(a, b []models.Minutia) (sim float64, ok bool) {
	if len(a) == 0 || len(b) == 0 {
		return 0, false
	}
	sim, ok = Cosine(MinutiaeToVector(a), MinutiaeToVector(b))
	if !ok {
		return 0, false
	}
	return math.Max(0, sim), true
}
