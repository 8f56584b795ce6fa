// Package biometric compares biometric feature vectors produced upstream.
//
// The engine never sees raw imagery. Face captures arrive as embeddings and
// fingerprints as minutiae sets; both are reduced to L2-normalized vectors
// before any comparison.
package biometric

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// unitTolerance is how far from ±1 a cosine may drift through rounding and
// still be reported as exactly ±1.
const unitTolerance = 1e-12

// NormalizeEmbedding returns v scaled to unit L2 norm. A zero vector is
// returned unchanged. The input slice is never modified.
func NormalizeEmbedding(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	n := floats.Norm(out, 2)
	if n == 0 {
		return out
	}
	floats.Scale(1/n, out)
	return out
}

// Comparable reports whether a and b can be compared: same non-zero
// dimension and a non-zero norm on both sides. A zero vector carries no
// signal.
func Comparable(a, b []float64) bool {
	return len(a) > 0 && len(a) == len(b) && floats.Norm(a, 2) != 0 && floats.Norm(b, 2) != 0
}

// Cosine is the cosine similarity of a and b. ok is false when the vectors
// are not Comparable. Identical directions give exactly 1.
func Cosine(a, b []float64) (sim float64, ok bool) {
	if !Comparable(a, b) {
		return 0, false
	}
	dot := floats.Dot(a, b) / (floats.Norm(a, 2) * floats.Norm(b, 2))
	switch {
	case dot >= 1-unitTolerance:
		return 1, true
	case dot <= -1+unitTolerance:
		return -1, true
	default:
		return dot, true
	}
}

// CosineSimilarity is Cosine with incomparable vectors scoring 0.
func CosineSimilarity(a, b []float64) float64 {
	sim, _ := Cosine(a, b)
	return sim
}

// L2Distance is the Euclidean distance between the normalized forms of a
// and b. ok is false when the vectors cannot be compared.
func L2Distance(a, b []float64) (d float64, ok bool) {
	if !Comparable(a, b) {
		return 0, false
	}
	return floats.Distance(NormalizeEmbedding(a), NormalizeEmbedding(b), 2), true
}

// EmbeddingFingerprint is a hex SHA-256 over the normalized vector, rendered
// with fixed precision, for exact-duplicate lookups.
func EmbeddingFingerprint(v []float64) string {
	if len(v) == 0 {
		return ""
	}
	parts := make([]string, len(v))
	for i, x := range NormalizeEmbedding(v) {
		// -0 and 0 must hash alike
		parts[i] = strconv.FormatFloat(x+0, 'f', 6, 64)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}
