package scoring

import (
	"rollguard/internal/identity/normalize"
	"rollguard/internal/matching/biometric"
	"rollguard/internal/matching/fuzzy"
)

// Diagnostics are reviewer-facing measurements that sit beside a score
// without being weighted into it.
type Diagnostics struct {
	// NameEdit is 1 - levenshtein/longest over the normalized full names.
	NameEdit         float64
	NameEditDistance int
	HasNames         bool

	// AddressConfidence is the share of city, district, state and pin each
	// record carries.
	AddressConfidenceA float64
	AddressConfidenceB float64

	// FaceDistance is the L2 distance of the normalized embeddings.
	FaceDistance    float64
	HasFaceDistance bool
	// SameFaceTemplate is set when both embeddings hash to the same
	// fingerprint, i.e. one capture enrolled twice.
	SameFaceTemplate bool
}

// Explain measures a and b for review.
func Explain(a, b Subject) Diagnostics {
	var d Diagnostics
	if nameA, nameB := a.Norm.FullName, b.Norm.FullName; nameA != "" && nameB != "" {
		d.HasNames = true
		d.NameEditDistance = fuzzy.Levenshtein(nameA, nameB)
		d.NameEdit = fuzzy.NormalizedLevenshtein(nameA, nameB)
	}
	d.AddressConfidenceA = normalize.AddressConfidence(a.Record.Address)
	d.AddressConfidenceB = normalize.AddressConfidence(b.Record.Address)
	if dist, ok := biometric.L2Distance(a.Record.Face, b.Record.Face); ok {
		d.FaceDistance = dist
		d.HasFaceDistance = true
		d.SameFaceTemplate = biometric.EmbeddingFingerprint(a.Record.Face) == biometric.EmbeddingFingerprint(b.Record.Face)
	}
	return d
}
