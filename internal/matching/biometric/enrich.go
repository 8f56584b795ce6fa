package biometric

import (
	"context"
	"fmt"

	"rollguard/internal/identity/models"
)

// Captures are raw biometric images awaiting feature extraction. Either may be nil.
type Captures struct {
	Face        []byte
	Fingerprint []byte
}

// Enrich returns a copy of rec with features extracted from captures. Features
// already present on rec are kept; a nil capture leaves its modality alone.
func Enrich(ctx context.Context, ex FeatureExtractor, rec models.IdentityRecord, c Captures) (models.IdentityRecord, error) {
	out := rec
	if len(c.Face) > 0 && !rec.HasFace() {
		emb, q, err := ex.FaceEmbedding(ctx, c.Face)
		if err != nil {
			return rec, fmt.Errorf("extract face for %s: %w", rec.ID, err)
		}
		out.Face = NormalizeEmbedding(emb)
		out.Quality.Face = q
	}
	if len(c.Fingerprint) > 0 && !rec.HasFingerprint() {
		points, q, err := ex.FingerprintMinutiae(ctx, c.Fingerprint)
		if err != nil {
			return rec, fmt.Errorf("extract fingerprint for %s: %w", rec.ID, err)
		}
		out.Fingerprint = points
		out.Quality.Fingerprint = q
	}
	return out, nil
}
