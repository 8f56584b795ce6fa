package biometric

import (
	"context"

	"rollguard/internal/identity/models"
)

//go:generate mockgen -source=extractor.go -destination=mocks/mocks.go -package=mocks FeatureExtractor

// FeatureExtractor turns raw captures into the features this package compares.
// Implementations wrap a vendor SDK; the engine only consumes the output.
type FeatureExtractor interface {
	FaceEmbedding(ctx context.Context, image []byte) (embedding []float64, quality float64, err error)
	FingerprintMinutiae(ctx context.Context, image []byte) (points []models.Minutia, quality float64, err error)
}
