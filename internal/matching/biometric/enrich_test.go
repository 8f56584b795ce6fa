package biometric_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"rollguard/internal/identity/models"
	"rollguard/internal/matching/biometric"
	"rollguard/internal/matching/biometric/mocks"
)

type EnrichSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	extractor *mocks.MockFeatureExtractor
}

func TestEnrichSuite(t *testing.T) {
	suite.Run(t, new(EnrichSuite))
}

func (s *EnrichSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.extractor = mocks.NewMockFeatureExtractor(s.ctrl)
}

func (s *EnrichSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *EnrichSuite) TestExtractsMissingFeatures() {
	ctx := context.Background()
	face := []byte("face-jpeg")
	fp := []byte("fp-wsq")
	points := []models.Minutia{{X: 1, Y: 1, Angle: 45}}

	s.extractor.EXPECT().FaceEmbedding(ctx, face).Return([]float64{3, 4}, 0.9, nil)
	s.extractor.EXPECT().FingerprintMinutiae(ctx, fp).Return(points, 0.7, nil)

	rec := models.IdentityRecord{ID: "v1"}
	got, err := biometric.Enrich(ctx, s.extractor, rec, biometric.Captures{Face: face, Fingerprint: fp})
	s.Require().NoError(err)
	s.InDeltaSlice([]float64{0.6, 0.8}, got.Face, 1e-12)
	s.Equal(0.9, got.Quality.Face)
	s.Equal(points, got.Fingerprint)
	s.Equal(0.7, got.Quality.Fingerprint)
	s.False(rec.HasFace(), "input record stays untouched")
}

func (s *EnrichSuite) TestKeepsExistingFeatures() {
	rec := models.IdentityRecord{ID: "v1", Face: []float64{1, 0}}
	got, err := biometric.Enrich(context.Background(), s.extractor, rec, biometric.Captures{Face: []byte("x")})
	s.Require().NoError(err)
	s.Equal(rec.Face, got.Face)
}

func (s *EnrichSuite) TestExtractorFailure() {
	s.extractor.EXPECT().FaceEmbedding(gomock.Any(), gomock.Any()).Return(nil, 0.0, errors.New("sdk down"))

	_, err := biometric.Enrich(context.Background(), s.extractor, models.IdentityRecord{ID: "v9"}, biometric.Captures{Face: []byte("x")})
	s.Require().Error(err)
	s.Contains(err.Error(), "v9")
}
