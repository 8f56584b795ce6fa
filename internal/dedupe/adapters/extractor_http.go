package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"rollguard/internal/identity/models"
)

const defaultExtractorRetries = 3

// HTTPExtractor is a FeatureExtractor backed by a remote extraction service.
// Images are POSTed as octet streams to {base}/face and {base}/fingerprint.
// Transport errors and 5xx responses are retried with exponential backoff;
// 4xx responses are final.
type HTTPExtractor struct {
	baseURL    string
	httpClient *http.Client
	retries    uint64
}

type ExtractorOption func(*HTTPExtractor)

func WithHTTPClient(c *http.Client) ExtractorOption {
	return func(e *HTTPExtractor) {
		if c != nil {
			e.httpClient = c
		}
	}
}

func WithExtractorRetries(n uint64) ExtractorOption {
	return func(e *HTTPExtractor) {
		e.retries = n
	}
}

func NewHTTPExtractor(baseURL string, timeout time.Duration, opts ...ExtractorOption) *HTTPExtractor {
	e := &HTTPExtractor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retries:    defaultExtractorRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type faceResponse struct {
	Embedding []float64 `json:"embedding"`
	Quality   float64   `json:"quality"`
}

type minutiaResponse struct {
	X     int     `json:"x"`
	Y     int     `json:"y"`
	Angle float64 `json:"angle"`
	Type  string  `json:"type"`
}

type fingerprintResponse struct {
	Minutiae []minutiaResponse `json:"minutiae"`
	Quality  float64           `json:"quality"`
}

func (e *HTTPExtractor) FaceEmbedding(ctx context.Context, image []byte) ([]float64, float64, error) {
	var resp faceResponse
	if err := e.post(ctx, "/face", image, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Embedding, resp.Quality, nil
}

func (e *HTTPExtractor) FingerprintMinutiae(ctx context.Context, image []byte) ([]models.Minutia, float64, error) {
	var resp fingerprintResponse
	if err := e.post(ctx, "/fingerprint", image, &resp); err != nil {
		return nil, 0, err
	}
	points := make([]models.Minutia, len(resp.Minutiae))
	for i, m := range resp.Minutiae {
		points[i] = models.Minutia{X: m.X, Y: m.Y, Angle: m.Angle, Kind: models.MinutiaKind(m.Type)}
	}
	return points, resp.Quality, nil
}

func (e *HTTPExtractor) post(ctx context.Context, path string, image []byte, out any) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), e.retries), ctx)
	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(image))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build extractor request: %w", err))
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		resp, err := e.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("call extractor %s: %w", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err := fmt.Errorf("extractor %s: %s: %s", path, resp.Status, strings.TrimSpace(string(msg)))
			if resp.StatusCode < http.StatusInternalServerError {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode extractor %s response: %w", path, err))
		}
		return nil
	}, policy)
}
