package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollguard/internal/dedupe/models"
	identity "rollguard/internal/identity/models"
	"rollguard/internal/matching/biometric"
)

type capturePublisher struct {
	key   string
	value []byte
	err   error
}

func (c *capturePublisher) Publish(_ context.Context, key string, value []byte) error {
	c.key = key
	c.value = value
	return c.err
}

func TestFlagPublisher_EncodesEventKeyedByFlag(t *testing.T) {
	sink := &capturePublisher{}
	p := NewFlagPublisher(sink)
	event := models.FlagEvent{
		Type:       models.EventFlagResolved,
		FlagID:     "f-1",
		Scope:      "district:pune",
		RecordA:    "a",
		RecordB:    "b",
		Status:     models.StatusMerged,
		Combined:   0.9,
		Tier:       "high",
		OccurredAt: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
	}

	require.NoError(t, p.PublishFlag(context.Background(), event))
	assert.Equal(t, "f-1", sink.key)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(sink.value, &decoded))
	assert.Equal(t, "duplicate_resolved", decoded["type"])
	assert.Equal(t, "merged", decoded["status"])
	assert.NotContains(t, decoded, "run_id", "empty run id is omitted")
}

func TestFlagPublisher_PropagatesBrokerError(t *testing.T) {
	p := NewFlagPublisher(&capturePublisher{err: errors.New("down")})
	assert.Error(t, p.PublishFlag(context.Background(), models.FlagEvent{FlagID: "x"}))
}

func TestHTTPExtractor_Face(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/face", r.URL.Path)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "jpeg-bytes", string(body))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embedding":[0.3,0.7,0.11],"quality":0.92}`))
	}))
	defer srv.Close()

	ex := NewHTTPExtractor(srv.URL+"/v1/", time.Second)
	emb, q, err := ex.FaceEmbedding(context.Background(), []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3, 0.7, 0.11}, emb)
	assert.Equal(t, 0.92, q)
	assert.Equal(t, int32(2), calls.Load(), "a 5xx is retried")
}

func TestHTTPExtractor_Fingerprint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fingerprint", r.URL.Path)
		_, _ = w.Write([]byte(`{"minutiae":[{"x":1,"y":2,"angle":45,"type":"bifurcation"}],"quality":0.8}`))
	}))
	defer srv.Close()

	points, q, err := NewHTTPExtractor(srv.URL, time.Second).FingerprintMinutiae(context.Background(), []byte("wsq"))
	require.NoError(t, err)
	assert.Equal(t, []identity.Minutia{{X: 1, Y: 2, Angle: 45, Kind: identity.MinutiaBifurcation}}, points)
	assert.Equal(t, 0.8, q)
}

func TestHTTPExtractor_ClientErrorIsFinal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "no face in image", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, _, err := NewHTTPExtractor(srv.URL, time.Second).FaceEmbedding(context.Background(), []byte("blank"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no face in image")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPExtractor_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, _, err := NewHTTPExtractor(srv.URL, time.Second, WithExtractorRetries(1)).FaceEmbedding(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCaptureDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "V001.face"), []byte("face-1"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "V001.fingerprint"), []byte("print-1"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "V002.fingerprint"), []byte("print-2"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(dir), "outside.face"), []byte("x"), 0o600))

	got, err := NewCaptureDir(dir).Captures(context.Background(), []string{"V001", "V002", "V003", "../outside"})
	require.NoError(t, err)
	assert.Equal(t, map[string]biometric.Captures{
		"V001": {Face: []byte("face-1"), Fingerprint: []byte("print-1")},
		"V002": {Fingerprint: []byte("print-2")},
	}, got)
}

func TestCaptureDir_MissingRoot(t *testing.T) {
	_, err := NewCaptureDir(filepath.Join(t.TempDir(), "absent")).Captures(context.Background(), []string{"V001"})
	assert.Error(t, err)
}
