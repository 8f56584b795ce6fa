package adapters

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"rollguard/internal/matching/biometric"
)

// Capture files are named after the record: <id>.face and <id>.fingerprint.
const (
	faceCaptureExt        = ".face"
	fingerprintCaptureExt = ".fingerprint"
)

// CaptureDir serves raw captures from a flat directory, typically a mounted
// enrolment share.
type CaptureDir struct {
	root string
}

func NewCaptureDir(root string) *CaptureDir {
	return &CaptureDir{root: root}
}

func (d *CaptureDir) Captures(ctx context.Context, ids []string) (map[string]biometric.Captures, error) {
	if _, err := os.Stat(d.root); err != nil {
		return nil, fmt.Errorf("capture dir: %w", err)
	}
	out := make(map[string]biometric.Captures)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// ids name files directly and must not escape root
		if id == "" || filepath.Base(id) != id || id == "." || id == ".." {
			continue
		}
		face, err := d.read(id + faceCaptureExt)
		if err != nil {
			return nil, err
		}
		finger, err := d.read(id + fingerprintCaptureExt)
		if err != nil {
			return nil, err
		}
		if face == nil && finger == nil {
			continue
		}
		out[id] = biometric.Captures{Face: face, Fingerprint: finger}
	}
	return out, nil
}

// read returns nil when the file does not exist.
func (d *CaptureDir) read(name string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(d.root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read capture %s: %w", name, err)
	}
	return b, nil
}
