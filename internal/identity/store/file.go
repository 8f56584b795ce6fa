package store

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"rollguard/internal/identity/models"
)

// fileRecord is the on-disk form of a record. JSON input parses too, since
// it is valid YAML. The Postgres store reuses it as the JSONB document.
type fileRecord struct {
	ID           string        `yaml:"id" json:"id"`
	Name         string        `yaml:"name" json:"name"`
	DOB          string        `yaml:"dob" json:"dob"`
	NationalID   string        `yaml:"national_id" json:"national_id"`
	Address      fileAddress   `yaml:"address" json:"address"`
	Face         []float64     `yaml:"face,omitempty" json:"face,omitempty"`
	Fingerprint  []fileMinutia `yaml:"fingerprint,omitempty" json:"fingerprint,omitempty"`
	Quality      fileQuality   `yaml:"quality" json:"quality"`
	RegisteredAt string        `yaml:"registered_at,omitempty" json:"registered_at,omitempty"`
	Active       *bool         `yaml:"active,omitempty" json:"active,omitempty"`
}

type fileAddress struct {
	House    string `yaml:"house" json:"house"`
	Street   string `yaml:"street" json:"street"`
	Locality string `yaml:"locality" json:"locality"`
	City     string `yaml:"city" json:"city"`
	District string `yaml:"district" json:"district"`
	State    string `yaml:"state" json:"state"`
	PIN      string `yaml:"pin" json:"pin"`
}

type fileMinutia struct {
	X     int     `yaml:"x" json:"x"`
	Y     int     `yaml:"y" json:"y"`
	Angle float64 `yaml:"angle" json:"angle"`
	Kind  string  `yaml:"type" json:"type"`
}

type fileQuality struct {
	Face        float64 `yaml:"face,omitempty" json:"face,omitempty"`
	Fingerprint float64 `yaml:"fingerprint,omitempty" json:"fingerprint,omitempty"`
}

type rollFile struct {
	Records []fileRecord `yaml:"records" json:"records"`
}

// LoadFile reads a roll file into an in-memory store.
func LoadFile(path string) (*InMemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roll file: %w", err)
	}
	defer f.Close()
	records, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("roll file %s: %w", path, err)
	}
	return NewInMemory(records...), nil
}

// Decode parses either a top-level list of records or a document with a
// "records" key. Records without an active field are active. A record whose
// registered_at cannot be parsed keeps a zero RegisteredAt.
func Decode(r io.Reader) ([]models.IdentityRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read roll: %w", err)
	}

	var list []fileRecord
	if err := yaml.Unmarshal(data, &list); err != nil {
		var doc rollFile
		if docErr := yaml.Unmarshal(data, &doc); docErr != nil {
			return nil, fmt.Errorf("decode roll: %w", err)
		}
		list = doc.Records
	}

	out := make([]models.IdentityRecord, 0, len(list))
	for _, fr := range list {
		out = append(out, fr.toModel())
	}
	return out, nil
}

func (fr fileRecord) toModel() models.IdentityRecord {
	r := models.IdentityRecord{
		ID:         fr.ID,
		Name:       fr.Name,
		DOB:        fr.DOB,
		NationalID: fr.NationalID,
		Address: models.Address{
			House:    fr.Address.House,
			Street:   fr.Address.Street,
			Locality: fr.Address.Locality,
			City:     fr.Address.City,
			District: fr.Address.District,
			State:    fr.Address.State,
			PIN:      fr.Address.PIN,
		},
		Face:    fr.Face,
		Quality: models.Quality{Face: fr.Quality.Face, Fingerprint: fr.Quality.Fingerprint},
		Active:  fr.Active == nil || *fr.Active,
	}
	for _, m := range fr.Fingerprint {
		r.Fingerprint = append(r.Fingerprint, models.Minutia{
			X:     m.X,
			Y:     m.Y,
			Angle: m.Angle,
			Kind:  models.MinutiaKind(m.Kind),
		})
	}
	if fr.RegisteredAt != "" {
		if t, err := parseTime(fr.RegisteredAt); err == nil {
			r.RegisteredAt = t
		}
	}
	return r
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateTime, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", raw)
}
