package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"rollguard/internal/identity/models"
	"rollguard/pkg/platform/sentinel"
	txcontext "rollguard/pkg/platform/tx"
)

// PostgresStore reads the roll from identity_records. The full record is
// kept as JSONB; district and state are duplicated into columns for scope
// filtering.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Put inserts or replaces a record.
func (s *PostgresStore) Put(ctx context.Context, r models.IdentityRecord) error {
	raw, err := json.Marshal(fromModel(r))
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	var registered *time.Time
	if !r.RegisteredAt.IsZero() {
		t := r.RegisteredAt.UTC()
		registered = &t
	}
	query := `INSERT INTO identity_records (id, district, state, record, active, registered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			district = EXCLUDED.district,
			state = EXCLUDED.state,
			record = EXCLUDED.record,
			active = EXCLUDED.active,
			registered_at = EXCLUDED.registered_at,
			updated_at = now()`
	_, err = s.execer(ctx).ExecContext(ctx, query, r.ID, r.Address.District, r.Address.State, raw, r.Active, registered)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Fetch(ctx context.Context, scope models.Scope) ([]models.IdentityRecord, error) {
	query := `SELECT record, active, registered_at FROM identity_records WHERE active`
	var args []any
	switch scope.Kind {
	case models.ScopeDistrict:
		query += ` AND lower(district) = lower($1)`
		args = append(args, scope.Value)
	case models.ScopeState:
		query += ` AND lower(state) = lower($1)`
		args = append(args, scope.Value)
	}
	query += ` ORDER BY id`

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []models.IdentityRecord
	for rows.Next() {
		var (
			raw        []byte
			active     bool
			registered sql.NullTime
		)
		if err := rows.Scan(&raw, &active, &registered); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var fr fileRecord
		if err := json.Unmarshal(raw, &fr); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		r := fr.toModel()
		r.Active = active
		if registered.Valid {
			r.RegisteredAt = registered.Time.UTC()
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Deactivate soft-deletes ids, linking them to the survivor of a merge.
func (s *PostgresStore) Deactivate(ctx context.Context, ids []string, linkedTo string) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE identity_records SET active = FALSE, linked_to = $2, updated_at = now() WHERE id = ANY($1)`,
		pq.Array(ids), linkedTo,
	)
	if err != nil {
		return fmt.Errorf("deactivate records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate records: %w", err)
	}
	if int(n) != len(ids) {
		return fmt.Errorf("deactivate records: %d of %d found: %w", n, len(ids), sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) LinkedTo(ctx context.Context, id string) (string, error) {
	var linked string
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT linked_to FROM identity_records WHERE id = $1`, id).Scan(&linked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sentinel.ErrNotFound
		}
		return "", fmt.Errorf("find record: %w", err)
	}
	return linked, nil
}

func fromModel(r models.IdentityRecord) fileRecord {
	fr := fileRecord{
		ID:         r.ID,
		Name:       r.Name,
		DOB:        r.DOB,
		NationalID: r.NationalID,
		Address: fileAddress{
			House:    r.Address.House,
			Street:   r.Address.Street,
			Locality: r.Address.Locality,
			City:     r.Address.City,
			District: r.Address.District,
			State:    r.Address.State,
			PIN:      r.Address.PIN,
		},
		Face:    r.Face,
		Quality: fileQuality{Face: r.Quality.Face, Fingerprint: r.Quality.Fingerprint},
	}
	for _, m := range r.Fingerprint {
		fr.Fingerprint = append(fr.Fingerprint, fileMinutia{X: m.X, Y: m.Y, Angle: m.Angle, Kind: string(m.Kind)})
	}
	return fr
}
