package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"rollguard/internal/dedupe/models"
	"rollguard/internal/platform/postgres"
	"rollguard/internal/scoring"
	"rollguard/pkg/platform/sentinel"
	txcontext "rollguard/pkg/platform/tx"
)

// PostgresStore persists flags in duplicate_flags. The (scope, record_a,
// record_b) unique constraint enforces one flag per pair.
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

const flagColumns = `id, scope, record_a, record_b, combined_score, tier, flags, score, status,
	run_id, reviewer, note, merged_into, appeal_until, created_at, updated_at, resolved_at`

// storedScore is the JSONB form of a SimilarityScore.
type storedScore struct {
	Signals    map[scoring.Signal]float64    `json:"signals"`
	Components map[scoring.Component]float64 `json:"components"`
	Profile    scoring.ProfileName           `json:"profile"`
}

func (s *PostgresStore) FindByPair(ctx context.Context, scope, idA, idB string) (*models.DuplicateFlag, error) {
	a, b := models.OrderPair(idA, idB)
	query := `SELECT ` + flagColumns + ` FROM duplicate_flags WHERE scope = $1 AND record_a = $2 AND record_b = $3`
	f, err := scanFlag(s.execer(ctx).QueryRowContext(ctx, query, scope, a, b))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find flag by pair: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, flag *models.DuplicateFlag) (bool, error) {
	score, err := json.Marshal(storedScore{
		Signals:    flag.Score.Signals,
		Components: flag.Score.Components,
		Profile:    flag.Score.Profile,
	})
	if err != nil {
		return false, fmt.Errorf("encode score: %w", err)
	}
	query := `INSERT INTO duplicate_flags (` + flagColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (scope, record_a, record_b) DO NOTHING`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		flag.ID,
		flag.Scope,
		flag.RecordA,
		flag.RecordB,
		flag.Score.Combined,
		string(flag.Score.Tier),
		pq.Array(flagNames(flag.Score.Flags)),
		score,
		string(flag.Status),
		flag.RunID,
		flag.Reviewer,
		flag.Note,
		flag.MergedInto,
		flag.AppealUntil,
		flag.CreatedAt,
		flag.UpdatedAt,
		flag.ResolvedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return false, fmt.Errorf("flag %s: %w", flag.ID, sentinel.ErrConflict)
		}
		return false, fmt.Errorf("insert flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert flag: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.DuplicateFlag, error) {
	query := `SELECT ` + flagColumns + ` FROM duplicate_flags WHERE id = $1`
	f, err := scanFlag(s.execer(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find flag: %w", err)
	}
	return f, nil
}

// Transition is a compare-and-set on status, so two reviewers racing on one
// flag cannot both win.
func (s *PostgresStore) Transition(ctx context.Context, flag *models.DuplicateFlag, from models.FlagStatus) error {
	query := `UPDATE duplicate_flags
		SET status = $1, reviewer = $2, note = $3, merged_into = $4,
			appeal_until = $5, updated_at = $6, resolved_at = $7
		WHERE id = $8 AND status = $9`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		string(flag.Status),
		flag.Reviewer,
		flag.Note,
		flag.MergedInto,
		flag.AppealUntil,
		flag.UpdatedAt,
		flag.ResolvedAt,
		flag.ID,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("update flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update flag: %w", err)
	}
	if n == 0 {
		if _, err := s.FindByID(ctx, flag.ID); err != nil {
			return err
		}
		return fmt.Errorf("flag %s left status %s: %w", flag.ID, from, sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter) ([]*models.DuplicateFlag, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if filter.Scope != "" {
		args = append(args, filter.Scope)
		where = append(where, "scope = $"+strconv.Itoa(len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM duplicate_flags`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count flags: %w", err)
	}

	limit := max(filter.Limit, 0)
	offset := max(filter.Page-1, 0) * limit
	args = append(args, limit, offset)
	query := `SELECT ` + flagColumns + ` FROM duplicate_flags` + clause +
		` ORDER BY created_at DESC, id ASC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query flags: %w", err)
	}
	defer rows.Close()

	flags := []*models.DuplicateFlag{}
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan flag: %w", err)
		}
		flags = append(flags, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate flags: %w", err)
	}
	return flags, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlag(row rowScanner) (*models.DuplicateFlag, error) {
	var (
		f           models.DuplicateFlag
		tier        string
		status      string
		names       pq.StringArray
		rawScore    []byte
		appealUntil sql.NullTime
		resolvedAt  sql.NullTime
	)
	err := row.Scan(
		&f.ID,
		&f.Scope,
		&f.RecordA,
		&f.RecordB,
		&f.Score.Combined,
		&tier,
		&names,
		&rawScore,
		&status,
		&f.RunID,
		&f.Reviewer,
		&f.Note,
		&f.MergedInto,
		&appealUntil,
		&f.CreatedAt,
		&f.UpdatedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	var score storedScore
	if err := json.Unmarshal(rawScore, &score); err != nil {
		return nil, fmt.Errorf("decode score: %w", err)
	}
	f.Score.Signals = score.Signals
	f.Score.Components = score.Components
	f.Score.Profile = score.Profile
	f.Score.Tier = scoring.ConfidenceTier(tier)
	for _, n := range names {
		f.Score.Flags = append(f.Score.Flags, scoring.Flag(n))
	}
	f.Status = models.FlagStatus(status)
	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
	f.AppealUntil = nullTime(appealUntil)
	f.ResolvedAt = nullTime(resolvedAt)
	return &f, nil
}

func flagNames(flags []scoring.Flag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = string(f)
	}
	return out
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}
