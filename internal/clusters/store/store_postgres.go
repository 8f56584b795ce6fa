package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"rollguard/internal/clusters/models"
	"rollguard/internal/platform/postgres"
	"rollguard/pkg/platform/sentinel"
	txcontext "rollguard/pkg/platform/tx"
)

// PostgresStore persists cluster flags in address_cluster_flags. A partial
// unique index allows one live flag per address hash.
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

const clusterColumns = `id, address_hash, canonical_address, voter_count, risk_score, risk_level,
	surname_diversity, dob_clustering, velocity_days, reasons, example_names,
	status, reviewer, note, created_at, updated_at`

func (s *PostgresStore) Latest(ctx context.Context, addressHash string) (*models.AddressClusterFlag, error) {
	query := `SELECT ` + clusterColumns + ` FROM address_cluster_flags
		WHERE address_hash = $1
		ORDER BY created_at DESC, status IN ('open', 'under_review') DESC LIMIT 1`
	f, err := scanCluster(s.execer(ctx).QueryRowContext(ctx, query, addressHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find latest cluster flag: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) Create(ctx context.Context, flag *models.AddressClusterFlag) error {
	query := `INSERT INTO address_cluster_flags (` + clusterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		flag.ID,
		flag.AddressHash,
		flag.CanonicalAddress,
		flag.VoterCount,
		flag.RiskScore,
		string(flag.RiskLevel),
		flag.SurnameDiversity,
		flag.DOBClustering,
		flag.VelocityDays,
		pq.Array(flag.Reasons),
		pq.Array(flag.ExampleNames),
		string(flag.Status),
		flag.Reviewer,
		flag.Note,
		flag.CreatedAt,
		flag.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("live flag for %s: %w", flag.AddressHash, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert cluster flag: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, flag *models.AddressClusterFlag, from models.ClusterStatus) error {
	query := `UPDATE address_cluster_flags SET
			voter_count = $1, risk_score = $2, risk_level = $3, surname_diversity = $4,
			dob_clustering = $5, velocity_days = $6, reasons = $7, example_names = $8,
			canonical_address = $9, status = $10, reviewer = $11, note = $12, updated_at = $13
		WHERE id = $14 AND status = $15`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		flag.VoterCount,
		flag.RiskScore,
		string(flag.RiskLevel),
		flag.SurnameDiversity,
		flag.DOBClustering,
		flag.VelocityDays,
		pq.Array(flag.Reasons),
		pq.Array(flag.ExampleNames),
		flag.CanonicalAddress,
		string(flag.Status),
		flag.Reviewer,
		flag.Note,
		flag.UpdatedAt,
		flag.ID,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("update cluster flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update cluster flag: %w", err)
	}
	if n == 0 {
		if _, err := s.FindByID(ctx, flag.ID); err != nil {
			return err
		}
		return fmt.Errorf("cluster flag %s left status %s: %w", flag.ID, from, sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.AddressClusterFlag, error) {
	query := `SELECT ` + clusterColumns + ` FROM address_cluster_flags WHERE id = $1`
	f, err := scanCluster(s.execer(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find cluster flag: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter) ([]*models.AddressClusterFlag, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if filter.RiskLevel != "" {
		args = append(args, string(filter.RiskLevel))
		where = append(where, "risk_level = $"+strconv.Itoa(len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM address_cluster_flags`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cluster flags: %w", err)
	}

	limit := max(filter.Limit, 0)
	offset := max(filter.Page-1, 0) * limit
	args = append(args, limit, offset)
	query := `SELECT ` + clusterColumns + ` FROM address_cluster_flags` + clause +
		` ORDER BY risk_score DESC, voter_count DESC, address_hash ASC, created_at DESC` +
		` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query cluster flags: %w", err)
	}
	defer rows.Close()

	flags := []*models.AddressClusterFlag{}
	for rows.Next() {
		f, err := scanCluster(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan cluster flag: %w", err)
		}
		flags = append(flags, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate cluster flags: %w", err)
	}
	return flags, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCluster(row rowScanner) (*models.AddressClusterFlag, error) {
	var (
		f       models.AddressClusterFlag
		level   string
		status  string
		reasons pq.StringArray
		names   pq.StringArray
	)
	err := row.Scan(
		&f.ID,
		&f.AddressHash,
		&f.CanonicalAddress,
		&f.VoterCount,
		&f.RiskScore,
		&level,
		&f.SurnameDiversity,
		&f.DOBClustering,
		&f.VelocityDays,
		&reasons,
		&names,
		&status,
		&f.Reviewer,
		&f.Note,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.RiskLevel = models.RiskLevel(level)
	f.Status = models.ClusterStatus(status)
	f.Reasons = []string(reasons)
	f.ExampleNames = []string(names)
	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
	return &f, nil
}
