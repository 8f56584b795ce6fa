package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"rollguard/internal/ledger/models"
	"rollguard/internal/platform/postgres"
	"rollguard/pkg/platform/sentinel"
	txcontext "rollguard/pkg/platform/tx"
)

// PostgresStore persists blocks in ledger_blocks. When the context carries a
// transaction, reads of the chain tail take a transaction-scoped advisory
// lock on the chain so appends from other processes queue behind it.
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

const blockColumns = `chain, sequence, previous_hash, payload, created_at, current_hash`

func (s *PostgresStore) Last(ctx context.Context, chain string) (*models.Block, error) {
	if tx, ok := txcontext.From(ctx); ok {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, chain); err != nil {
			return nil, fmt.Errorf("lock chain %s: %w", chain, err)
		}
	}
	query := `SELECT ` + blockColumns + ` FROM ledger_blocks WHERE chain = $1 ORDER BY sequence DESC LIMIT 1`
	b, err := scanBlock(s.execer(ctx).QueryRowContext(ctx, query, chain))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find chain tail: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) Append(ctx context.Context, block models.Block) error {
	query := `INSERT INTO ledger_blocks (` + blockColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		block.Chain,
		block.Sequence,
		block.PreviousHash,
		block.Payload,
		block.Timestamp,
		block.CurrentHash,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("append block %d to %s: %w", block.Sequence, block.Chain, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, chain string, seq int64) (*models.Block, error) {
	query := `SELECT ` + blockColumns + ` FROM ledger_blocks WHERE chain = $1 AND sequence = $2`
	b, err := scanBlock(s.execer(ctx).QueryRowContext(ctx, query, chain, seq))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find block: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) Range(ctx context.Context, chain string, from int64, limit int) ([]models.Block, error) {
	query := `SELECT ` + blockColumns + `
		FROM ledger_blocks
		WHERE chain = $1 AND sequence >= $2
		ORDER BY sequence ASC
		LIMIT $3`
	rows, err := s.execer(ctx).QueryContext(ctx, query, chain, from, limit)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var blocks []models.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		blocks = append(blocks, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	return blocks, nil
}

func (s *PostgresStore) Count(ctx context.Context, chain string) (int64, error) {
	var n int64
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_blocks WHERE chain = $1`, chain).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count blocks: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row rowScanner) (*models.Block, error) {
	var b models.Block
	if err := row.Scan(&b.Chain, &b.Sequence, &b.PreviousHash, &b.Payload, &b.Timestamp, &b.CurrentHash); err != nil {
		return nil, err
	}
	b.Timestamp = b.Timestamp.UTC()
	return &b, nil
}
