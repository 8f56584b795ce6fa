package service

import (
	"context"

	"rollguard/internal/ledger/models"
)

// Store persists blocks. Implementations only expose blocks whose write has
// completed; a reader never observes a partially written block.
type Store interface {
	// Last returns the highest-sequence block of the chain or
	// sentinel.ErrNotFound when the chain is empty.
	Last(ctx context.Context, chain string) (*models.Block, error)
	// Append persists block. It returns sentinel.ErrConflict when the
	// sequence is already taken.
	Append(ctx context.Context, block models.Block) error
	// Get returns the block at seq or sentinel.ErrNotFound.
	Get(ctx context.Context, chain string, seq int64) (*models.Block, error)
	// Range returns up to limit blocks with Sequence >= from, ascending.
	Range(ctx context.Context, chain string, from int64, limit int) ([]models.Block, error)
	Count(ctx context.Context, chain string) (int64, error)
}
