package store

import (
	"context"
	"fmt"
	"sync"

	"rollguard/internal/ledger/models"
	"rollguard/pkg/platform/sentinel"
)

// InMemoryStore keeps chains in process memory. Blocks are copied on the
// way in and out so callers cannot mutate stored history.
type InMemoryStore struct {
	mu     sync.RWMutex
	chains map[string][]models.Block
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{chains: make(map[string][]models.Block)}
}

func (s *InMemoryStore) Last(_ context.Context, chain string) (*models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blocks := s.chains[chain]
	if len(blocks) == 0 {
		return nil, sentinel.ErrNotFound
	}
	b := cloneBlock(blocks[len(blocks)-1])
	return &b, nil
}

func (s *InMemoryStore) Append(_ context.Context, block models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	blocks := s.chains[block.Chain]
	if block.Sequence != int64(len(blocks)) {
		return fmt.Errorf("append block %d to %s: %w", block.Sequence, block.Chain, sentinel.ErrConflict)
	}
	s.chains[block.Chain] = append(blocks, cloneBlock(block))
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, chain string, seq int64) (*models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blocks := s.chains[chain]
	if seq < 0 || seq >= int64(len(blocks)) {
		return nil, sentinel.ErrNotFound
	}
	b := cloneBlock(blocks[seq])
	return &b, nil
}

func (s *InMemoryStore) Range(_ context.Context, chain string, from int64, limit int) ([]models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blocks := s.chains[chain]
	if from < 0 {
		from = 0
	}
	if from >= int64(len(blocks)) || limit <= 0 {
		return nil, nil
	}
	end := min(from+int64(limit), int64(len(blocks)))
	out := make([]models.Block, 0, end-from)
	for _, b := range blocks[from:end] {
		out = append(out, cloneBlock(b))
	}
	return out, nil
}

func (s *InMemoryStore) Count(_ context.Context, chain string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.chains[chain])), nil
}

func cloneBlock(b models.Block) models.Block {
	b.Payload = append([]byte(nil), b.Payload...)
	return b
}
