package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"rollguard/internal/dedupe/models"
	"rollguard/pkg/platform/sentinel"
)

// InMemoryStore keeps flags in process memory, indexed by id and by pair.
type InMemoryStore struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*models.DuplicateFlag
	byPair map[string]uuid.UUID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[uuid.UUID]*models.DuplicateFlag),
		byPair: make(map[string]uuid.UUID),
	}
}

func (s *InMemoryStore) FindByPair(_ context.Context, scope, idA, idB string) (*models.DuplicateFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[models.PairKey(scope, idA, idB)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneFlag(s.byID[id]), nil
}

func (s *InMemoryStore) Upsert(_ context.Context, flag *models.DuplicateFlag) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := flag.Key()
	if _, ok := s.byPair[key]; ok {
		return false, nil
	}
	if _, ok := s.byID[flag.ID]; ok {
		return false, fmt.Errorf("flag %s: %w", flag.ID, sentinel.ErrConflict)
	}
	s.byID[flag.ID] = cloneFlag(flag)
	s.byPair[key] = flag.ID
	return true, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.DuplicateFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneFlag(f), nil
}

func (s *InMemoryStore) Transition(_ context.Context, flag *models.DuplicateFlag, from models.FlagStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[flag.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != from {
		return fmt.Errorf("flag %s is %s: %w", flag.ID, current.Status, sentinel.ErrConflict)
	}
	s.byID[flag.ID] = cloneFlag(flag)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, filter models.ListFilter) ([]*models.DuplicateFlag, int, error) {
	s.mu.RLock()
	matched := make([]*models.DuplicateFlag, 0, len(s.byID))
	for _, f := range s.byID {
		if filter.Status != "" && f.Status != filter.Status {
			continue
		}
		if filter.Scope != "" && f.Scope != filter.Scope {
			continue
		}
		matched = append(matched, f)
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *models.DuplicateFlag) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})

	total := len(matched)
	start := (filter.Page - 1) * filter.Limit
	if filter.Page < 1 || filter.Limit <= 0 || start >= total {
		return []*models.DuplicateFlag{}, total, nil
	}
	end := min(start+filter.Limit, total)
	out := make([]*models.DuplicateFlag, 0, end-start)
	for _, f := range matched[start:end] {
		out = append(out, cloneFlag(f))
	}
	return out, total, nil
}

func cloneFlag(f *models.DuplicateFlag) *models.DuplicateFlag {
	c := *f
	c.Score.Signals = maps.Clone(f.Score.Signals)
	c.Score.Components = maps.Clone(f.Score.Components)
	c.Score.Flags = slices.Clone(f.Score.Flags)
	if f.AppealUntil != nil {
		t := *f.AppealUntil
		c.AppealUntil = &t
	}
	if f.ResolvedAt != nil {
		t := *f.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}
