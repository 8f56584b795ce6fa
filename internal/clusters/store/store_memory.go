package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"rollguard/internal/clusters/models"
	"rollguard/pkg/platform/sentinel"
)

// InMemoryStore keeps cluster flags in process memory.
type InMemoryStore struct {
	mu    sync.RWMutex
	flags map[uuid.UUID]*models.AddressClusterFlag
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{flags: make(map[uuid.UUID]*models.AddressClusterFlag)}
}

func (s *InMemoryStore) Latest(_ context.Context, addressHash string) (*models.AddressClusterFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.AddressClusterFlag
	for _, f := range s.flags {
		if f.AddressHash != addressHash {
			continue
		}
		if latest == nil || newer(f, latest) {
			latest = f
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return cloneFlag(latest), nil
}

// newer orders by creation time; on a tie the live flag wins.
func newer(a, b *models.AddressClusterFlag) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Status.IsLive() && !b.Status.IsLive()
}

func (s *InMemoryStore) Create(_ context.Context, flag *models.AddressClusterFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.flags {
		if f.AddressHash == flag.AddressHash && f.Status.IsLive() {
			return fmt.Errorf("live flag for %s: %w", flag.AddressHash, sentinel.ErrConflict)
		}
	}
	s.flags[flag.ID] = cloneFlag(flag)
	return nil
}

func (s *InMemoryStore) Save(_ context.Context, flag *models.AddressClusterFlag, from models.ClusterStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.flags[flag.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != from {
		return fmt.Errorf("cluster flag %s is %s: %w", flag.ID, current.Status, sentinel.ErrConflict)
	}
	s.flags[flag.ID] = cloneFlag(flag)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.AddressClusterFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flags[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneFlag(f), nil
}

func (s *InMemoryStore) List(_ context.Context, filter models.ListFilter) ([]*models.AddressClusterFlag, int, error) {
	s.mu.RLock()
	matched := make([]*models.AddressClusterFlag, 0, len(s.flags))
	for _, f := range s.flags {
		if filter.Status != "" && f.Status != filter.Status {
			continue
		}
		if filter.RiskLevel != "" && f.RiskLevel != filter.RiskLevel {
			continue
		}
		matched = append(matched, f)
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *models.AddressClusterFlag) int {
		return cmp.Or(
			cmp.Compare(b.RiskScore, a.RiskScore),
			cmp.Compare(b.VoterCount, a.VoterCount),
			cmp.Compare(a.AddressHash, b.AddressHash),
			b.CreatedAt.Compare(a.CreatedAt),
		)
	})

	total := len(matched)
	start := (filter.Page - 1) * filter.Limit
	if filter.Page < 1 || filter.Limit <= 0 || start >= total {
		return []*models.AddressClusterFlag{}, total, nil
	}
	end := min(start+filter.Limit, total)
	out := make([]*models.AddressClusterFlag, 0, end-start)
	for _, f := range matched[start:end] {
		out = append(out, cloneFlag(f))
	}
	return out, total, nil
}

func cloneFlag(f *models.AddressClusterFlag) *models.AddressClusterFlag {
	c := *f
	c.Reasons = slices.Clone(f.Reasons)
	c.ExampleNames = slices.Clone(f.ExampleNames)
	return &c
}
