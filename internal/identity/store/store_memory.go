package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"rollguard/internal/identity/models"
	"rollguard/pkg/platform/sentinel"
)

// InMemoryStore holds the roll in process memory. It serves detection runs
// and applies resolution deactivations.
type InMemoryStore struct {
	mu       sync.RWMutex
	records  map[string]models.IdentityRecord
	order    []string
	linkedTo map[string]string
}

func NewInMemory(records ...models.IdentityRecord) *InMemoryStore {
	s := &InMemoryStore{
		records:  make(map[string]models.IdentityRecord),
		linkedTo: make(map[string]string),
	}
	for _, r := range records {
		s.put(r)
	}
	return s
}

// Put inserts or replaces a record.
func (s *InMemoryStore) Put(_ context.Context, r models.IdentityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(r)
	return nil
}

func (s *InMemoryStore) put(r models.IdentityRecord) {
	if _, ok := s.records[r.ID]; !ok {
		s.order = append(s.order, r.ID)
	}
	s.records[r.ID] = cloneRecord(r)
}

// Fetch returns the active records in scope in insertion order.
func (s *InMemoryStore) Fetch(_ context.Context, scope models.Scope) ([]models.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.IdentityRecord, 0, len(s.order))
	for _, id := range s.order {
		r := s.records[id]
		if !r.Active || !scope.Matches(r) {
			continue
		}
		out = append(out, cloneRecord(r))
	}
	return out, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*models.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := cloneRecord(r)
	return &c, nil
}

// Deactivate marks ids inactive. Unknown ids fail the whole call before any
// record changes.
func (s *InMemoryStore) Deactivate(_ context.Context, ids []string, linkedTo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.records[id]; !ok {
			return fmt.Errorf("deactivate record %s: %w", id, sentinel.ErrNotFound)
		}
	}
	for _, id := range ids {
		r := s.records[id]
		r.Active = false
		s.records[id] = r
		if linkedTo != "" {
			s.linkedTo[id] = linkedTo
		}
	}
	return nil
}

// LinkedTo returns the surviving record a merged record points at.
func (s *InMemoryStore) LinkedTo(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.linkedTo[id]
	return l, ok
}

// IDs lists every stored record id, active or not, sorted.
func (s *InMemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := slices.Clone(s.order)
	sort.Strings(ids)
	return ids
}

func cloneRecord(r models.IdentityRecord) models.IdentityRecord {
	r.Face = slices.Clone(r.Face)
	r.Fingerprint = slices.Clone(r.Fingerprint)
	return r
}
