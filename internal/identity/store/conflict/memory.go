package conflict

import (
	"context"
	"slices"
	"strings"
	"sync"

	"rmr/internal/identity/models"
)

// InMemory keeps identity conflicts in process memory.
type InMemory struct {
	mu        sync.RWMutex
	conflicts map[string]models.Conflict
}

func NewInMemory() *InMemory {
	return &InMemory{conflicts: make(map[string]models.Conflict)}
}

// RecordConflicts upserts by conflict id, keeping the first-seen time.
func (s *InMemory) RecordConflicts(_ context.Context, conflicts []models.Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range conflicts {
		c.ClaimantIDs = slices.Clone(c.ClaimantIDs)
		if existing, ok := s.conflicts[c.ID]; ok {
			c.FirstSeenAt = existing.FirstSeenAt
		}
		s.conflicts[c.ID] = c
	}
	return nil
}

// ListConflicts returns conflicts ordered by email then kind.
func (s *InMemory) ListConflicts(_ context.Context) ([]models.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Conflict, 0, len(s.conflicts))
	for _, c := range s.conflicts {
		c.ClaimantIDs = slices.Clone(c.ClaimantIDs)
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b models.Conflict) int {
		if n := strings.Compare(a.Email, b.Email); n != 0 {
			return n
		}
		return strings.Compare(string(a.Kind), string(b.Kind))
	})
	return out, nil
}
