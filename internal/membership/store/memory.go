package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"rmr/internal/membership/models"
	"rmr/pkg/domain"
	"rmr/pkg/platform/sentinel"
)

// InMemory keeps membership status rows in process memory.
type InMemory struct {
	mu   sync.RWMutex
	rows map[domain.ClientID]*models.Status
}

func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[domain.ClientID]*models.Status)}
}

func (s *InMemory) Find(_ context.Context, id domain.ClientID) (*models.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(row), nil
}

// Save inserts or replaces the row for st.ClientID.
func (s *InMemory) Save(_ context.Context, st *models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[st.ClientID] = clone(st)
	return nil
}

func (s *InMemory) Delete(_ context.Context, id domain.ClientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

// List returns every row ordered by client id.
func (s *InMemory) List(_ context.Context) ([]*models.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Status, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, clone(row))
	}
	slices.SortFunc(out, func(a, b *models.Status) int {
		return strings.Compare(string(a.ClientID), string(b.ClientID))
	})
	return out, nil
}

func clone(st *models.Status) *models.Status {
	cp := *st
	if st.EvidenceRecordID != nil {
		id := *st.EvidenceRecordID
		cp.EvidenceRecordID = &id
	}
	if st.EvidenceDate != nil {
		d := *st.EvidenceDate
		cp.EvidenceDate = &d
	}
	return &cp
}
