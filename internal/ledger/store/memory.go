package store

import (
	"context"
	"slices"
	"sync"

	"rmr/internal/ledger/models"
	"rmr/pkg/domain"
	"rmr/pkg/platform/sentinel"
)

// InMemory is a process-local ledger. The (email, date) uniqueness is
// enforced under the write lock, mirroring the Postgres constraint.
type InMemory struct {
	mu      sync.RWMutex
	records map[domain.LedgerRecordID]*models.Record
	byKey   map[models.Key]domain.LedgerRecordID
}

func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[domain.LedgerRecordID]*models.Record),
		byKey:   make(map[models.Key]domain.LedgerRecordID),
	}
}

// Insert stores rec. Returns sentinel.ErrAlreadyUsed when a record with the
// same key exists.
func (s *InMemory) Insert(_ context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.Key()
	if _, ok := s.byKey[key]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.records[rec.ID] = clone(rec)
	s.byKey[key] = rec.ID
	return nil
}

func (s *InMemory) FindByKey(_ context.Context, key models.Key) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.records[id]), nil
}

func (s *InMemory) ListByClient(_ context.Context, id domain.ClientID) ([]*models.Record, error) {
	return s.filter(func(r *models.Record) bool { return r.ResolvedTo(id) }), nil
}

func (s *InMemory) ListByEmail(_ context.Context, normalized string) ([]*models.Record, error) {
	return s.filter(func(r *models.Record) bool { return r.NormalizedEmail == normalized }), nil
}

func (s *InMemory) ListUnresolved(_ context.Context, limit int) ([]*models.Record, error) {
	out := s.filter(func(r *models.Record) bool { return !r.IsResolved() })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetResolvedClient backfills the client of an unresolved record. It reports
// false if the record was already resolved or does not exist.
func (s *InMemory) SetResolvedClient(_ context.Context, id domain.LedgerRecordID, clientID domain.ClientID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.IsResolved() {
		return false, nil
	}
	c := clientID
	rec.ResolvedClientID = &c
	return true, nil
}

// DetachClient clears the client on every record resolved to it.
func (s *InMemory) DetachClient(_ context.Context, clientID domain.ClientID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, rec := range s.records {
		if rec.ResolvedTo(clientID) {
			rec.ResolvedClientID = nil
			n++
		}
	}
	return n, nil
}

func (s *InMemory) filter(keep func(*models.Record) bool) []*models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Record{}
	for _, rec := range s.records {
		if keep(rec) {
			out = append(out, clone(rec))
		}
	}
	sortRecords(out)
	return out
}

// sortRecords orders by effective date, then creation, then id.
func sortRecords(recs []*models.Record) {
	slices.SortFunc(recs, func(a, b *models.Record) int {
		switch {
		case a.EffectiveDate.Before(b.EffectiveDate):
			return -1
		case a.EffectiveDate.After(b.EffectiveDate):
			return 1
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID.String() < b.ID.String():
			return -1
		case a.ID.String() > b.ID.String():
			return 1
		}
		return 0
	})
}

func clone(r *models.Record) *models.Record {
	cp := *r
	if r.ResolvedClientID != nil {
		id := *r.ResolvedClientID
		cp.ResolvedClientID = &id
	}
	return &cp
}
