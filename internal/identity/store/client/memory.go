package client

import (
	"context"
	"slices"
	"strings"
	"sync"

	"rmr/internal/identity/models"
	"rmr/pkg/domain"
	"rmr/pkg/platform/sentinel"
)

// InMemory is a process-local client identity store.
type InMemory struct {
	mu      sync.RWMutex
	clients map[domain.ClientID]*models.Client
}

func NewInMemory() *InMemory {
	return &InMemory{clients: make(map[domain.ClientID]*models.Client)}
}

func (s *InMemory) Create(_ context.Context, c *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.clients[c.ID] = c.Clone()
	return nil
}

func (s *InMemory) Update(_ context.Context, c *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.clients[c.ID] = c.Clone()
	return nil
}

func (s *InMemory) Delete(_ context.Context, id domain.ClientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.clients, id)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.ClientID) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

// FindByEmail returns every client claiming normalized as primary or alias,
// ordered by id.
func (s *InMemory) FindByEmail(_ context.Context, normalized string) ([]*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Client
	for _, c := range s.clients {
		if c.PrimaryEmail == normalized || c.HasAlias(normalized) {
			out = append(out, c.Clone())
		}
	}
	sortByID(out)
	return out, nil
}

// ListClients returns all clients ordered by id.
func (s *InMemory) ListClients(_ context.Context) ([]*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c.Clone())
	}
	sortByID(out)
	return out, nil
}

func sortByID(cs []*models.Client) {
	slices.SortFunc(cs, func(a, b *models.Client) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
}
