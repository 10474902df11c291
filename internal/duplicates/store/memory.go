package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"rmr/internal/duplicates/models"
	"rmr/pkg/platform/sentinel"
)

// InMemory holds the duplicate review queue in process memory.
type InMemory struct {
	mu    sync.RWMutex
	items map[string]*models.Candidate
}

func NewInMemory() *InMemory {
	return &InMemory{items: make(map[string]*models.Candidate)}
}

// Sync merges a detection run into the queue. Existing candidates keep their
// review state and first detection time; pending candidates no longer
// detected are pruned. Reviewed ones stay as a record of the decision.
func (s *InMemory) Sync(_ context.Context, detected []models.Candidate, now time.Time) (models.SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report models.SyncReport
	seen := make(map[string]bool, len(detected))
	for _, c := range detected {
		seen[c.ID] = true
		existing, ok := s.items[c.ID]
		if !ok {
			cp := c
			cp.ReviewStatus = models.ReviewPending
			cp.DetectedAt = now
			s.items[c.ID] = clone(&cp)
			report.New++
			continue
		}
		existing.PrimaryClientID = c.PrimaryClientID
		existing.SecondaryClientID = c.SecondaryClientID
		existing.Reasons = slices.Clone(c.Reasons)
		existing.Confidence = c.Confidence
		report.Updated++
	}
	for id, c := range s.items {
		if !seen[id] && c.ReviewStatus == models.ReviewPending {
			delete(s.items, id)
			report.Pruned++
		}
	}
	return report, nil
}

func (s *InMemory) Find(_ context.Context, id string) (*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(c), nil
}

// List returns candidates ordered by id, optionally filtered by status.
func (s *InMemory) List(_ context.Context, status models.ReviewStatus) ([]models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Candidate, 0, len(s.items))
	for _, c := range s.items {
		if status == "" || c.ReviewStatus == status {
			out = append(out, *clone(c))
		}
	}
	slices.SortFunc(out, func(a, b models.Candidate) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *InMemory) SetReview(_ context.Context, id string, status models.ReviewStatus, by string, at time.Time) (*models.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c.ReviewStatus = status
	c.ReviewedBy = by
	reviewed := at
	c.ReviewedAt = &reviewed
	return clone(c), nil
}

func clone(c *models.Candidate) *models.Candidate {
	cp := *c
	cp.Reasons = slices.Clone(c.Reasons)
	if c.ReviewedAt != nil {
		t := *c.ReviewedAt
		cp.ReviewedAt = &t
	}
	return &cp
}
