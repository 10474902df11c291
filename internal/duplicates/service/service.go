// Package service runs duplicate detection and manages the review queue.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rmr/internal/duplicates/detector"
	"rmr/internal/duplicates/metrics"
	"rmr/internal/duplicates/models"
	identity "rmr/internal/identity/models"
	dErrors "rmr/pkg/domain-errors"
	"rmr/pkg/platform/sentinel"
	"rmr/pkg/requestcontext"
)

type Store interface {
	Sync(ctx context.Context, detected []models.Candidate, now time.Time) (models.SyncReport, error)
	List(ctx context.Context, status models.ReviewStatus) ([]models.Candidate, error)
	SetReview(ctx context.Context, id string, status models.ReviewStatus, by string, at time.Time) (*models.Candidate, error)
}

type ClientLister interface {
	ListClients(ctx context.Context) ([]*identity.Client, error)
}

type Service struct {
	clients ClientLister
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(clients ClientLister, store Store, opts ...Option) *Service {
	s := &Service{clients: clients, store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Detect scans every client and refreshes the review queue. The returned
// candidates are the current detection, ordered by id, with their stored
// review state.
func (s *Service) Detect(ctx context.Context) (*models.DetectReport, error) {
	clients, err := s.clients.ListClients(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list clients")
	}
	detected := detector.Detect(clients)

	queue, err := s.store.Sync(ctx, detected, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update duplicate review queue")
	}

	stored, err := s.store.List(ctx, "")
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list duplicate candidates")
	}
	byID := make(map[string]models.Candidate, len(stored))
	for _, c := range stored {
		byID[c.ID] = c
	}

	report := &models.DetectReport{Clients: len(clients), Candidates: detected, Queue: queue}
	for i, c := range detected {
		if st, ok := byID[c.ID]; ok {
			report.Candidates[i] = st
		}
		if c.Confidence == models.ConfidenceHigh {
			report.High++
		} else {
			report.Medium++
		}
	}
	s.metrics.ObserveRun(report.High, report.Medium)
	s.log(ctx, slog.LevelInfo, "duplicate detection finished",
		"clients", report.Clients, "high", report.High, "medium", report.Medium,
		"new", queue.New, "pruned", queue.Pruned)
	return report, nil
}

// List returns queued candidates, optionally filtered by review status.
func (s *Service) List(ctx context.Context, status models.ReviewStatus) ([]models.Candidate, error) {
	out, err := s.store.List(ctx, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list duplicate candidates")
	}
	return out, nil
}

// Review records an operator decision. It never merges clients; a
// confirmed pair is left for a person to act on.
func (s *Service) Review(ctx context.Context, id string, status models.ReviewStatus) (*models.Candidate, error) {
	operator := requestcontext.Operator(ctx)
	c, err := s.store.SetReview(ctx, id, status, operator, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "duplicate candidate not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record review")
	}
	s.metrics.IncReview(string(status))
	s.log(ctx, slog.LevelInfo, "duplicate candidate reviewed",
		"candidate_id", id, "status", status,
		"primary_client_id", c.PrimaryClientID, "secondary_client_id", c.SecondaryClientID)
	return c, nil
}

func (s *Service) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Log(ctx, level, msg, append(args, requestcontext.LogAttrs(ctx)...)...)
}
