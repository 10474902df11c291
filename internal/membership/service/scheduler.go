package service

import (
	"context"
	"log/slog"
	"time"

	"rmr/internal/membership/models"
	dErrors "rmr/pkg/domain-errors"
)

type runner interface {
	Reconcile(ctx context.Context) (*models.Summary, error)
}

// Scheduler triggers a reconcile pass on a fixed interval. A tick that finds
// a pass already running is skipped.
type Scheduler struct {
	reconciler runner
	interval   time.Duration
	logger     *slog.Logger
}

func NewScheduler(r runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{reconciler: r, interval: interval, logger: logger}
}

func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.reconciler.Reconcile(ctx)
	switch {
	case err == nil:
	case dErrors.HasCode(err, dErrors.CodeConflict):
		s.log(ctx, slog.LevelDebug, "scheduled reconcile skipped, pass in progress")
	default:
		s.log(ctx, slog.LevelError, "scheduled reconcile failed", "error", err)
	}
}

func (s *Scheduler) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, args...)
	}
}
