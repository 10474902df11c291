package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rmr/internal/membership/models"
	dErrors "rmr/pkg/domain-errors"
	"rmr/pkg/testutil"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (c *countingRunner) Reconcile(context.Context) (*models.Summary, error) {
	c.calls.Add(1)
	return &models.Summary{}, c.err
}

func TestSchedulerTicks(t *testing.T) {
	runner := &countingRunner{}
	logger, _ := testutil.NewLogger()
	s := NewScheduler(runner, 5*time.Millisecond, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return runner.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSchedulerLogsBusyAtDebug(t *testing.T) {
	runner := &countingRunner{err: dErrors.New(dErrors.CodeConflict, "busy")}
	logger, buf := testutil.NewLogger()
	s := NewScheduler(runner, time.Hour, logger)

	s.tick(context.Background())
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.NotContains(t, buf.String(), "level=ERROR")
}
