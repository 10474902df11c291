//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rmr/internal/duplicates/models"
	"rmr/pkg/platform/sentinel"
	"rmr/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "duplicate_candidates"))
}

func (s *PostgresStoreSuite) TestSyncLifecycle() {
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ward := candidate("a", "b", models.ReasonLastName)
	rex := candidate("c", "d", models.ReasonDogName)
	phone := candidate("e", "f", models.ReasonPhone)

	report, err := s.store.Sync(ctx, []models.Candidate{ward, rex, phone}, t0)
	s.Require().NoError(err)
	s.Equal(models.SyncReport{New: 3}, report)

	reviewed, err := s.store.SetReview(ctx, ward.ID, models.ReviewDismissed, "ops", t0.Add(time.Hour))
	s.Require().NoError(err)
	s.Require().NotNil(reviewed.ReviewedAt)

	phone.Reasons = []models.Reason{models.ReasonPhone, models.ReasonLastName}
	report, err = s.store.Sync(ctx, []models.Candidate{phone}, t0.Add(24*time.Hour))
	s.Require().NoError(err)
	s.Equal(models.SyncReport{Updated: 1, Pruned: 1}, report)

	got, err := s.store.Find(ctx, ward.ID)
	s.Require().NoError(err)
	s.Equal(models.ReviewDismissed, got.ReviewStatus)

	_, err = s.store.Find(ctx, rex.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	got, err = s.store.Find(ctx, phone.ID)
	s.Require().NoError(err)
	s.True(got.DetectedAt.Equal(t0))
	s.Equal(phone.Reasons, got.Reasons)

	pending, err := s.store.List(ctx, models.ReviewPending)
	s.Require().NoError(err)
	s.Len(pending, 1)
	all, err := s.store.List(ctx, "")
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *PostgresStoreSuite) TestSetReviewMissing() {
	_, err := s.store.SetReview(context.Background(), "nope", models.ReviewConfirmed, "ops", time.Now())
	s.ErrorIs(err, sentinel.ErrNotFound)
}
