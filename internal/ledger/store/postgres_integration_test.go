//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"rmr/internal/ledger/models"
	"rmr/internal/ledger/store"
	"rmr/pkg/domain"
	"rmr/pkg/platform/sentinel"
	"rmr/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "ledger_records"))
}

func newRecord(email, amount string, date domain.Date, client *domain.ClientID) *models.Record {
	return &models.Record{
		ID:               domain.NewLedgerRecordID(),
		NormalizedEmail:  email,
		ResolvedClientID: client,
		Amount:           decimal.RequireFromString(amount),
		EffectiveDate:    date,
		Source:           domain.SourceWebhook,
		CreatedAt:        time.Now().UTC().Truncate(time.Microsecond),
	}
}

// TestConcurrentInsertsKeepOneRecord races inserts on one (email, date) key
// against the unique constraint.
func (s *PostgresStoreSuite) TestConcurrentInsertsKeepOneRecord() {
	ctx := context.Background()
	date := domain.NewDate(2026, 1, 21)
	const goroutines = 40

	var wg sync.WaitGroup
	var created, duplicate atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Insert(ctx, newRecord("race@x.com", "8.00", date, nil))
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				duplicate.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), created.Load())
	s.Equal(int32(goroutines-1), duplicate.Load())
	recs, err := s.store.ListByEmail(ctx, "race@x.com")
	s.Require().NoError(err)
	s.Len(recs, 1)
}

func (s *PostgresStoreSuite) TestFindByKeyRoundTrip() {
	ctx := context.Background()
	client := domain.ClientID("c1")
	rec := newRecord("a@x.com", "8.50", domain.NewDate(2026, 1, 21), &client)
	s.Require().NoError(s.store.Insert(ctx, rec))

	got, err := s.store.FindByKey(ctx, rec.Key())
	s.Require().NoError(err)
	s.Equal(rec.ID, got.ID)
	s.True(rec.Amount.Equal(got.Amount))
	s.Equal("2026-01-21", got.EffectiveDate.String())
	s.Require().NotNil(got.ResolvedClientID)
	s.Equal(client, *got.ResolvedClientID)

	_, err = s.store.FindByKey(ctx, models.Key{NormalizedEmail: "nobody@x.com", EffectiveDate: rec.EffectiveDate})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestBackfillOnlyTouchesUnresolved() {
	ctx := context.Background()
	owner := domain.ClientID("owner")
	orphan := newRecord("o@x.com", "8", domain.NewDate(2026, 1, 1), nil)
	owned := newRecord("p@x.com", "8", domain.NewDate(2026, 1, 1), &owner)
	s.Require().NoError(s.store.Insert(ctx, orphan))
	s.Require().NoError(s.store.Insert(ctx, owned))

	unresolved, err := s.store.ListUnresolved(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(unresolved, 1)
	s.Equal(orphan.ID, unresolved[0].ID)

	ok, err := s.store.SetResolvedClient(ctx, orphan.ID, "c9")
	s.Require().NoError(err)
	s.True(ok)
	ok, err = s.store.SetResolvedClient(ctx, owned.ID, "c9")
	s.Require().NoError(err)
	s.False(ok, "an attributed record is never reassigned")

	n, err := s.store.DetachClient(ctx, "c9")
	s.Require().NoError(err)
	s.EqualValues(1, n)
	recs, err := s.store.ListByClient(ctx, owner)
	s.Require().NoError(err)
	s.Len(recs, 1)
}
