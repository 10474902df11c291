package service

//go:generate mockgen -destination=mocks/mocks.go -package=mocks rmr/internal/ledger/service Store,Resolver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"rmr/internal/ledger/models"
	"rmr/internal/ledger/service/mocks"
	"rmr/internal/ledger/store"
	"rmr/pkg/domain"
	dErrors "rmr/pkg/domain-errors"
	"rmr/pkg/platform/sentinel"
	"rmr/pkg/requestcontext"
	"rmr/pkg/testutil"
)

type IngestSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	store    *store.InMemory
	resolver *mocks.MockResolver
	service  *Service
}

func TestIngestSuite(t *testing.T) {
	suite.Run(t, new(IngestSuite))
}

func (s *IngestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 1, 21, 10, 0, 0, 0, time.UTC))
	s.store = store.NewInMemory()
	s.resolver = mocks.NewMockResolver(s.ctrl)
	logger, _ := testutil.NewLogger()
	s.service = New(s.store, s.resolver, WithLogger(logger))
}

func (s *IngestSuite) ingest(email, amount, date, source string) *models.IngestResult {
	res, err := s.service.Ingest(s.ctx, models.IngestCommand{Email: email, Amount: amount, EffectiveDate: date, Source: source})
	s.Require().NoError(err)
	return res
}

func (s *IngestSuite) TestResolvesAliasAtIngest() {
	s.resolver.EXPECT().Resolve(gomock.Any(), "a2@x.com").Return(domain.ClientID("c"), true, nil)

	res := s.ingest("A2@X.com", "8.00", "2026-01-21", "webhook")
	s.False(res.Duplicate)
	s.Equal("a2@x.com", res.Record.NormalizedEmail)
	s.Require().NotNil(res.Record.ResolvedClientID)
	s.Equal(domain.ClientID("c"), *res.Record.ResolvedClientID)
	s.Equal(domain.SourceWebhook, res.Record.Source)
	s.Equal(requestcontext.Now(s.ctx), res.Record.CreatedAt)
}

func (s *IngestSuite) TestDuplicateKeepsFirstAmount() {
	s.resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(domain.ClientID(""), false, nil).Times(2)

	testutil.Given(s.T(), "a webhook payment was recorded", func(t *testing.T) {
		res := s.ingest("e@x.com", "8.00", "2026-01-21", "webhook")
		assert.False(t, res.Duplicate)
	})

	testutil.When(s.T(), "an operator re-enters it with a different amount", func(t *testing.T) {
		res := s.ingest(" E@x.com", "9.00", "2026-01-21", "manual")
		assert.True(t, res.Duplicate)
		assert.True(t, res.Record.Amount.Equal(decimal.RequireFromString("8.00")))
		assert.Equal(t, domain.SourceWebhook, res.Record.Source)
	})

	testutil.Then(s.T(), "exactly one record is stored with the first amount", func(t *testing.T) {
		recs, err := s.store.ListByEmail(s.ctx, "e@x.com")
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.True(t, recs[0].Amount.Equal(decimal.RequireFromString("8.00")))
	})
}

func (s *IngestSuite) TestSameEmailDifferentDaysAreDistinct() {
	s.resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(domain.ClientID(""), false, nil).AnyTimes()
	s.False(s.ingest("e@x.com", "8", "2026-01-21", "webhook").Duplicate)
	s.False(s.ingest("e@x.com", "8", "2026-01-22", "webhook").Duplicate)
}

func (s *IngestSuite) TestValidationRejectsWithoutPersisting() {
	cases := []models.IngestCommand{
		{Email: "nobody", Amount: "8", EffectiveDate: "2026-01-21", Source: "webhook"},
		{Email: "a@x.com", Amount: "0", EffectiveDate: "2026-01-21", Source: "webhook"},
		{Email: "a@x.com", Amount: "8", EffectiveDate: "21/01/2026", Source: "webhook"},
	}
	for _, cmd := range cases {
		_, err := s.service.Ingest(s.ctx, cmd)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation), "%+v: %v", cmd, err)
	}
	recs, err := s.store.ListByEmail(s.ctx, "a@x.com")
	s.Require().NoError(err)
	s.Empty(recs)
}

func (s *IngestSuite) TestResolverFailureStoresUnresolved() {
	s.resolver.EXPECT().Resolve(gomock.Any(), "a@x.com").Return(domain.ClientID(""), false, dErrors.New(dErrors.CodeTimeout, "identity source timed out"))

	res := s.ingest("a@x.com", "8", "2026-01-21", "webhook")
	s.False(res.Record.IsResolved())
}

func (s *IngestSuite) TestConcurrentDuplicateIngestsStoreOneRecord() {
	s.resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(domain.ClientID("c"), true, nil).AnyTimes()

	const n = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[domain.LedgerRecordID]bool{}
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src := []string{"webhook", "manual", "import"}[i%3]
			res, err := s.service.Ingest(s.ctx, models.IngestCommand{Email: "race@x.com", Amount: "8", EffectiveDate: "2026-01-21", Source: src})
			s.NoError(err)
			mu.Lock()
			defer mu.Unlock()
			if !res.Duplicate {
				created++
			}
			ids[res.Record.ID] = true
		}()
	}
	wg.Wait()
	s.Equal(1, created)
	s.Len(ids, 1, "every caller sees the same stored record")
}

func (s *IngestSuite) TestResolveOrphansBackfills() {
	s.resolver.EXPECT().Resolve(gomock.Any(), "late@x.com").Return(domain.ClientID(""), false, nil)
	s.resolver.EXPECT().Resolve(gomock.Any(), "never@x.com").Return(domain.ClientID(""), false, nil)
	late := s.ingest("late@x.com", "8", "2026-01-21", "webhook").Record
	s.ingest("never@x.com", "8", "2026-01-21", "webhook")

	// The client enrols after paying.
	s.resolver.EXPECT().Resolve(gomock.Any(), "late@x.com").Return(domain.ClientID("c"), true, nil)
	s.resolver.EXPECT().Resolve(gomock.Any(), "never@x.com").Return(domain.ClientID(""), false, nil)

	report, err := s.service.ResolveOrphans(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.OrphanReport{Scanned: 2, Resolved: 1}, report)

	recs, err := s.service.ListByClient(s.ctx, "c")
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal(late.ID, recs[0].ID)
}

func (s *IngestSuite) TestDetachClientKeepsHistory() {
	s.resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(domain.ClientID("c"), true, nil)
	s.ingest("a@x.com", "8", "2026-01-21", "manual")

	n, err := s.service.DetachClient(s.ctx, "c")
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	recs, err := s.service.ListByEmail(s.ctx, "A@x.com")
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.False(recs[0].IsResolved())
}

func (s *IngestSuite) TestImportCSV() {
	s.resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(domain.ClientID(""), false, nil).AnyTimes()
	s.ingest("dup@x.com", "5", "2026-01-02", "webhook")

	csv := strings.Join([]string{
		"Email,Amount,Effective_Date,Notes",
		"one@x.com,8.00,2026-01-01,first",
		"dup@x.com,9.00,2026-01-02,",
		"bad,8.00,2026-01-03,",
		`"quoted@x.com","12.50","2026-01-04"`,
	}, "\n")

	report, err := s.service.Import(s.ctx, strings.NewReader(csv))
	s.Require().NoError(err)
	s.Equal(2, report.Created)
	s.Equal(1, report.Duplicate)
	s.Equal(1, report.Invalid)
	s.Require().Len(report.Rows, 4)
	s.Equal(4, report.Rows[2].Line)
	s.Equal(models.ImportInvalid, report.Rows[2].Outcome)
	s.NotEmpty(report.Rows[2].Error)

	recs, err := s.store.ListByEmail(s.ctx, "one@x.com")
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal(domain.SourceImport, recs[0].Source)
}

func (s *IngestSuite) TestImportRequiresHeader() {
	_, err := s.service.Import(s.ctx, strings.NewReader("one@x.com,8.00,2026-01-01\n"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Import(s.ctx, strings.NewReader(""))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestIngestReturnsExistingRecordWhenInsertRaceIsLost(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	res := mocks.NewMockResolver(ctrl)
	svc := New(st, res)
	ctx := context.Background()

	existing := &models.Record{
		ID:              domain.NewLedgerRecordID(),
		NormalizedEmail: "e@x.com",
		Amount:          decimal.RequireFromString("8.00"),
		EffectiveDate:   domain.NewDate(2026, 1, 21),
		Source:          domain.SourceWebhook,
	}
	res.EXPECT().Resolve(gomock.Any(), "e@x.com").Return(domain.ClientID(""), false, nil)
	st.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(sentinel.ErrAlreadyUsed)
	st.EXPECT().FindByKey(gomock.Any(), existing.Key()).Return(existing, nil)

	got, err := svc.Ingest(ctx, models.IngestCommand{Email: "e@x.com", Amount: "9.00", EffectiveDate: "2026-01-21", Source: "manual"})
	require.NoError(t, err)
	assert.True(t, got.Duplicate)
	assert.Same(t, existing, got.Record)
}

func TestIngestStoreFailureIsInternal(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	svc := New(st, nil)

	st.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))
	_, err := svc.Ingest(context.Background(), models.IngestCommand{Email: "e@x.com", Amount: "8", EffectiveDate: "2026-01-21", Source: "webhook"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}
