package service

//go:generate mockgen -destination=mocks/mocks.go -package=mocks rmr/internal/membership/service StatusStore,Ledger,Publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	identity "rmr/internal/identity/models"
	"rmr/internal/identity/resolver"
	"rmr/internal/identity/store/client"
	ledger "rmr/internal/ledger/models"
	ledgersvc "rmr/internal/ledger/service"
	ledgerstore "rmr/internal/ledger/store"
	"rmr/internal/membership/lock"
	"rmr/internal/membership/models"
	"rmr/internal/membership/service/mocks"
	"rmr/internal/membership/store"
	"rmr/pkg/domain"
	dErrors "rmr/pkg/domain-errors"
	"rmr/pkg/platform/sentinel"
	"rmr/pkg/requestcontext"
	"rmr/pkg/testutil"
)

// fakeLedger lets a test corrupt, break or observe one client's history.
type fakeLedger struct {
	Ledger
	mu     sync.Mutex
	before func(id domain.ClientID)
	bad    map[domain.ClientID][]*ledger.Record
}

func (f *fakeLedger) ListByClient(ctx context.Context, id domain.ClientID) ([]*ledger.Record, error) {
	f.mu.Lock()
	hook := f.before
	recs, corrupt := f.bad[id]
	f.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	if corrupt {
		return recs, nil
	}
	return f.Ledger.ListByClient(ctx, id)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.StatusChanged
}

func (p *recordingPublisher) Publish(_ context.Context, e models.StatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) all() []models.StatusChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.StatusChanged(nil), p.events...)
}

type ReconcileSuite struct {
	suite.Suite
	clients   *client.InMemory
	resolver  *resolver.Resolver
	ingestor  *ledgersvc.Service
	ledger    *fakeLedger
	statuses  *store.InMemory
	publisher *recordingPublisher
	locker    *lock.InMemory
	rec       *Reconciler
}

func TestReconcileSuite(t *testing.T) {
	suite.Run(t, new(ReconcileSuite))
}

func (s *ReconcileSuite) SetupTest() {
	s.clients = client.NewInMemory()
	s.resolver = resolver.New(s.clients)
	s.ingestor = ledgersvc.New(ledgerstore.NewInMemory(), s.resolver)
	s.ledger = &fakeLedger{Ledger: s.ingestor}
	s.statuses = store.NewInMemory()
	s.publisher = &recordingPublisher{}
	s.locker = lock.NewInMemory()
	logger, _ := testutil.NewLogger()
	s.rec = New(s.clients, s.ledger, s.statuses,
		WithPublisher(s.publisher), WithLocker(s.locker), WithLogger(logger), WithWorkers(3))
}

func at(year int, month time.Month, day int) context.Context {
	return requestcontext.WithTime(context.Background(), time.Date(year, month, day, 6, 0, 0, 0, time.UTC))
}

func (s *ReconcileSuite) addClient(id, primary string, aliases ...string) {
	s.Require().NoError(s.clients.Create(context.Background(), &identity.Client{ID: domain.ClientID(id), PrimaryEmail: primary, AliasEmails: aliases}))
	s.resolver.Invalidate()
}

func (s *ReconcileSuite) pay(email, amount, date string) {
	_, err := s.ingestor.Ingest(at(2026, 1, 1), ledger.IngestCommand{Email: email, Amount: amount, EffectiveDate: date, Source: "webhook"})
	s.Require().NoError(err)
}

func (s *ReconcileSuite) reconcile(ctx context.Context) *models.Summary {
	summary, err := s.rec.Reconcile(ctx)
	s.Require().NoError(err)
	return summary
}

func (s *ReconcileSuite) status(id string) *models.Status {
	st, err := s.rec.Status(context.Background(), domain.ClientID(id))
	s.Require().NoError(err)
	return st
}

func (s *ReconcileSuite) TestAliasPaymentActivatesClient() {
	s.addClient("client-c", "a1@x.com", "a2@x.com")
	s.pay("A2@X.com", "8.00", "2026-01-21")

	summary := s.reconcile(at(2026, 2, 1))

	s.Equal(1, summary.Total)
	s.Equal(1, summary.Updated)
	st := s.status("client-c")
	s.True(st.Active)
	s.Require().NotNil(st.EvidenceDate)
	s.Equal("2026-01-21", st.EvidenceDate.String())

	events := s.publisher.all()
	s.Require().Len(events, 1)
	s.Equal(domain.ClientID("client-c"), events[0].ClientID)
	s.False(events[0].OldActive)
	s.True(events[0].NewActive)
}

func (s *ReconcileSuite) TestSecondPassWritesNothing() {
	s.addClient("c1", "one@x.com")
	s.addClient("c2", "two@x.com")
	s.addClient("c3", "three@x.com")
	s.pay("one@x.com", "8", "2026-01-20")
	s.pay("two@x.com", "8", "2025-11-01")

	first := s.reconcile(at(2026, 2, 1))
	s.Equal(3, first.Updated, "first pass writes a row per client")

	second := s.reconcile(at(2026, 2, 1))
	s.Equal(0, second.Updated)
	s.Equal(3, second.Unchanged)
	s.Empty(second.FailedIDs)
	s.Len(s.publisher.all(), 1, "only c1 flipped to active")
}

func (s *ReconcileSuite) TestStalePaymentLeavesClientInactive() {
	s.addClient("c1", "late@x.com")
	s.pay("late@x.com", "8", "2026-01-15")

	s.reconcile(at(2026, 2, 20))

	st := s.status("c1")
	s.False(st.Active)
	s.Nil(st.EvidenceRecordID, "an expired payment is not stored as evidence")
	s.Nil(st.EvidenceDate)
	s.Empty(s.publisher.all(), "no flip from the implicit inactive state")
}

func (s *ReconcileSuite) TestExpiryEmitsDeactivation() {
	s.addClient("c1", "one@x.com")
	s.pay("one@x.com", "8", "2026-01-21")
	s.reconcile(at(2026, 2, 1))

	summary := s.reconcile(at(2026, 2, 21))
	s.Equal(1, summary.Updated)
	s.Equal(1, summary.Flipped)

	events := s.publisher.all()
	s.Require().Len(events, 2)
	s.True(events[1].OldActive)
	s.False(events[1].NewActive)
	s.Nil(events[1].EvidenceRecordID)
	s.Nil(s.status("c1").EvidenceRecordID, "expiry clears evidence")
}

func (s *ReconcileSuite) TestBoundaryIsInclusive() {
	s.addClient("c1", "one@x.com")
	s.pay("one@x.com", "8", "2026-01-22")

	s.reconcile(at(2026, 2, 21))
	s.True(s.status("c1").Active, "payment exactly WindowDays before as-of counts")
}

func (s *ReconcileSuite) TestOrphanResolvedDuringPass() {
	s.pay("later@x.com", "8", "2026-01-25")
	s.addClient("c1", "first@x.com", "later@x.com")

	summary := s.reconcile(at(2026, 2, 1))
	s.Equal(1, summary.Orphans.Resolved)
	s.True(s.status("c1").Active)
}

func (s *ReconcileSuite) TestFailureIsIsolatedPerClient() {
	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		s.addClient(id, id+"@x.com")
		s.pay(id+"@x.com", "8", "2026-01-25")
	}
	corrupt := domain.ClientID("c2")
	s.ledger.bad = map[domain.ClientID][]*ledger.Record{
		corrupt: {{ID: domain.NewLedgerRecordID(), ResolvedClientID: &corrupt}},
	}

	summary := s.reconcile(at(2026, 2, 1))

	s.Equal(4, summary.Total)
	s.Equal(3, summary.Updated)
	s.Equal(1, summary.Failed)
	s.Equal([]domain.ClientID{"c2"}, summary.FailedIDs)
	s.Contains(summary.Failures[0].Error, "corrupt ledger record")
	_, err := s.rec.Status(context.Background(), "c2")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ReconcileSuite) TestPanicIsIsolatedPerClient() {
	s.addClient("c1", "one@x.com")
	s.addClient("c2", "two@x.com")
	s.ledger.before = func(id domain.ClientID) {
		if id == "c1" {
			panic("boom")
		}
	}

	summary := s.reconcile(at(2026, 2, 1))
	s.Equal([]domain.ClientID{"c1"}, summary.FailedIDs)
	s.Equal(1, summary.Updated)
}

func (s *ReconcileSuite) TestConcurrentPassIsRejected() {
	release, ok, err := s.locker.TryAcquire(context.Background(), lock.RunKey)
	s.Require().NoError(err)
	s.Require().True(ok)
	defer release()

	_, err = s.rec.Reconcile(at(2026, 2, 1))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ReconcileSuite) TestCancelledPassConvergesOnResume() {
	ids := []string{"c1", "c2", "c3", "c4", "c5", "c6"}
	for _, id := range ids {
		s.addClient(id, id+"@x.com")
		s.pay(id+"@x.com", "8", "2026-01-25")
	}
	logger, _ := testutil.NewLogger()
	s.rec = New(s.clients, s.ledger, s.statuses, WithPublisher(s.publisher), WithLocker(s.locker), WithLogger(logger), WithWorkers(1))

	ctx, cancel := context.WithCancel(at(2026, 2, 1))
	s.ledger.before = func(id domain.ClientID) {
		if id == "c2" {
			cancel()
		}
	}

	partial := s.reconcile(ctx)
	s.True(partial.Cancelled)
	s.Equal(2, partial.Updated, "the client in flight at cancellation still completes")
	s.Equal(len(ids)-2, partial.Skipped)

	s.ledger.before = nil
	resumed := s.reconcile(at(2026, 2, 1))
	s.False(resumed.Cancelled)
	s.Equal(len(ids)-2, resumed.Updated)

	final := s.reconcile(at(2026, 2, 1))
	s.Equal(0, final.Updated)
	for _, id := range ids {
		s.True(s.status(id).Active)
	}
}

func (s *ReconcileSuite) TestForget() {
	s.addClient("c1", "one@x.com")
	s.reconcile(at(2026, 2, 1))

	s.Require().NoError(s.rec.Forget(context.Background(), "c1"))
	_, err := s.rec.Status(context.Background(), "c1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.NoError(s.rec.Forget(context.Background(), "c1"), "forgetting twice is fine")
}

func TestPublishFailureLeavesDiffForNextPass(t *testing.T) {
	ctrl := gomock.NewController(t)
	statuses := mocks.NewMockStatusStore(ctrl)
	ledgerMock := mocks.NewMockLedger(ctrl)
	publisher := mocks.NewMockPublisher(ctrl)

	clients := client.NewInMemory()
	require.NoError(t, clients.Create(context.Background(), &identity.Client{ID: "c1", PrimaryEmail: "one@x.com"}))
	id := domain.ClientID("c1")
	rec := &ledger.Record{ID: domain.NewLedgerRecordID(), ResolvedClientID: &id, EffectiveDate: domain.NewDate(2026, 1, 25)}

	ledgerMock.EXPECT().ResolveOrphans(gomock.Any()).Return(ledger.OrphanReport{}, nil)
	ledgerMock.EXPECT().ListByClient(gomock.Any(), id).Return([]*ledger.Record{rec}, nil)
	statuses.EXPECT().Find(gomock.Any(), id).Return(nil, sentinel.ErrNotFound)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("queue closed"))
	// Save must not run when the event could not be handed off.

	r := New(clients, ledgerMock, statuses, WithPublisher(publisher))
	summary, err := r.Reconcile(at(2026, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, []domain.ClientID{"c1"}, summary.FailedIDs)
	assert.Contains(t, summary.Failures[0].Error, "publish status change")
}

func TestListClientsFailureAbortsPass(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledgerMock := mocks.NewMockLedger(ctrl)
	ledgerMock.EXPECT().ResolveOrphans(gomock.Any()).Return(ledger.OrphanReport{}, nil)

	r := New(failingLister{}, ledgerMock, store.NewInMemory())
	_, err := r.Reconcile(at(2026, 2, 1))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

type failingLister struct{}

func (failingLister) ListClients(context.Context) ([]*identity.Client, error) {
	return nil, errors.New("connection refused")
}
