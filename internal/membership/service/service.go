// Package service reconciles membership status against the ledger.
//
// A pass backfills orphaned ledger records, then evaluates every client on a
// bounded worker pool. Status rows are written only when the evaluation
// differs from what is stored, so a repeated pass with no new payments
// writes nothing. A flip of the active flag emits a StatusChanged event in
// the same unit of work as the row write.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"rmr/internal/eligibility"
	identity "rmr/internal/identity/models"
	ledger "rmr/internal/ledger/models"
	"rmr/internal/membership/lock"
	"rmr/internal/membership/metrics"
	"rmr/internal/membership/models"
	"rmr/pkg/domain"
	dErrors "rmr/pkg/domain-errors"
	"rmr/pkg/platform/sentinel"
	"rmr/pkg/platform/tx"
	"rmr/pkg/requestcontext"
)

type StatusStore interface {
	Find(ctx context.Context, id domain.ClientID) (*models.Status, error)
	Save(ctx context.Context, st *models.Status) error
	Delete(ctx context.Context, id domain.ClientID) error
	List(ctx context.Context) ([]*models.Status, error)
}

type ClientLister interface {
	ListClients(ctx context.Context) ([]*identity.Client, error)
}

// Ledger is implemented by the ledger service.
type Ledger interface {
	ListByClient(ctx context.Context, id domain.ClientID) ([]*ledger.Record, error)
	ResolveOrphans(ctx context.Context) (ledger.OrphanReport, error)
}

type Publisher interface {
	Publish(ctx context.Context, event models.StatusChanged) error
}

type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Locker interface {
	TryAcquire(ctx context.Context, key string) (lock.Release, bool, error)
	Acquire(ctx context.Context, key string) (lock.Release, error)
}

const (
	defaultWorkers       = 4
	defaultClientTimeout = 10 * time.Second
	tracerName           = "rmr/membership"
)

type Reconciler struct {
	clients       ClientLister
	ledger        Ledger
	statuses      StatusStore
	publisher     Publisher
	tx            Transactor
	locker        Locker
	workers       int
	clientTimeout time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
}

type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

func WithPublisher(p Publisher) Option {
	return func(r *Reconciler) { r.publisher = p }
}

func WithTransactor(t Transactor) Option {
	return func(r *Reconciler) { r.tx = t }
}

func WithLocker(l Locker) Option {
	return func(r *Reconciler) { r.locker = l }
}

func WithWorkers(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithClientTimeout bounds the work for one client, lock wait included.
func WithClientTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.clientTimeout = d
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Reconciler) { r.tracer = t }
}

func New(clients ClientLister, ledger Ledger, statuses StatusStore, opts ...Option) *Reconciler {
	r := &Reconciler{
		clients:       clients,
		ledger:        ledger,
		statuses:      statuses,
		tx:            tx.Noop{},
		locker:        lock.NewInMemory(),
		workers:       defaultWorkers,
		clientTimeout: defaultClientTimeout,
		tracer:        otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type outcomeKind int

const (
	outcomeSkipped outcomeKind = iota
	outcomeUnchanged
	outcomeUpdated
	outcomeFailed
)

type outcome struct {
	kind    outcomeKind
	flipped bool
	err     error
}

// Reconcile runs one pass. Only one pass runs at a time per lock backend;
// a concurrent call fails with CodeConflict. Per-client failures land in the
// summary and never fail the pass. Cancelling ctx stops dispatch after the
// clients already in flight finish; the summary reports Cancelled and the
// count of Skipped clients.
func (r *Reconciler) Reconcile(ctx context.Context) (*models.Summary, error) {
	release, ok, err := r.locker.TryAcquire(ctx, lock.RunKey)
	if err != nil {
		r.metrics.ObserveRun("error", 0)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "reconcile lock unavailable")
	}
	if !ok {
		r.metrics.ObserveRun("busy", 0)
		return nil, dErrors.New(dErrors.CodeConflict, "a reconcile pass is already running")
	}
	defer release()

	start := time.Now()
	now := requestcontext.Now(ctx)
	ctx = requestcontext.WithTime(ctx, now)
	asOf := domain.DateOf(now)

	ctx, span := r.tracer.Start(ctx, "membership.Reconcile",
		trace.WithAttributes(attribute.String("as_of", asOf.String()), attribute.Int("workers", r.workers)))
	defer span.End()

	summary := &models.Summary{AsOf: asOf}
	orphans, err := r.ledger.ResolveOrphans(ctx)
	if err != nil {
		r.log(ctx, slog.LevelWarn, "orphan backfill failed, continuing with current attribution", "error", err)
	}
	summary.Orphans = orphans

	clients, err := r.clients.ListClients(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list clients failed")
		r.metrics.ObserveRun("error", time.Since(start))
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list clients")
	}
	summary.Total = len(clients)

	outcomes := make([]outcome, len(clients))
	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for i, c := range clients {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcomes[i] = r.reconcileClient(ctx, c.ID, asOf)
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range outcomes {
		switch o.kind {
		case outcomeUpdated:
			summary.Updated++
			if o.flipped {
				summary.Flipped++
			}
		case outcomeUnchanged:
			summary.Unchanged++
		case outcomeFailed:
			summary.Failures = append(summary.Failures, models.ClientFailure{ClientID: clients[i].ID, Error: o.err.Error()})
		default:
			summary.Skipped++
		}
	}
	summary.Cancelled = ctx.Err() != nil
	summary.Finalize(time.Since(start))

	r.record(ctx, span, summary)
	return summary, nil
}

func (r *Reconciler) record(ctx context.Context, span trace.Span, s *models.Summary) {
	span.SetAttributes(
		attribute.Int("total", s.Total),
		attribute.Int("updated", s.Updated),
		attribute.Int("failed", s.Failed),
		attribute.Int("skipped", s.Skipped),
	)
	outcome := "completed"
	if s.Cancelled {
		outcome = "cancelled"
		span.SetStatus(codes.Error, "cancelled")
	}
	r.metrics.ObserveRun(outcome, time.Duration(s.DurationMs)*time.Millisecond)
	r.metrics.AddClients("updated", s.Updated)
	r.metrics.AddClients("unchanged", s.Unchanged)
	r.metrics.AddClients("failed", s.Failed)
	r.metrics.AddClients("skipped", s.Skipped)

	level := slog.LevelInfo
	if s.Failed > 0 || s.Cancelled {
		level = slog.LevelWarn
	}
	r.log(ctx, level, "reconcile pass finished",
		"as_of", s.AsOf.String(),
		"total", s.Total,
		"updated", s.Updated,
		"unchanged", s.Unchanged,
		"failed", s.Failed,
		"failed_ids", s.FailedIDs,
		"skipped", s.Skipped,
		"cancelled", s.Cancelled,
		"orphans_resolved", s.Orphans.Resolved,
		"duration_ms", s.DurationMs,
	)
}

// reconcileClient isolates one client: its own deadline, its own span, and
// a recovered panic becomes a failure. Work already started is not cut short
// by cancellation of the pass.
func (r *Reconciler) reconcileClient(ctx context.Context, id domain.ClientID, asOf domain.Date) (out outcome) {
	if ctx.Err() != nil {
		return outcome{kind: outcomeSkipped}
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.clientTimeout)
	defer cancel()
	ctx, span := r.tracer.Start(ctx, "membership.reconcileClient", trace.WithAttributes(attribute.String("client_id", string(id))))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			out = outcome{kind: outcomeFailed, err: fmt.Errorf("panic: %v", p)}
		}
		if out.kind == outcomeFailed {
			span.RecordError(out.err)
			span.SetStatus(codes.Error, "client evaluation failed")
			r.log(ctx, slog.LevelWarn, "client evaluation failed", "client_id", id, "error", out.err)
		}
	}()

	return r.evaluate(ctx, id, asOf)
}

func (r *Reconciler) evaluate(ctx context.Context, id domain.ClientID, asOf domain.Date) outcome {
	release, err := r.locker.Acquire(ctx, lock.ClientKey(string(id)))
	if err != nil {
		return failed(err)
	}
	defer release()

	records, err := r.ledger.ListByClient(ctx, id)
	if err != nil {
		return failed(fmt.Errorf("load ledger: %w", err))
	}
	result, err := eligibility.Evaluate(id, records, asOf, eligibility.WindowDays)
	if err != nil {
		return failed(err)
	}

	prev, err := r.statuses.Find(ctx, id)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return failed(fmt.Errorf("load status: %w", err))
	}
	next := models.NewStatus(id, result.Active, result.Evidence, requestcontext.Now(ctx))
	if !prev.Differs(next) {
		return outcome{kind: outcomeUnchanged}
	}

	event, flipped := models.ChangeFrom(prev, next)
	// Publish precedes Save so a non-transactional publisher delivers at
	// least once: a failed Save leaves the diff for the next pass.
	err = r.tx.RunInTx(ctx, func(ctx context.Context) error {
		if flipped && r.publisher != nil {
			if err := r.publisher.Publish(ctx, event); err != nil {
				return fmt.Errorf("publish status change: %w", err)
			}
		}
		if err := r.statuses.Save(ctx, next); err != nil {
			return fmt.Errorf("save status: %w", err)
		}
		return nil
	})
	if err != nil {
		return failed(err)
	}
	if flipped {
		r.metrics.IncFlip(next.Active)
		r.log(ctx, slog.LevelInfo, "membership status changed",
			"client_id", id, "old_active", event.OldActive, "new_active", event.NewActive, "event_id", event.EventID)
	}
	return outcome{kind: outcomeUpdated, flipped: flipped}
}

func failed(err error) outcome {
	return outcome{kind: outcomeFailed, err: err}
}

// Forget drops the status row of a deleted client. A missing row is fine.
func (r *Reconciler) Forget(ctx context.Context, id domain.ClientID) error {
	release, err := r.locker.Acquire(ctx, lock.ClientKey(string(id)))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "client lock unavailable")
	}
	defer release()
	if err := r.statuses.Delete(ctx, id); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete membership status")
	}
	return nil
}

func (r *Reconciler) Status(ctx context.Context, id domain.ClientID) (*models.Status, error) {
	st, err := r.statuses.Find(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "membership status not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership status")
	}
	return st, nil
}

func (r *Reconciler) List(ctx context.Context) ([]*models.Status, error) {
	rows, err := r.statuses.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list membership status")
	}
	return rows, nil
}

func (r *Reconciler) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Log(ctx, level, msg, append(args, requestcontext.LogAttrs(ctx)...)...)
}
