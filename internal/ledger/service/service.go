// Package service ingests payment events into the ledger.
//
// Ingestion is idempotent on (normalized email, effective date): a repeat
// delivery returns the stored record untouched. Identity is resolved at
// ingest time and retried for unresolved records on every reconcile pass.
// Ingestion never touches membership status.
package service

import (
	"context"
	"errors"
	"log/slog"

	"rmr/internal/ledger/metrics"
	"rmr/internal/ledger/models"
	"rmr/pkg/domain"
	dErrors "rmr/pkg/domain-errors"
	"rmr/pkg/email"
	"rmr/pkg/platform/sentinel"
	"rmr/pkg/requestcontext"
)

type Store interface {
	Insert(ctx context.Context, rec *models.Record) error
	FindByKey(ctx context.Context, key models.Key) (*models.Record, error)
	ListByClient(ctx context.Context, id domain.ClientID) ([]*models.Record, error)
	ListByEmail(ctx context.Context, normalized string) ([]*models.Record, error)
	ListUnresolved(ctx context.Context, limit int) ([]*models.Record, error)
	SetResolvedClient(ctx context.Context, id domain.LedgerRecordID, clientID domain.ClientID) (bool, error)
	DetachClient(ctx context.Context, clientID domain.ClientID) (int64, error)
}

type Resolver interface {
	Resolve(ctx context.Context, rawEmail string) (domain.ClientID, bool, error)
}

type Service struct {
	store    Store
	resolver Resolver
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store Store, resolver Resolver, opts ...Option) *Service {
	s := &Service{store: store, resolver: resolver}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest validates and records one payment event.
//
// Errors: CodeValidation for malformed input (nothing is stored). A duplicate
// key is not an error: the existing record comes back with Duplicate set.
func (s *Service) Ingest(ctx context.Context, cmd models.IngestCommand) (*models.IngestResult, error) {
	valid, err := cmd.Validate()
	if err != nil {
		s.metrics.IncIngest(sourceLabel(cmd.Source), "invalid")
		return nil, err
	}
	source := string(valid.Source)

	rec := &models.Record{
		ID:              domain.NewLedgerRecordID(),
		NormalizedEmail: valid.NormalizedEmail,
		Amount:          valid.Amount,
		EffectiveDate:   valid.EffectiveDate,
		Source:          valid.Source,
		CreatedAt:       requestcontext.Now(ctx),
	}
	if clientID, ok := s.resolve(ctx, valid.NormalizedEmail); ok {
		rec.ResolvedClientID = &clientID
	}

	err = s.store.Insert(ctx, rec)
	switch {
	case err == nil:
		s.metrics.IncIngest(source, "created")
		s.log(ctx, slog.LevelInfo, "ledger record created",
			"record_id", rec.ID, "email", rec.NormalizedEmail, "effective_date", rec.EffectiveDate, "source", source, "resolved", rec.IsResolved())
		return &models.IngestResult{Record: rec}, nil
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		existing, findErr := s.store.FindByKey(ctx, rec.Key())
		if findErr != nil {
			s.metrics.IncIngest(source, "error")
			return nil, dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to load existing ledger record")
		}
		s.metrics.IncIngest(source, "duplicate")
		s.log(ctx, slog.LevelInfo, "duplicate ledger ingest ignored",
			"record_id", existing.ID, "email", existing.NormalizedEmail, "effective_date", existing.EffectiveDate, "source", source,
			"stored_amount", existing.Amount.String(), "ignored_amount", valid.Amount.String())
		return &models.IngestResult{Record: existing, Duplicate: true}, nil
	default:
		s.metrics.IncIngest(source, "error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store ledger record")
	}
}

// resolve treats a resolver failure as "unresolved for now"; the record is
// picked up again by ResolveOrphans.
func (s *Service) resolve(ctx context.Context, normalized string) (domain.ClientID, bool) {
	if s.resolver == nil {
		return "", false
	}
	id, ok, err := s.resolver.Resolve(ctx, normalized)
	if err != nil {
		s.metrics.IncResolveFailure()
		s.log(ctx, slog.LevelWarn, "identity resolution failed at ingest", "email", normalized, "error", err)
		return "", false
	}
	return id, ok
}

// ResolveOrphans retries resolution for every unresolved record. Failures are
// counted per record and never stop the pass.
func (s *Service) ResolveOrphans(ctx context.Context) (models.OrphanReport, error) {
	var report models.OrphanReport
	orphans, err := s.store.ListUnresolved(ctx, 0)
	if err != nil {
		return report, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list unresolved ledger records")
	}
	report.Scanned = len(orphans)

	for _, rec := range orphans {
		if ctx.Err() != nil {
			break
		}
		id, ok, err := s.resolver.Resolve(ctx, rec.NormalizedEmail)
		if err != nil {
			report.Failed++
			s.log(ctx, slog.LevelWarn, "orphan resolution failed", "record_id", rec.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		updated, err := s.store.SetResolvedClient(ctx, rec.ID, id)
		if err != nil {
			report.Failed++
			s.log(ctx, slog.LevelWarn, "orphan backfill failed", "record_id", rec.ID, "client_id", id, "error", err)
			continue
		}
		if updated {
			report.Resolved++
			s.log(ctx, slog.LevelInfo, "orphan ledger record resolved", "record_id", rec.ID, "client_id", id)
		}
	}

	s.metrics.AddOrphans("resolved", report.Resolved)
	s.metrics.AddOrphans("failed", report.Failed)
	s.metrics.AddOrphans("unresolved", report.Scanned-report.Resolved-report.Failed)
	return report, nil
}

// DetachClient clears attribution on a deleted client's records, keeping
// the history itself.
func (s *Service) DetachClient(ctx context.Context, id domain.ClientID) (int64, error) {
	n, err := s.store.DetachClient(ctx, id)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to detach ledger records")
	}
	return n, nil
}

func (s *Service) ListByClient(ctx context.Context, id domain.ClientID) ([]*models.Record, error) {
	recs, err := s.store.ListByClient(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list ledger records")
	}
	return recs, nil
}

// ListByEmail returns records stored under the normalized form of rawEmail.
func (s *Service) ListByEmail(ctx context.Context, rawEmail string) ([]*models.Record, error) {
	normalized := email.Normalize(rawEmail)
	if normalized == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "email is required")
	}
	recs, err := s.store.ListByEmail(ctx, normalized)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list ledger records")
	}
	return recs, nil
}

// sourceLabel keeps metric cardinality bounded for rejected input.
func sourceLabel(raw string) string {
	if src, err := domain.ParseSource(raw); err == nil {
		return string(src)
	}
	return "unknown"
}

func (s *Service) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Log(ctx, level, msg, append(args, requestcontext.LogAttrs(ctx)...)...)
}
