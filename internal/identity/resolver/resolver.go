// Package resolver maps raw email strings to canonical client identities.
//
// The Resolver owns an explicit Index built from every client identity.
// Mutations elsewhere call Invalidate; the next lookup rebuilds the index
// wholesale. Concurrent rebuilds for the same generation are coalesced.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"rmr/internal/identity/metrics"
	"rmr/internal/identity/models"
	"rmr/pkg/domain"
	dErrors "rmr/pkg/domain-errors"
	"rmr/pkg/email"
	"rmr/pkg/requestcontext"
)

// Source lists every client identity.
type Source interface {
	ListClients(ctx context.Context) ([]*models.Client, error)
}

// ConflictRecorder persists index conflicts for operator review.
type ConflictRecorder interface {
	RecordConflicts(ctx context.Context, conflicts []models.Conflict) error
}

const defaultLoadTimeout = 5 * time.Second

type Resolver struct {
	source      Source
	recorder    ConflictRecorder
	logger      *slog.Logger
	metrics     *metrics.Metrics
	loadTimeout time.Duration

	mu       sync.RWMutex
	index    *Index
	indexGen uint64
	gen      uint64

	group singleflight.Group
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithConflictRecorder persists conflicts found on each rebuild.
func WithConflictRecorder(rec ConflictRecorder) Option {
	return func(r *Resolver) { r.recorder = rec }
}

// WithLoadTimeout bounds each call to the identity source.
func WithLoadTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.loadTimeout = d
		}
	}
}

func New(source Source, opts ...Option) *Resolver {
	r := &Resolver{
		source:      source,
		loadTimeout: defaultLoadTimeout,
		gen:         1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the client owning rawEmail. Matching ignores case and
// surrounding whitespace. Malformed or empty input is a miss, not an error;
// an error means the index could not be loaded.
func (r *Resolver) Resolve(ctx context.Context, rawEmail string) (domain.ClientID, bool, error) {
	normalized := email.Normalize(rawEmail)
	if !email.Plausible(normalized) {
		r.metrics.IncResolution("malformed")
		return "", false, nil
	}

	ix, err := r.Index(ctx)
	if err != nil {
		r.metrics.IncResolution("error")
		return "", false, err
	}
	id, ok := ix.Lookup(normalized)
	if ok {
		r.metrics.IncResolution("hit")
	} else {
		r.metrics.IncResolution("miss")
	}
	return id, ok, nil
}

// Invalidate marks the current index stale. It never blocks on a rebuild.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.gen++
	r.mu.Unlock()
}

// Index returns the current index, rebuilding it first if it is stale.
func (r *Resolver) Index(ctx context.Context) (*Index, error) {
	r.mu.RLock()
	ix, fresh := r.index, r.index != nil && r.indexGen == r.gen
	gen := r.gen
	r.mu.RUnlock()
	if fresh {
		return ix, nil
	}
	return r.rebuild(ctx, gen)
}

// Rebuild invalidates and rebuilds the index immediately.
func (r *Resolver) Rebuild(ctx context.Context) (*Index, error) {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.mu.Unlock()
	return r.rebuild(ctx, gen)
}

func (r *Resolver) rebuild(ctx context.Context, gen uint64) (*Index, error) {
	ch := r.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		// Detached so one caller giving up does not fail the others sharing
		// this rebuild; the load timeout still bounds it.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.loadTimeout)
		defer cancel()
		return r.build(loadCtx, gen)
	})

	select {
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "identity index rebuild abandoned")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Index), nil
	}
}

func (r *Resolver) build(ctx context.Context, gen uint64) (*Index, error) {
	start := time.Now()
	clients, err := r.source.ListClients(ctx)
	if err != nil {
		r.metrics.IncRebuildError()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "identity source timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load client identities")
	}

	ix := BuildIndex(clients, requestcontext.Now(ctx))
	r.metrics.ObserveRebuild(ix.Size(), len(ix.conflicts), time.Since(start))

	r.mu.Lock()
	if r.index == nil || gen >= r.indexGen {
		r.index, r.indexGen = ix, gen
	}
	r.mu.Unlock()

	r.reportConflicts(ctx, ix.conflicts)
	return ix, nil
}

func (r *Resolver) reportConflicts(ctx context.Context, conflicts []models.Conflict) {
	if len(conflicts) == 0 {
		return
	}
	if r.logger != nil {
		for _, c := range conflicts {
			r.logger.WarnContext(ctx, "identity conflict",
				"email", c.Email,
				"kind", c.Kind,
				"winner_client_id", c.WinnerID,
				"claimants", c.ClaimantIDs,
			)
		}
	}
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordConflicts(ctx, conflicts); err != nil && r.logger != nil {
		r.logger.ErrorContext(ctx, "failed to record identity conflicts", "count", len(conflicts), "error", err)
	}
}
