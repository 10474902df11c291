package events

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rmr/internal/membership/metrics"
	"rmr/internal/membership/models"
	"rmr/pkg/platform/tx"
	"rmr/pkg/requestcontext"
)

// OutboxPublisher records events in status_outbox. Called inside the
// reconciler's transaction, the event commits or rolls back with the status
// row it describes.
type OutboxPublisher struct {
	db *sql.DB
}

func NewOutboxPublisher(db *sql.DB) *OutboxPublisher {
	return &OutboxPublisher{db: db}
}

func (p *OutboxPublisher) Publish(ctx context.Context, event models.StatusChanged) error {
	payload, err := Encode(event)
	if err != nil {
		return err
	}
	_, err = tx.Pick(ctx, p.db).ExecContext(ctx, `
		INSERT INTO status_outbox (id, client_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, event.EventID, string(event.ClientID), payload, requestcontext.Now(ctx))
	if err != nil {
		return fmt.Errorf("insert status outbox entry: %w", err)
	}
	return nil
}

const (
	defaultRelayBatch    = 100
	defaultRelayInterval = 2 * time.Second
)

// Relay forwards committed outbox rows to a sink in creation order and marks
// them sent. Rows are claimed with FOR UPDATE SKIP LOCKED so several relays
// can run against one database. A failed send stops the batch; the row is
// retried on the next tick.
type Relay struct {
	db       *sql.DB
	runner   *tx.Runner
	sink     Sink
	batch    int
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type RelayOption func(*Relay)

func WithBatch(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = logger }
}

func WithRelayMetrics(m *metrics.Metrics) RelayOption {
	return func(r *Relay) { r.metrics = m }
}

func NewRelay(db *sql.DB, sink Sink, opts ...RelayOption) *Relay {
	r := &Relay{
		db:       db,
		runner:   tx.NewRunner(db),
		sink:     sink,
		batch:    defaultRelayBatch,
		interval: defaultRelayInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays on every tick until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil && r.logger != nil {
				r.logger.ErrorContext(ctx, "status outbox relay failed", "error", err)
			}
		}
	}
}

type outboxRow struct {
	id      uuid.UUID
	payload []byte
}

// RelayOnce forwards up to one batch and returns how many rows were sent.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	sent := 0
	err := r.runner.RunInTx(ctx, func(ctx context.Context) error {
		rows, err := r.claim(ctx)
		if err != nil {
			return err
		}
		exec := tx.Pick(ctx, r.db)
		for _, row := range rows {
			event, err := Decode(row.payload)
			if err == nil {
				err = r.sink.Send(ctx, event)
			}
			if err != nil {
				r.metrics.IncEvent(r.sink.Name(), "error")
				if _, uerr := exec.ExecContext(ctx,
					`UPDATE status_outbox SET attempts = attempts + 1 WHERE id = $1`, row.id); uerr != nil {
					return fmt.Errorf("record outbox attempt: %w", uerr)
				}
				return nil
			}
			if _, err := exec.ExecContext(ctx,
				`UPDATE status_outbox SET sent_at = $2, attempts = attempts + 1 WHERE id = $1`,
				row.id, requestcontext.Now(ctx)); err != nil {
				return fmt.Errorf("mark outbox entry sent: %w", err)
			}
			r.metrics.IncEvent(r.sink.Name(), "sent")
			sent++
		}
		return nil
	})
	return sent, err
}

func (r *Relay) claim(ctx context.Context) ([]outboxRow, error) {
	rows, err := tx.Pick(ctx, r.db).QueryContext(ctx, `
		SELECT id, payload FROM status_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batch)
	if err != nil {
		return nil, fmt.Errorf("claim outbox entries: %w", err)
	}
	defer rows.Close()

	var out []outboxRow
	for rows.Next() {
		var row outboxRow
		if err := rows.Scan(&row.id, &row.payload); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
