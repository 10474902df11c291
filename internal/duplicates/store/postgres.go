package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"rmr/internal/duplicates/models"
	"rmr/pkg/domain"
	"rmr/pkg/platform/sentinel"
	"rmr/pkg/platform/tx"
)

// PostgresStore persists the duplicate review queue in duplicate_candidates.
type PostgresStore struct {
	db     *sql.DB
	runner *tx.Runner
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, runner: tx.NewRunner(db)}
}

const candidateColumns = `id, primary_client_id, secondary_client_id, reasons, confidence, review_status, detected_at, reviewed_at, reviewed_by`

// Sync upserts detected candidates and prunes stale pending ones in a single
// transaction. Review columns are never touched by the upsert.
func (s *PostgresStore) Sync(ctx context.Context, detected []models.Candidate, now time.Time) (models.SyncReport, error) {
	var report models.SyncReport
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		exec := tx.Pick(ctx, s.db)
		ids := make([]string, 0, len(detected))
		for _, c := range detected {
			ids = append(ids, c.ID)
			var inserted bool
			err := exec.QueryRowContext(ctx, `
				INSERT INTO duplicate_candidates (id, primary_client_id, secondary_client_id, reasons, confidence, review_status, detected_at)
				VALUES ($1, $2, $3, $4, $5, 'pending', $6)
				ON CONFLICT (id) DO UPDATE SET
					primary_client_id = EXCLUDED.primary_client_id,
					secondary_client_id = EXCLUDED.secondary_client_id,
					reasons = EXCLUDED.reasons,
					confidence = EXCLUDED.confidence
				RETURNING (xmax = 0)
			`, c.ID, string(c.PrimaryClientID), string(c.SecondaryClientID), pq.Array(reasonStrings(c.Reasons)), string(c.Confidence), now).Scan(&inserted)
			if err != nil {
				return fmt.Errorf("upsert duplicate candidate: %w", err)
			}
			if inserted {
				report.New++
			} else {
				report.Updated++
			}
		}

		res, err := exec.ExecContext(ctx, `
			DELETE FROM duplicate_candidates
			WHERE review_status = 'pending' AND NOT (id = ANY($1))
		`, pq.Array(ids))
		if err != nil {
			return fmt.Errorf("prune duplicate candidates: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("prune duplicate candidates: %w", err)
		}
		report.Pruned = int(n)
		return nil
	})
	if err != nil {
		return models.SyncReport{}, err
	}
	return report, nil
}

func (s *PostgresStore) Find(ctx context.Context, id string) (*models.Candidate, error) {
	c, err := scanCandidate(tx.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM duplicate_candidates WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find duplicate candidate: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) List(ctx context.Context, status models.ReviewStatus) ([]models.Candidate, error) {
	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx, `
		SELECT `+candidateColumns+` FROM duplicate_candidates
		WHERE $1 = '' OR review_status = $1
		ORDER BY id
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list duplicate candidates: %w", err)
	}
	defer rows.Close()

	out := []models.Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("list duplicate candidates: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list duplicate candidates: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SetReview(ctx context.Context, id string, status models.ReviewStatus, by string, at time.Time) (*models.Candidate, error) {
	c, err := scanCandidate(tx.Pick(ctx, s.db).QueryRowContext(ctx, `
		UPDATE duplicate_candidates
		SET review_status = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = $1
		RETURNING `+candidateColumns, id, string(status), by, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("review duplicate candidate: %w", err)
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (*models.Candidate, error) {
	var (
		c                  models.Candidate
		primary, secondary string
		reasons            pq.StringArray
		confidence, status string
		reviewedAt         sql.NullTime
	)
	if err := row.Scan(&c.ID, &primary, &secondary, &reasons, &confidence, &status, &c.DetectedAt, &reviewedAt, &c.ReviewedBy); err != nil {
		return nil, err
	}
	c.PrimaryClientID = domain.ClientID(primary)
	c.SecondaryClientID = domain.ClientID(secondary)
	c.Reasons = make([]models.Reason, len(reasons))
	for i, r := range reasons {
		c.Reasons[i] = models.Reason(r)
	}
	c.Confidence = models.Confidence(confidence)
	c.ReviewStatus = models.ReviewStatus(status)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		c.ReviewedAt = &t
	}
	return &c, nil
}

func reasonStrings(rs []models.Reason) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}
