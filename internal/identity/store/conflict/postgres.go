package conflict

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"rmr/internal/identity/models"
	"rmr/pkg/domain"
)

// PostgresStore persists identity conflicts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) RecordConflicts(ctx context.Context, conflicts []models.Conflict) error {
	query := `
		INSERT INTO identity_conflicts (id, email, kind, winner_client_id, claimant_ids, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			winner_client_id = EXCLUDED.winner_client_id,
			claimant_ids = EXCLUDED.claimant_ids,
			last_seen_at = EXCLUDED.last_seen_at
	`
	for _, c := range conflicts {
		ids := make([]string, len(c.ClaimantIDs))
		for i, id := range c.ClaimantIDs {
			ids[i] = string(id)
		}
		if _, err := s.db.ExecContext(ctx, query,
			c.ID, c.Email, string(c.Kind), string(c.WinnerID), pq.Array(ids), c.LastSeenAt,
		); err != nil {
			return fmt.Errorf("record identity conflict %s: %w", c.Email, err)
		}
	}
	return nil
}

func (s *PostgresStore) ListConflicts(ctx context.Context) ([]models.Conflict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, kind, winner_client_id, claimant_ids, first_seen_at, last_seen_at
		FROM identity_conflicts
		ORDER BY email, kind
	`)
	if err != nil {
		return nil, fmt.Errorf("list identity conflicts: %w", err)
	}
	defer rows.Close()

	var out []models.Conflict
	for rows.Next() {
		var (
			c      models.Conflict
			kind   string
			winner string
			ids    pq.StringArray
		)
		if err := rows.Scan(&c.ID, &c.Email, &kind, &winner, &ids, &c.FirstSeenAt, &c.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan identity conflict: %w", err)
		}
		c.Kind = models.ConflictKind(kind)
		c.WinnerID = domain.ClientID(winner)
		for _, id := range ids {
			c.ClaimantIDs = append(c.ClaimantIDs, domain.ClientID(id))
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
