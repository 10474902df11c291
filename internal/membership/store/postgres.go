package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"rmr/internal/membership/models"
	"rmr/pkg/domain"
	"rmr/pkg/platform/sentinel"
	"rmr/pkg/platform/tx"
)

// PostgresStore persists membership_status rows. Writes join the transaction
// carried in ctx so a status change and its outbox row commit together.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const statusColumns = `client_id, active, last_evaluated, evidence_record_id, evidence_date`

func (s *PostgresStore) Find(ctx context.Context, id domain.ClientID) (*models.Status, error) {
	query := `SELECT ` + statusColumns + ` FROM membership_status WHERE client_id = $1`
	st, err := scanStatus(tx.Pick(ctx, s.db).QueryRowContext(ctx, query, string(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find membership status: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) Save(ctx context.Context, st *models.Status) error {
	query := `
		INSERT INTO membership_status (` + statusColumns + `)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (client_id) DO UPDATE SET
			active = EXCLUDED.active,
			last_evaluated = EXCLUDED.last_evaluated,
			evidence_record_id = EXCLUDED.evidence_record_id,
			evidence_date = EXCLUDED.evidence_date
	`
	var evidenceID uuid.NullUUID
	if st.EvidenceRecordID != nil {
		evidenceID = uuid.NullUUID{UUID: uuid.UUID(*st.EvidenceRecordID), Valid: true}
	}
	var evidenceDate domain.Date
	if st.EvidenceDate != nil {
		evidenceDate = *st.EvidenceDate
	}
	_, err := tx.Pick(ctx, s.db).ExecContext(ctx, query,
		string(st.ClientID), st.Active, st.LastEvaluated, evidenceID, evidenceDate)
	if err != nil {
		return fmt.Errorf("save membership status: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.ClientID) error {
	res, err := tx.Pick(ctx, s.db).ExecContext(ctx, `DELETE FROM membership_status WHERE client_id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete membership status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete membership status: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Status, error) {
	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx, `SELECT `+statusColumns+` FROM membership_status ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("list membership status: %w", err)
	}
	defer rows.Close()

	out := []*models.Status{}
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("list membership status: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list membership status: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatus(row rowScanner) (*models.Status, error) {
	var (
		st         models.Status
		clientID   string
		evidenceID uuid.NullUUID
		date       domain.Date
	)
	if err := row.Scan(&clientID, &st.Active, &st.LastEvaluated, &evidenceID, &date); err != nil {
		return nil, err
	}
	st.ClientID = domain.ClientID(clientID)
	if evidenceID.Valid {
		id := domain.LedgerRecordID(evidenceID.UUID)
		st.EvidenceRecordID = &id
	}
	if !date.IsZero() {
		st.EvidenceDate = &date
	}
	return &st, nil
}
