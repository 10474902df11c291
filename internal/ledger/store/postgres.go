package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rmr/internal/ledger/models"
	"rmr/internal/platform/postgres"
	"rmr/pkg/domain"
	"rmr/pkg/platform/sentinel"
	"rmr/pkg/platform/tx"
)

// PostgresStore persists ledger records. Idempotence rests on the
// ledger_records_email_date_key unique constraint, never on a prior read.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, normalized_email, resolved_client_id, amount, effective_date, source, created_at`

// Insert returns sentinel.ErrAlreadyUsed when the (email, date) key is taken,
// including when a concurrent insert won the race.
func (s *PostgresStore) Insert(ctx context.Context, rec *models.Record) error {
	query := `
		INSERT INTO ledger_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT ON CONSTRAINT ledger_records_email_date_key DO NOTHING
	`
	res, err := tx.Pick(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(rec.ID),
		rec.NormalizedEmail,
		nullableClient(rec.ResolvedClientID),
		rec.Amount,
		rec.EffectiveDate,
		string(rec.Source),
		rec.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert ledger record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert ledger record: %w", err)
	}
	if n == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *PostgresStore) FindByKey(ctx context.Context, key models.Key) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM ledger_records WHERE normalized_email = $1 AND effective_date = $2`
	rec, err := scanRecord(tx.Pick(ctx, s.db).QueryRowContext(ctx, query, key.NormalizedEmail, key.EffectiveDate))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find ledger record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListByClient(ctx context.Context, id domain.ClientID) ([]*models.Record, error) {
	query := `
		SELECT ` + recordColumns + ` FROM ledger_records
		WHERE resolved_client_id = $1
		ORDER BY effective_date, created_at, id
	`
	return s.query(ctx, "list ledger records by client", query, string(id))
}

func (s *PostgresStore) ListByEmail(ctx context.Context, normalized string) ([]*models.Record, error) {
	query := `
		SELECT ` + recordColumns + ` FROM ledger_records
		WHERE normalized_email = $1
		ORDER BY effective_date, created_at, id
	`
	return s.query(ctx, "list ledger records by email", query, normalized)
}

func (s *PostgresStore) ListUnresolved(ctx context.Context, limit int) ([]*models.Record, error) {
	query := `
		SELECT ` + recordColumns + ` FROM ledger_records
		WHERE resolved_client_id IS NULL
		ORDER BY effective_date, created_at, id
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.query(ctx, "list unresolved ledger records", query)
}

// SetResolvedClient only touches rows that are still unresolved, so a
// backfill never overwrites an existing attribution.
func (s *PostgresStore) SetResolvedClient(ctx context.Context, id domain.LedgerRecordID, clientID domain.ClientID) (bool, error) {
	res, err := tx.Pick(ctx, s.db).ExecContext(ctx, `
		UPDATE ledger_records SET resolved_client_id = $2
		WHERE id = $1 AND resolved_client_id IS NULL
	`, uuid.UUID(id), string(clientID))
	if err != nil {
		return false, fmt.Errorf("backfill ledger record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("backfill ledger record: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) DetachClient(ctx context.Context, clientID domain.ClientID) (int64, error) {
	res, err := tx.Pick(ctx, s.db).ExecContext(ctx,
		`UPDATE ledger_records SET resolved_client_id = NULL WHERE resolved_client_id = $1`, string(clientID))
	if err != nil {
		return 0, fmt.Errorf("detach ledger records: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) query(ctx context.Context, op, query string, args ...any) ([]*models.Record, error) {
	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := []*models.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		rec      models.Record
		id       uuid.UUID
		clientID sql.NullString
		amount   decimal.Decimal
		source   string
	)
	if err := row.Scan(&id, &rec.NormalizedEmail, &clientID, &amount, &rec.EffectiveDate, &source, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.ID = domain.LedgerRecordID(id)
	rec.Amount = amount
	rec.Source = domain.Source(source)
	if clientID.Valid {
		c := domain.ClientID(clientID.String)
		rec.ResolvedClientID = &c
	}
	return &rec, nil
}

func nullableClient(id *domain.ClientID) sql.NullString {
	if id == nil || id.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}
