package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"rmr/internal/identity/models"
	"rmr/internal/platform/postgres"
	"rmr/pkg/domain"
	"rmr/pkg/platform/sentinel"
	"rmr/pkg/platform/tx"
)

// PostgresStore persists client identities in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const clientColumns = `id, primary_email, alias_emails, first_name, last_name, phone, dog_name, address, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, c *models.Client) error {
	query := `
		INSERT INTO client_identities (` + clientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := tx.Pick(ctx, s.db).ExecContext(ctx, query,
		string(c.ID), c.PrimaryEmail, pq.Array(c.AliasEmails),
		c.FirstName, c.LastName, c.Phone, c.DogName, c.Address,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, c *models.Client) error {
	query := `
		UPDATE client_identities
		SET primary_email = $2, alias_emails = $3, first_name = $4, last_name = $5,
			phone = $6, dog_name = $7, address = $8, updated_at = $9
		WHERE id = $1
	`
	res, err := tx.Pick(ctx, s.db).ExecContext(ctx, query,
		string(c.ID), c.PrimaryEmail, pq.Array(c.AliasEmails),
		c.FirstName, c.LastName, c.Phone, c.DogName, c.Address, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	return requireAffected(res, "update client")
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.ClientID) error {
	res, err := tx.Pick(ctx, s.db).ExecContext(ctx, `DELETE FROM client_identities WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	return requireAffected(res, "delete client")
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.ClientID) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM client_identities WHERE id = $1`
	c, err := scanClient(tx.Pick(ctx, s.db).QueryRowContext(ctx, query, string(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find client: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, normalized string) ([]*models.Client, error) {
	query := `
		SELECT ` + clientColumns + `
		FROM client_identities
		WHERE primary_email = $1 OR $1 = ANY(alias_emails)
		ORDER BY id
	`
	return s.query(ctx, "find clients by email", query, normalized)
}

func (s *PostgresStore) ListClients(ctx context.Context) ([]*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM client_identities ORDER BY id`
	return s.query(ctx, "list clients", query)
}

func (s *PostgresStore) query(ctx context.Context, op, query string, args ...any) ([]*models.Client, error) {
	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*models.Client, error) {
	var (
		c       models.Client
		id      string
		aliases pq.StringArray
	)
	if err := row.Scan(&id, &c.PrimaryEmail, &aliases,
		&c.FirstName, &c.LastName, &c.Phone, &c.DogName, &c.Address,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.ID = domain.ClientID(id)
	c.AliasEmails = []string(aliases)
	if c.AliasEmails == nil {
		c.AliasEmails = []string{}
	}
	return &c, nil
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
