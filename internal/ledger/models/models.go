package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rmr/pkg/domain"
	dErrors "rmr/pkg/domain-errors"
	"rmr/pkg/email"
)

// Record is a persisted payment or membership event. It is written once by
// ingestion; the only later mutation is backfilling or detaching
// ResolvedClientID.
type Record struct {
	ID               domain.LedgerRecordID `json:"id"`
	NormalizedEmail  string                `json:"normalized_email"`
	ResolvedClientID *domain.ClientID      `json:"resolved_client_id"`
	Amount           decimal.Decimal       `json:"amount"`
	EffectiveDate    domain.Date           `json:"effective_date"`
	Source           domain.Source         `json:"source"`
	CreatedAt        time.Time             `json:"created_at"`
}

// IsResolved reports whether the record is attributed to a client.
func (r *Record) IsResolved() bool {
	return r.ResolvedClientID != nil && !r.ResolvedClientID.IsZero()
}

// ResolvedTo reports whether the record is attributed to id.
func (r *Record) ResolvedTo(id domain.ClientID) bool {
	return r.IsResolved() && *r.ResolvedClientID == id
}

// Key is the idempotence key: one record per normalized email per day.
type Key struct {
	NormalizedEmail string
	EffectiveDate   domain.Date
}

func (r *Record) Key() Key {
	return Key{NormalizedEmail: r.NormalizedEmail, EffectiveDate: r.EffectiveDate}
}

func (k Key) String() string {
	return k.NormalizedEmail + "|" + k.EffectiveDate.String()
}

// IngestCommand is raw ingestion input from any entry point.
type IngestCommand struct {
	Email         string
	Amount        string
	EffectiveDate string
	Source        string
}

// ValidIngest is an IngestCommand that passed validation.
type ValidIngest struct {
	NormalizedEmail string
	Amount          decimal.Decimal
	EffectiveDate   domain.Date
	Source          domain.Source
}

// Validate checks the ingestion contract. Nothing is persisted for a command
// that fails here.
//
// Errors: returns CodeValidation naming the first offending field.
func (c IngestCommand) Validate() (ValidIngest, error) {
	if !email.HasAt(c.Email) {
		return ValidIngest{}, dErrors.New(dErrors.CodeValidation, "email must contain '@'")
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(c.Amount))
	if err != nil {
		return ValidIngest{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("amount %q is not a number", c.Amount))
	}
	if !amount.IsPositive() {
		return ValidIngest{}, dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}

	date, err := domain.ParseDate(c.EffectiveDate)
	if err != nil {
		return ValidIngest{}, dErrors.Wrap(err, dErrors.CodeValidation, "effective_date must be a calendar date (YYYY-MM-DD)")
	}

	source, err := domain.ParseSource(c.Source)
	if err != nil {
		return ValidIngest{}, dErrors.Wrap(err, dErrors.CodeValidation, dErrors.Message(err))
	}

	return ValidIngest{
		NormalizedEmail: email.Normalize(c.Email),
		Amount:          amount,
		EffectiveDate:   date,
		Source:          source,
	}, nil
}

// IngestResult is what an ingest call hands back: the stored record and
// whether it already existed.
type IngestResult struct {
	Record    *Record
	Duplicate bool
}

// OrphanReport summarises a backfill pass over unresolved records.
type OrphanReport struct {
	Scanned  int `json:"scanned"`
	Resolved int `json:"resolved"`
	Failed   int `json:"failed"`
}

// ImportOutcome classifies one CSV row.
type ImportOutcome string

const (
	ImportCreated   ImportOutcome = "created"
	ImportDuplicate ImportOutcome = "duplicate"
	ImportInvalid   ImportOutcome = "invalid"
)

// ImportRow is the result for one data line of a bulk import.
type ImportRow struct {
	Line     int                    `json:"line"`
	Email    string                 `json:"email"`
	Outcome  ImportOutcome          `json:"outcome"`
	RecordID *domain.LedgerRecordID `json:"record_id,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// ImportReport aggregates a bulk import.
type ImportReport struct {
	Created   int         `json:"created"`
	Duplicate int         `json:"duplicate"`
	Invalid   int         `json:"invalid"`
	Rows      []ImportRow `json:"rows"`
}

func (r *ImportReport) Add(row ImportRow) {
	switch row.Outcome {
	case ImportCreated:
		r.Created++
	case ImportDuplicate:
		r.Duplicate++
	case ImportInvalid:
		r.Invalid++
	}
	r.Rows = append(r.Rows, row)
}
