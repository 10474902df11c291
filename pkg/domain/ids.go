package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "rmr/pkg/domain-errors"
)

// ClientID identifies a client record. Client ids are opaque strings issued by
// the scheduling system, so ordering between them is plain byte ordering.
type ClientID string

// LedgerRecordID identifies a persisted ledger record.
type LedgerRecordID uuid.UUID

// ParseClientID constructs a ClientID from external input.
//
// Errors: returns CodeInvalidInput when the value is blank or not UTF-8.
func ParseClientID(s string) (ClientID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "client id cannot be empty")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "client id must be valid UTF-8")
	}
	return ClientID(s), nil
}

// NewClientID issues a fresh random client id.
func NewClientID() ClientID {
	return ClientID(uuid.NewString())
}

func (id ClientID) String() string { return string(id) }

func (id ClientID) IsZero() bool { return id == "" }

// NewLedgerRecordID issues a fresh random ledger record id.
func NewLedgerRecordID() LedgerRecordID {
	return LedgerRecordID(uuid.New())
}

// ParseLedgerRecordID parses the canonical UUID form.
func ParseLedgerRecordID(s string) (LedgerRecordID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil || u == uuid.Nil {
		return LedgerRecordID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid ledger record id")
	}
	return LedgerRecordID(u), nil
}

func (id LedgerRecordID) String() string { return uuid.UUID(id).String() }

func (id LedgerRecordID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *LedgerRecordID) UnmarshalText(b []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(b); err != nil {
		return err
	}
	*id = LedgerRecordID(u)
	return nil
}
