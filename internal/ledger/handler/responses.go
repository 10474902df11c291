package handler

import (
	"time"

	"rmr/internal/ledger/models"
	"rmr/pkg/domain"
)

// RecordResponse is the wire form of a ledger record. Amounts keep two
// decimal places.
type RecordResponse struct {
	ID               domain.LedgerRecordID `json:"id"`
	Email            string                `json:"email"`
	ResolvedClientID *domain.ClientID      `json:"resolved_client_id"`
	Amount           string                `json:"amount"`
	EffectiveDate    domain.Date           `json:"effective_date"`
	Source           domain.Source         `json:"source"`
	CreatedAt        time.Time             `json:"created_at"`
}

// IngestResponse adds the duplicate flag to the stored record.
type IngestResponse struct {
	RecordResponse
	Duplicate bool `json:"duplicate"`
}

func FromRecord(r *models.Record) RecordResponse {
	return RecordResponse{
		ID:               r.ID,
		Email:            r.NormalizedEmail,
		ResolvedClientID: r.ResolvedClientID,
		Amount:           r.Amount.StringFixed(2),
		EffectiveDate:    r.EffectiveDate,
		Source:           r.Source,
		CreatedAt:        r.CreatedAt,
	}
}

func FromRecords(recs []*models.Record) []RecordResponse {
	out := make([]RecordResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, FromRecord(r))
	}
	return out
}
