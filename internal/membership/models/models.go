package models

import (
	"slices"
	"time"

	"github.com/google/uuid"

	ledger "rmr/internal/ledger/models"
	"rmr/pkg/domain"
)

// Status is the persisted membership verdict for one client. Only the
// reconciler writes it.
type Status struct {
	ClientID         domain.ClientID        `json:"client_id"`
	Active           bool                   `json:"active"`
	LastEvaluated    time.Time              `json:"last_evaluated"`
	EvidenceRecordID *domain.LedgerRecordID `json:"evidence_record_id"`
	EvidenceDate     *domain.Date           `json:"evidence_date"`
}

// NewStatus builds the status implied by an evaluation. evidence may be nil.
func NewStatus(clientID domain.ClientID, active bool, evidence *ledger.Record, at time.Time) *Status {
	s := &Status{ClientID: clientID, Active: active, LastEvaluated: at}
	if evidence != nil {
		id := evidence.ID
		date := evidence.EffectiveDate
		s.EvidenceRecordID = &id
		s.EvidenceDate = &date
	}
	return s
}

// Differs reports whether persisting next over s would change anything a
// reader can observe. LastEvaluated alone is not a change.
func (s *Status) Differs(next *Status) bool {
	if s == nil {
		return true
	}
	if s.Active != next.Active {
		return true
	}
	return !sameRecord(s.EvidenceRecordID, next.EvidenceRecordID)
}

// IsActive treats a missing status as inactive.
func (s *Status) IsActive() bool {
	return s != nil && s.Active
}

func sameRecord(a, b *domain.LedgerRecordID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// StatusChanged is emitted when a client's active flag flips.
type StatusChanged struct {
	EventID          uuid.UUID              `json:"event_id"`
	ClientID         domain.ClientID        `json:"client_id"`
	OldActive        bool                   `json:"old_active"`
	NewActive        bool                   `json:"new_active"`
	EvidenceRecordID *domain.LedgerRecordID `json:"evidence_record_id,omitempty"`
	EvidenceDate     *domain.Date           `json:"evidence_date,omitempty"`
	OccurredAt       time.Time              `json:"occurred_at"`
}

// ChangeFrom returns the event for moving from prev to next, or false when
// the active flag did not flip.
func ChangeFrom(prev, next *Status) (StatusChanged, bool) {
	if prev.IsActive() == next.Active {
		return StatusChanged{}, false
	}
	return StatusChanged{
		EventID:          uuid.New(),
		ClientID:         next.ClientID,
		OldActive:        prev.IsActive(),
		NewActive:        next.Active,
		EvidenceRecordID: next.EvidenceRecordID,
		EvidenceDate:     next.EvidenceDate,
		OccurredAt:       next.LastEvaluated,
	}, true
}

// ClientFailure records one client that could not be reconciled.
type ClientFailure struct {
	ClientID domain.ClientID `json:"client_id"`
	Error    string          `json:"error"`
}

// Summary is the result of one reconcile pass.
type Summary struct {
	AsOf       domain.Date         `json:"as_of"`
	Total      int                 `json:"total"`
	Updated    int                 `json:"updated"`
	Unchanged  int                 `json:"unchanged"`
	Failed     int                 `json:"failed"`
	FailedIDs  []domain.ClientID   `json:"failed_ids"`
	Failures   []ClientFailure     `json:"failures,omitempty"`
	Flipped    int                 `json:"flipped"`
	Skipped    int                 `json:"skipped"`
	Cancelled  bool                `json:"cancelled"`
	DurationMs int64               `json:"duration_ms"`
	Orphans    ledger.OrphanReport `json:"orphans"`
}

// Finalize sorts failures so the summary is stable across runs.
func (s *Summary) Finalize(elapsed time.Duration) {
	slices.SortFunc(s.Failures, func(a, b ClientFailure) int {
		switch {
		case a.ClientID < b.ClientID:
			return -1
		case a.ClientID > b.ClientID:
			return 1
		}
		return 0
	})
	s.FailedIDs = make([]domain.ClientID, 0, len(s.Failures))
	for _, f := range s.Failures {
		s.FailedIDs = append(s.FailedIDs, f.ClientID)
	}
	s.Failed = len(s.Failures)
	s.DurationMs = elapsed.Milliseconds()
}
