// Package eligibility decides whether a client holds an active membership.
//
// It is the only place the rolling-window rule is expressed. Callers pass
// WindowDays; nothing else in the module should know the number.
package eligibility

import (
	"errors"
	"fmt"

	ledger "rmr/internal/ledger/models"
	"rmr/pkg/domain"
)

// WindowDays is the eligibility window: a payment keeps a membership active
// for this many days after its effective date, inclusive.
const WindowDays = 30

// ErrCorruptRecord marks a record that cannot be evaluated, such as one with
// no effective date.
var ErrCorruptRecord = errors.New("corrupt ledger record")

// Result is the outcome of an evaluation. Evidence is the most recent
// qualifying record; an inactive result carries none.
type Result struct {
	Active   bool
	Evidence *ledger.Record
}

// Cutoff is the earliest effective date that still counts as of asOf.
func Cutoff(asOf domain.Date, windowDays int) domain.Date {
	return asOf.AddDays(-windowDays)
}

// Evaluate computes membership for clientID from its ledger history.
//
// Active iff the latest effective date among records resolved to clientID is
// on or after asOf minus windowDays. Records resolved elsewhere or not at all
// are ignored. Ties on the latest date pick the earliest created record, then
// the smaller id, so evidence is stable across runs.
func Evaluate(clientID domain.ClientID, records []*ledger.Record, asOf domain.Date, windowDays int) (Result, error) {
	if windowDays < 0 {
		return Result{}, fmt.Errorf("window must not be negative, got %d", windowDays)
	}
	if asOf.IsZero() {
		return Result{}, errors.New("evaluation date is required")
	}

	var latest *ledger.Record
	for _, rec := range records {
		if rec == nil || !rec.ResolvedTo(clientID) {
			continue
		}
		if rec.EffectiveDate.IsZero() {
			return Result{}, fmt.Errorf("%w: record %s has no effective date", ErrCorruptRecord, rec.ID)
		}
		if latest == nil || moreRecent(rec, latest) {
			latest = rec
		}
	}
	if latest == nil || latest.EffectiveDate.Before(Cutoff(asOf, windowDays)) {
		return Result{}, nil
	}
	return Result{Active: true, Evidence: latest}, nil
}

func moreRecent(a, b *ledger.Record) bool {
	if !a.EffectiveDate.Equal(b.EffectiveDate) {
		return a.EffectiveDate.After(b.EffectiveDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}
