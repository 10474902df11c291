package resolver

import (
	"slices"
	"strings"
	"time"

	"rmr/internal/identity/models"
	"rmr/pkg/domain"
	"rmr/pkg/email"
)

// Index maps normalized emails to the client that owns them. An Index is
// immutable once built; invalidation replaces it wholesale.
type Index struct {
	owners    map[string]domain.ClientID
	conflicts []models.Conflict
	builtAt   time.Time
}

type claim struct {
	clientID domain.ClientID
	primary  bool
}

// BuildIndex indexes every primary and alias email of clients.
//
// Precedence for an email claimed by more than one client: a primary owner
// beats any alias owner; among equals the lexicographically smallest client
// id wins. Every such email is reported as a Conflict.
func BuildIndex(clients []*models.Client, now time.Time) *Index {
	claims := make(map[string][]claim, len(clients))
	for _, c := range clients {
		if c == nil || c.ID.IsZero() {
			continue
		}
		if p := email.Normalize(c.PrimaryEmail); p != "" {
			claims[p] = addClaim(claims[p], claim{clientID: c.ID, primary: true})
		}
		for _, a := range c.AliasEmails {
			if n := email.Normalize(a); n != "" {
				claims[n] = addClaim(claims[n], claim{clientID: c.ID})
			}
		}
	}

	ix := &Index{owners: make(map[string]domain.ClientID, len(claims)), builtAt: now}
	for addr, cs := range claims {
		winner, primaries := pickWinner(cs)
		ix.owners[addr] = winner.clientID
		if len(cs) < 2 {
			continue
		}
		ix.conflicts = append(ix.conflicts, newConflict(addr, cs, winner, primaries, now))
	}
	slices.SortFunc(ix.conflicts, func(a, b models.Conflict) int {
		return strings.Compare(a.Email, b.Email)
	})
	return ix
}

// addClaim keeps one claim per client, upgrading it to primary if needed.
func addClaim(cs []claim, c claim) []claim {
	for i := range cs {
		if cs[i].clientID == c.clientID {
			cs[i].primary = cs[i].primary || c.primary
			return cs
		}
	}
	return append(cs, c)
}

func pickWinner(cs []claim) (claim, int) {
	primaries := 0
	for _, c := range cs {
		if c.primary {
			primaries++
		}
	}
	var winner *claim
	for i := range cs {
		c := &cs[i]
		if primaries > 0 && !c.primary {
			continue
		}
		if winner == nil || c.clientID < winner.clientID {
			winner = c
		}
	}
	return *winner, primaries
}

func newConflict(addr string, cs []claim, winner claim, primaries int, now time.Time) models.Conflict {
	kind := models.ConflictAliasAlias
	switch {
	case primaries > 1:
		kind = models.ConflictPrimaryPrimary
	case primaries == 1:
		kind = models.ConflictPrimaryAlias
	}
	ids := make([]domain.ClientID, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.clientID)
	}
	slices.Sort(ids)
	return models.Conflict{
		ID:          models.ConflictID(addr, kind),
		Email:       addr,
		Kind:        kind,
		WinnerID:    winner.clientID,
		ClaimantIDs: ids,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
}

// Lookup returns the owner of an already-normalized email.
func (ix *Index) Lookup(normalized string) (domain.ClientID, bool) {
	id, ok := ix.owners[normalized]
	return id, ok
}

// Size is the number of distinct emails indexed.
func (ix *Index) Size() int { return len(ix.owners) }

// Conflicts returns the ambiguities found at build time, sorted by email.
func (ix *Index) Conflicts() []models.Conflict {
	return slices.Clone(ix.conflicts)
}

func (ix *Index) BuiltAt() time.Time { return ix.builtAt }
