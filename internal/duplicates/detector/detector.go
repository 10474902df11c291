// Package detector finds client pairs that look like the same person.
//
// Any one of these signals flags a pair: a shared email (primary or alias),
// an equal normalized phone, an equal last name, an equal dog name. Email and
// phone grade high; a name-only match grades medium. Output is sorted by
// candidate id so repeated runs over the same clients are identical.
package detector

import (
	"slices"
	"strings"

	"rmr/internal/duplicates/models"
	identity "rmr/internal/identity/models"
	"rmr/pkg/domain"
	"rmr/pkg/email"
)

type pair struct {
	lo, hi domain.ClientID
}

// Detect is pure: it reads clients and returns candidates with review status
// pending and no detection time.
func Detect(clients []*identity.Client) []models.Candidate {
	byID := make(map[domain.ClientID]*identity.Client, len(clients))
	blocks := make(map[models.Reason]map[string][]domain.ClientID)
	for _, c := range clients {
		if c == nil || byID[c.ID] != nil {
			continue
		}
		byID[c.ID] = c
		for reason, keys := range signals(c) {
			if blocks[reason] == nil {
				blocks[reason] = make(map[string][]domain.ClientID)
			}
			for _, k := range keys {
				blocks[reason][k] = append(blocks[reason][k], c.ID)
			}
		}
	}

	reasons := make(map[pair]map[models.Reason]bool)
	for reason, index := range blocks {
		for _, ids := range index {
			ids = uniqueSorted(ids)
			for i := 0; i < len(ids); i++ {
				for j := i + 1; j < len(ids); j++ {
					p := pair{lo: ids[i], hi: ids[j]}
					if reasons[p] == nil {
						reasons[p] = make(map[models.Reason]bool)
					}
					reasons[p][reason] = true
				}
			}
		}
	}

	out := make([]models.Candidate, 0, len(reasons))
	for p, set := range reasons {
		rs := make([]models.Reason, 0, len(set))
		for r := range set {
			rs = append(rs, r)
		}
		slices.SortFunc(rs, func(a, b models.Reason) int { return a.Rank() - b.Rank() })

		primary, secondary := ChoosePrimary(byID[p.lo], byID[p.hi])
		out = append(out, models.Candidate{
			ID:                models.CandidateID(p.lo, p.hi),
			PrimaryClientID:   primary.ID,
			SecondaryClientID: secondary.ID,
			Reasons:           rs,
			Confidence:        models.ConfidenceFor(rs),
			ReviewStatus:      models.ReviewPending,
		})
	}
	slices.SortFunc(out, func(a, b models.Candidate) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// signals returns the blocking keys of c per reason. Empty values never
// match.
func signals(c *identity.Client) map[models.Reason][]string {
	out := make(map[models.Reason][]string, 4)
	for _, e := range c.Emails() {
		if n := email.Normalize(e); n != "" {
			out[models.ReasonEmail] = append(out[models.ReasonEmail], n)
		}
	}
	if p := NormalizePhone(c.Phone); p != "" {
		out[models.ReasonPhone] = []string{p}
	}
	if n := foldName(c.LastName); n != "" {
		out[models.ReasonLastName] = []string{n}
	}
	if n := foldName(c.DogName); n != "" {
		out[models.ReasonDogName] = []string{n}
	}
	return out
}

// NormalizePhone keeps digits and drops the UK prefixes: an international
// "00", the country code "44" and the trunk "0". "+44 7000 000000",
// "0044 7000000000" and "07000 000000" all become "7000000000".
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	digits = strings.TrimPrefix(digits, "00")
	digits = strings.TrimPrefix(digits, "44")
	digits = strings.TrimPrefix(digits, "0")
	return digits
}

func foldName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CompletenessScore weights populated profile fields. Dog name, email and
// phone count double.
func CompletenessScore(c *identity.Client) int {
	score := 0
	for _, f := range []struct {
		value  string
		weight int
	}{
		{c.DogName, 2},
		{c.PrimaryEmail, 2},
		{c.Phone, 2},
		{c.Address, 1},
		{c.FirstName, 1},
		{c.LastName, 1},
	} {
		if strings.TrimSpace(f.value) != "" {
			score += f.weight
		}
	}
	return score
}

// ChoosePrimary returns the more complete client first. Equal scores go to
// the smaller id.
func ChoosePrimary(a, b *identity.Client) (primary, secondary *identity.Client) {
	sa, sb := CompletenessScore(a), CompletenessScore(b)
	switch {
	case sa > sb:
		return a, b
	case sb > sa:
		return b, a
	case a.ID <= b.ID:
		return a, b
	default:
		return b, a
	}
}

func uniqueSorted(ids []domain.ClientID) []domain.ClientID {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
