package models

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"rmr/pkg/domain"
	dErrors "rmr/pkg/domain-errors"
	"rmr/pkg/email"
	pstrings "rmr/pkg/platform/strings"
)

// Client is a client identity: the emails it answers to plus the profile
// fields duplicate detection compares. Emails are stored normalized.
type Client struct {
	ID           domain.ClientID `json:"id"`
	PrimaryEmail string          `json:"primary_email"`
	AliasEmails  []string        `json:"alias_emails"`
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
	Phone        string          `json:"phone"`
	DogName      string          `json:"dog_name"`
	Address      string          `json:"address"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Emails returns the primary email followed by the aliases.
func (c *Client) Emails() []string {
	out := make([]string, 0, 1+len(c.AliasEmails))
	if c.PrimaryEmail != "" {
		out = append(out, c.PrimaryEmail)
	}
	return append(out, c.AliasEmails...)
}

// HasAlias reports whether normalized is one of the client's aliases.
func (c *Client) HasAlias(normalized string) bool {
	return slices.Contains(c.AliasEmails, normalized)
}

// SetAliases replaces the alias set, normalizing, deduplicating and dropping
// any entry equal to the primary email.
func (c *Client) SetAliases(aliases []string) {
	c.AliasEmails = pstrings.Without(pstrings.DedupeNormalized(aliases, email.Normalize), c.PrimaryEmail)
}

// Clone returns a deep copy so stores never share slices with callers.
func (c *Client) Clone() *Client {
	if c == nil {
		return nil
	}
	cp := *c
	cp.AliasEmails = slices.Clone(c.AliasEmails)
	if cp.AliasEmails == nil {
		cp.AliasEmails = []string{}
	}
	return &cp
}

// Profile holds the optional descriptive fields of a client.
type Profile struct {
	FirstName string
	LastName  string
	Phone     string
	DogName   string
	Address   string
}

func (p Profile) trimmed() Profile {
	return Profile{
		FirstName: strings.TrimSpace(p.FirstName),
		LastName:  strings.TrimSpace(p.LastName),
		Phone:     strings.TrimSpace(p.Phone),
		DogName:   strings.TrimSpace(p.DogName),
		Address:   strings.TrimSpace(p.Address),
	}
}

// Apply copies the trimmed profile onto c.
func (p Profile) Apply(c *Client) {
	t := p.trimmed()
	c.FirstName, c.LastName, c.Phone, c.DogName, c.Address = t.FirstName, t.LastName, t.Phone, t.DogName, t.Address
}

// CreateClientCommand is the input for registering a client.
type CreateClientCommand struct {
	ID           string
	PrimaryEmail string
	AliasEmails  []string
	Profile      Profile
}

// NewClient validates cmd and builds the client it describes.
//
// Errors: CodeValidation for a missing or implausible primary or alias email;
// CodeInvalidInput for a malformed explicit id.
func NewClient(cmd CreateClientCommand, now time.Time) (*Client, error) {
	id := domain.NewClientID()
	if strings.TrimSpace(cmd.ID) != "" {
		parsed, err := domain.ParseClientID(cmd.ID)
		if err != nil {
			return nil, err
		}
		id = parsed
	}

	primary := email.Normalize(cmd.PrimaryEmail)
	if !email.Plausible(primary) {
		return nil, dErrors.New(dErrors.CodeValidation, "primary_email must be a valid email address")
	}
	for _, a := range cmd.AliasEmails {
		a = email.Normalize(a)
		if a == "" {
			continue
		}
		if !email.Plausible(a) {
			return nil, dErrors.New(dErrors.CodeValidation, "alias emails must be valid email addresses")
		}
	}

	c := &Client{
		ID:           id,
		PrimaryEmail: primary,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	c.SetAliases(cmd.AliasEmails)
	cmd.Profile.Apply(c)
	return c, nil
}

// ConflictKind describes how an email is over-claimed.
type ConflictKind string

const (
	// ConflictPrimaryAlias: one client's primary email is another's alias.
	ConflictPrimaryAlias ConflictKind = "primary_alias"
	// ConflictPrimaryPrimary: two clients share a primary email.
	ConflictPrimaryPrimary ConflictKind = "primary_primary"
	// ConflictAliasAlias: two clients share an alias and nobody owns it as primary.
	ConflictAliasAlias ConflictKind = "alias_alias"
)

// Conflict is an identity ambiguity found while building the resolver index.
// It is recorded for operator review and never merged automatically.
type Conflict struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	Kind        ConflictKind      `json:"kind"`
	WinnerID    domain.ClientID   `json:"winner_client_id"`
	ClaimantIDs []domain.ClientID `json:"claimant_ids"`
	FirstSeenAt time.Time         `json:"first_seen_at"`
	LastSeenAt  time.Time         `json:"last_seen_at"`
}

var conflictNamespace = uuid.MustParse("0b0f3c8e-6c53-4b8e-9a55-6f1e2f1d7a10")

// ConflictID derives a stable id so the same ambiguity is upserted rather
// than duplicated on every index rebuild.
func ConflictID(normalizedEmail string, kind ConflictKind) string {
	return uuid.NewSHA1(conflictNamespace, []byte(normalizedEmail+"|"+string(kind))).String()
}
