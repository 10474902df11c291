// Package service manages client identities: creation, profile edits, alias
// changes and deletion. Every mutation invalidates the resolver index.
package service

import (
	"context"
	"errors"
	"log/slog"

	"rmr/internal/identity/models"
	"rmr/pkg/domain"
	dErrors "rmr/pkg/domain-errors"
	"rmr/pkg/email"
	"rmr/pkg/platform/sentinel"
	pstrings "rmr/pkg/platform/strings"
	"rmr/pkg/requestcontext"
)

type ClientStore interface {
	Create(ctx context.Context, c *models.Client) error
	Update(ctx context.Context, c *models.Client) error
	Delete(ctx context.Context, id domain.ClientID) error
	FindByID(ctx context.Context, id domain.ClientID) (*models.Client, error)
	FindByEmail(ctx context.Context, normalized string) ([]*models.Client, error)
	ListClients(ctx context.Context) ([]*models.Client, error)
}

type ConflictStore interface {
	ListConflicts(ctx context.Context) ([]models.Conflict, error)
}

// Invalidator is implemented by the resolver.
type Invalidator interface {
	Invalidate()
}

// LedgerDetacher clears ledger attribution for a deleted client.
type LedgerDetacher interface {
	DetachClient(ctx context.Context, id domain.ClientID) (int64, error)
}

// StatusForgetter drops the membership status of a deleted client.
type StatusForgetter interface {
	Forget(ctx context.Context, id domain.ClientID) error
}

type Service struct {
	clients   ClientStore
	conflicts ConflictStore
	index     Invalidator
	ledger    LedgerDetacher
	status    StatusForgetter
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithConflictStore(store ConflictStore) Option {
	return func(s *Service) { s.conflicts = store }
}

// WithLedger detaches ledger records when a client is deleted.
func WithLedger(l LedgerDetacher) Option {
	return func(s *Service) { s.ledger = l }
}

// WithStatus forgets membership status when a client is deleted.
func WithStatus(f StatusForgetter) Option {
	return func(s *Service) { s.status = f }
}

func New(clients ClientStore, index Invalidator, opts ...Option) *Service {
	s := &Service{clients: clients, index: index}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdateClientCommand carries a partial update; nil fields are left alone.
type UpdateClientCommand struct {
	PrimaryEmail *string
	FirstName    *string
	LastName     *string
	Phone        *string
	DogName      *string
	Address      *string
}

// CreateClient registers a client.
//
// Errors: CodeValidation for bad emails, CodeConflict when the id or any of
// the emails already belongs to another client.
func (s *Service) CreateClient(ctx context.Context, cmd models.CreateClientCommand) (*models.Client, error) {
	c, err := models.NewClient(cmd, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.ensureUnclaimed(ctx, c.ID, c.Emails()...); err != nil {
		return nil, err
	}
	if err := s.clients.Create(ctx, c); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "client id already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create client")
	}
	s.invalidate(ctx, "client_created", c.ID)
	return c, nil
}

// UpdateProfile edits profile fields and, optionally, the primary email.
func (s *Service) UpdateProfile(ctx context.Context, id domain.ClientID, cmd UpdateClientCommand) (*models.Client, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if cmd.PrimaryEmail != nil {
		primary := email.Normalize(*cmd.PrimaryEmail)
		if !email.Plausible(primary) {
			return nil, dErrors.New(dErrors.CodeValidation, "primary_email must be a valid email address")
		}
		if primary != c.PrimaryEmail {
			if err := s.ensureUnclaimed(ctx, c.ID, primary); err != nil {
				return nil, err
			}
			// The old primary stays reachable as an alias.
			previous := c.PrimaryEmail
			c.PrimaryEmail = primary
			c.SetAliases(append(c.AliasEmails, previous))
		}
	}
	profile := models.Profile{
		FirstName: pick(cmd.FirstName, c.FirstName),
		LastName:  pick(cmd.LastName, c.LastName),
		Phone:     pick(cmd.Phone, c.Phone),
		DogName:   pick(cmd.DogName, c.DogName),
		Address:   pick(cmd.Address, c.Address),
	}
	profile.Apply(c)

	return s.save(ctx, c, "client_updated")
}

// AddAlias attaches an extra email to a client. Adding an alias the client
// already answers to is a no-op.
func (s *Service) AddAlias(ctx context.Context, id domain.ClientID, rawEmail string) (*models.Client, error) {
	alias := email.Normalize(rawEmail)
	if !email.Plausible(alias) {
		return nil, dErrors.New(dErrors.CodeValidation, "alias must be a valid email address")
	}
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if alias == c.PrimaryEmail || c.HasAlias(alias) {
		return c, nil
	}
	if err := s.ensureUnclaimed(ctx, c.ID, alias); err != nil {
		return nil, err
	}
	c.SetAliases(append(c.AliasEmails, alias))
	return s.save(ctx, c, "alias_added")
}

// RemoveAlias detaches an alias.
//
// Errors: CodeNotFound if the client does not have that alias.
func (s *Service) RemoveAlias(ctx context.Context, id domain.ClientID, rawEmail string) (*models.Client, error) {
	alias := email.Normalize(rawEmail)
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.HasAlias(alias) {
		return nil, dErrors.New(dErrors.CodeNotFound, "alias not found on client")
	}
	c.SetAliases(pstrings.Without(c.AliasEmails, alias))
	return s.save(ctx, c, "alias_removed")
}

// DeleteClient removes a client. Its ledger history is kept but detached, and
// its membership status row is dropped.
func (s *Service) DeleteClient(ctx context.Context, id domain.ClientID) error {
	if err := s.clients.Delete(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "client not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete client")
	}
	s.invalidate(ctx, "client_deleted", id)

	if s.ledger != nil {
		n, err := s.ledger.DetachClient(ctx, id)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "client deleted but ledger records were not detached")
		}
		s.logInfo(ctx, "ledger records detached", "client_id", id, "count", n)
	}
	if s.status != nil {
		if err := s.status.Forget(ctx, id); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "client deleted but membership status was not cleared")
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id domain.ClientID) (*models.Client, error) {
	return s.load(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*models.Client, error) {
	clients, err := s.clients.ListClients(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list clients")
	}
	return clients, nil
}

// Conflicts returns the identity ambiguities awaiting review.
func (s *Service) Conflicts(ctx context.Context) ([]models.Conflict, error) {
	if s.conflicts == nil {
		return []models.Conflict{}, nil
	}
	out, err := s.conflicts.ListConflicts(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list identity conflicts")
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, id domain.ClientID) (*models.Client, error) {
	c, err := s.clients.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "client not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load client")
	}
	return c, nil
}

func (s *Service) save(ctx context.Context, c *models.Client, event string) (*models.Client, error) {
	c.UpdatedAt = requestcontext.Now(ctx)
	if err := s.clients.Update(ctx, c); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "client not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update client")
	}
	s.invalidate(ctx, event, c.ID)
	return c, nil
}

// ensureUnclaimed rejects emails already owned by a different client. The
// resolver still tolerates conflicting legacy rows; this only stops new ones.
func (s *Service) ensureUnclaimed(ctx context.Context, self domain.ClientID, emails ...string) error {
	for _, e := range emails {
		owners, err := s.clients.FindByEmail(ctx, e)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check email ownership")
		}
		for _, o := range owners {
			if o.ID != self {
				return dErrors.New(dErrors.CodeConflict, "email "+e+" already belongs to another client")
			}
		}
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, event string, id domain.ClientID) {
	s.index.Invalidate()
	s.logInfo(ctx, event, "client_id", id)
}

func (s *Service) logInfo(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.InfoContext(ctx, msg, append(args, requestcontext.LogAttrs(ctx)...)...)
}

func pick(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}
