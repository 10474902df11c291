package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "rmr/pkg/domain-errors"
)

func TestNewClient(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("normalizes emails and drops primary from aliases", func(t *testing.T) {
		c, err := NewClient(CreateClientCommand{
			ID:           "c-1",
			PrimaryEmail: " A1@X.com ",
			AliasEmails:  []string{"a2@x.com", "A1@x.com", " A2@X.COM", ""},
			Profile:      Profile{LastName: " Ward "},
		}, now)
		require.NoError(t, err)
		assert.Equal(t, "a1@x.com", c.PrimaryEmail)
		assert.Equal(t, []string{"a2@x.com"}, c.AliasEmails)
		assert.Equal(t, "Ward", c.LastName)
		assert.Equal(t, []string{"a1@x.com", "a2@x.com"}, c.Emails())
	})

	t.Run("issues an id when none given", func(t *testing.T) {
		c, err := NewClient(CreateClientCommand{PrimaryEmail: "a@x.com"}, now)
		require.NoError(t, err)
		assert.False(t, c.ID.IsZero())
	})

	t.Run("rejects implausible emails", func(t *testing.T) {
		_, err := NewClient(CreateClientCommand{PrimaryEmail: "not-an-email"}, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = NewClient(CreateClientCommand{PrimaryEmail: "a@x.com", AliasEmails: []string{"@x.com"}}, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("blank aliases are dropped rather than rejected", func(t *testing.T) {
		c, err := NewClient(CreateClientCommand{PrimaryEmail: "a@x.com", AliasEmails: []string{"", "   ", "b@x.com"}}, now)
		require.NoError(t, err)
		assert.Equal(t, []string{"b@x.com"}, c.AliasEmails)
	})
}

func TestCloneDoesNotShareAliases(t *testing.T) {
	c := &Client{ID: "c-1", PrimaryEmail: "a@x.com", AliasEmails: []string{"b@x.com"}}
	cp := c.Clone()
	cp.AliasEmails[0] = "changed@x.com"
	assert.Equal(t, "b@x.com", c.AliasEmails[0])
}

func TestConflictIDIsStable(t *testing.T) {
	assert.Equal(t, ConflictID("a@x.com", ConflictPrimaryAlias), ConflictID("a@x.com", ConflictPrimaryAlias))
	assert.NotEqual(t, ConflictID("a@x.com", ConflictPrimaryAlias), ConflictID("a@x.com", ConflictAliasAlias))
}
