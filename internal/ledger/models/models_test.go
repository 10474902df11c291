package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmr/pkg/domain"
	dErrors "rmr/pkg/domain-errors"
)

func TestIngestCommandValidate(t *testing.T) {
	valid := IngestCommand{Email: " A2@X.com ", Amount: "8.00", EffectiveDate: "2026-01-21", Source: "webhook"}

	t.Run("normalizes accepted input", func(t *testing.T) {
		got, err := valid.Validate()
		require.NoError(t, err)
		assert.Equal(t, "a2@x.com", got.NormalizedEmail)
		assert.True(t, got.Amount.Equal(decimal.RequireFromString("8.00")))
		assert.Equal(t, domain.NewDate(2026, 1, 21), got.EffectiveDate)
		assert.Equal(t, domain.SourceWebhook, got.Source)
	})

	cases := map[string]func(c *IngestCommand){
		"email without at":     func(c *IngestCommand) { c.Email = "nobody.example.com" },
		"empty email":          func(c *IngestCommand) { c.Email = "" },
		"zero amount":          func(c *IngestCommand) { c.Amount = "0" },
		"negative amount":      func(c *IngestCommand) { c.Amount = "-8.00" },
		"non numeric amount":   func(c *IngestCommand) { c.Amount = "eight" },
		"impossible date":      func(c *IngestCommand) { c.EffectiveDate = "2026-02-30" },
		"timestamp not a date": func(c *IngestCommand) { c.EffectiveDate = "2026-01-21T10:00:00Z" },
		"unknown source":       func(c *IngestCommand) { c.Source = "stripe" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := valid
			mutate(&cmd)
			_, err := cmd.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}
}

func TestRecordResolvedTo(t *testing.T) {
	c := domain.ClientID("c-1")
	r := &Record{}
	assert.False(t, r.IsResolved())
	assert.False(t, r.ResolvedTo(c))

	r.ResolvedClientID = &c
	assert.True(t, r.ResolvedTo(c))
	assert.False(t, r.ResolvedTo("c-2"))
}
