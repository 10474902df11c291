package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "rmr/pkg/domain-errors"
)

func TestParseDate(t *testing.T) {
	t.Run("accepts ISO calendar dates", func(t *testing.T) {
		d, err := ParseDate(" 2026-01-21 ")
		require.NoError(t, err)
		assert.Equal(t, "2026-01-21", d.String())
	})

	t.Run("rejects impossible dates", func(t *testing.T) {
		for _, in := range []string{"", "2026-02-30", "21/01/2026", "2026-1-2", "yesterday"} {
			_, err := ParseDate(in)
			require.Error(t, err, in)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), in)
		}
	})
}

func TestDateArithmetic(t *testing.T) {
	asOf := NewDate(2026, time.February, 20)

	assert.Equal(t, "2026-01-21", asOf.AddDays(-30).String())
	assert.Equal(t, 36, asOf.DaysSince(NewDate(2026, time.January, 15)))
	assert.True(t, asOf.AddDays(-1).Before(asOf))
	assert.True(t, asOf.Equal(DateOf(time.Date(2026, 2, 20, 23, 59, 0, 0, time.UTC))))
}

func TestDateJSONAndSQL(t *testing.T) {
	d := NewDate(2026, time.January, 21)

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `"2026-01-21"`, string(raw))

	var back Date
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Equal(d))

	var scanned Date
	require.NoError(t, scanned.Scan(time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC)))
	assert.True(t, scanned.Equal(d))
	require.NoError(t, scanned.Scan([]byte("2026-01-21T00:00:00Z")))
	assert.True(t, scanned.Equal(d))
}

func TestParseSource(t *testing.T) {
	src, err := ParseSource("Webhook")
	require.NoError(t, err)
	assert.Equal(t, SourceWebhook, src)

	_, err = ParseSource("stripe")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
