package strings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeNormalized(t *testing.T) {
	lower := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

	t.Run("normalizes, drops blanks and sorts", func(t *testing.T) {
		got := DedupeNormalized([]string{" B@x.com", "a@x.com", "b@X.com", "", "  "}, lower)
		assert.Equal(t, []string{"a@x.com", "b@x.com"}, got)
	})

	t.Run("nil input yields empty non-nil slice", func(t *testing.T) {
		got := DedupeNormalized(nil, lower)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("nil normalizer trims only", func(t *testing.T) {
		got := DedupeNormalized([]string{" A ", "A", "a"}, nil)
		assert.Equal(t, []string{"A", "a"}, got)
	})
}

func TestWithout(t *testing.T) {
	assert.Equal(t, []string{"a", "c"}, Without([]string{"a", "b", "c", "b"}, "b"))
	assert.Empty(t, Without(nil, "x"))
}
