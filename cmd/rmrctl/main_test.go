package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckArity(t *testing.T) {
	assert.NoError(t, checkArity("reconcile", nil))
	assert.NoError(t, checkArity("import", []string{"payments.csv"}))
	assert.Error(t, checkArity("import", nil))
	assert.Error(t, checkArity("resolve", []string{"a", "b"}))
	assert.ErrorContains(t, checkArity("merge", nil), "unknown command")
}

func TestRunWithoutCommandIsUsageError(t *testing.T) {
	var out bytes.Buffer
	err := run(nil, &out)
	require.ErrorIs(t, err, errUsage)
	assert.Empty(t, out.String())
}

func TestRunRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	var out bytes.Buffer
	err := run([]string{"reconcile"}, &out)
	assert.ErrorContains(t, err, "DATABASE_URL")
}
