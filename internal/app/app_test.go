package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmr/internal/platform/config"
	"rmr/pkg/testutil"
)

// Metrics register globally, so the in-memory app is built once per binary.
func TestInMemoryAppEndToEnd(t *testing.T) {
	logger, _ := testutil.NewLogger()
	cfg := config.Config{
		Server:    config.Server{RequestTimeout: 5 * time.Second},
		Reconcile: config.ReconcileConfig{Workers: 2, ClientTimeout: time.Second},
	}
	a, err := Build(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer a.Close()
	require.Len(t, a.Workers(), 1, "event worker only; scheduler disabled")

	h := a.Router()
	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec
	}

	rec := do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(http.MethodPost, "/clients", `{"id":"client-c","primary_email":"a1@x.com","alias_emails":["a2@x.com"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	today := time.Now().UTC().Format(time.DateOnly)
	rec = do(http.MethodPost, "/ledger/payments", `{"email":"a2@x.com","amount":"8.00","effective_date":"`+today+`","source":"webhook"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(http.MethodPost, "/membership/reconcile", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(http.MethodGet, "/membership/status/client-c", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var status struct {
		Active bool `json:"active"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.True(t, status.Active)

	rec = do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rmr_reconcile_runs_total")
}
