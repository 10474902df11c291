package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmr/internal/identity/resolver"
	"rmr/internal/identity/service"
	"rmr/internal/identity/store/client"
	"rmr/internal/identity/store/conflict"
	"rmr/pkg/testutil"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	logger, _ := testutil.NewLogger()
	clients := client.NewInMemory()
	conflicts := conflict.NewInMemory()
	res := resolver.New(clients, resolver.WithConflictRecorder(conflicts))
	svc := service.New(clients, res, service.WithConflictStore(conflicts), service.WithLogger(logger))

	r := chi.NewRouter()
	New(svc, res, logger).Register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestClientLifecycleAndResolve(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodPost, "/clients", map[string]any{
		"id":            "client-c",
		"primary_email": "a1@x.com",
		"last_name":     "Ward",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/clients/client-c/aliases", map[string]string{"email": "a2@x.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/identity/resolve?email=%20A2@X.com%20", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resolved ResolveResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resolved))
	assert.True(t, resolved.Matched, "alias added through the API must be visible to the resolver")
	require.NotNil(t, resolved.ClientID)
	assert.Equal(t, "client-c", resolved.ClientID.String())

	rec = do(t, h, http.MethodDelete, "/clients/client-c/aliases/a2@x.com", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/identity/resolve?email=a2@x.com", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resolved))
	assert.False(t, resolved.Matched)

	rec = do(t, h, http.MethodDelete, "/clients/client-c", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/clients/client-c", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateClientErrors(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodPost, "/clients", map[string]any{"primary_email": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/clients", map[string]any{"primary_email": "a@x.com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPost, "/clients", map[string]any{"primary_email": "A@x.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResolveMalformedIsNotAnError(t *testing.T) {
	h := newRouter(t)
	rec := do(t, h, http.MethodGet, "/identity/resolve?email=nonsense", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resolved ResolveResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resolved))
	assert.False(t, resolved.Matched)
}

func TestRebuildAndConflicts(t *testing.T) {
	h := newRouter(t)
	rec := do(t, h, http.MethodPost, "/identity/index/rebuild", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/identity/conflicts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)
}
