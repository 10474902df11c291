package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmr/internal/duplicates/models"
	"rmr/internal/duplicates/service"
	"rmr/internal/duplicates/store"
	identity "rmr/internal/identity/models"
	"rmr/internal/identity/store/client"
	"rmr/pkg/testutil"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	clients := client.NewInMemory()
	for _, c := range []*identity.Client{
		{ID: "c1", PrimaryEmail: "one@x.com", LastName: "Ward", Phone: "+447000000000"},
		{ID: "c2", PrimaryEmail: "two@x.com", LastName: "Ward", Phone: "07000000000"},
	} {
		require.NoError(t, clients.Create(t.Context(), c))
	}
	logger, _ := testutil.NewLogger()
	r := chi.NewRouter()
	New(service.New(clients, store.NewInMemory(), service.WithLogger(logger)), logger).Register(r)
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestDetectReviewList(t *testing.T) {
	h := newRouter(t)

	rec := do(h, http.MethodPost, "/duplicates/detect", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report models.DetectReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	require.Len(t, report.Candidates, 1)
	c := report.Candidates[0]
	assert.Equal(t, models.ConfidenceHigh, c.Confidence)
	assert.Equal(t, []models.Reason{models.ReasonPhone, models.ReasonLastName}, c.Reasons)

	rec = do(h, http.MethodPost, "/duplicates/"+c.ID+"/review", `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(h, http.MethodGet, "/duplicates?status=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)

	rec = do(h, http.MethodGet, "/duplicates?status=confirmed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), c.ID)
}

func TestReviewRejections(t *testing.T) {
	h := newRouter(t)

	rec := do(h, http.MethodPost, "/duplicates/anything/review", `{"status":"pending"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPost, "/duplicates/anything/review", `{"status":"dismissed"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodGet, "/duplicates?status=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
