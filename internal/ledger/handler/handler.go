package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rmr/internal/ledger/models"
	"rmr/pkg/domain"
	dErrors "rmr/pkg/domain-errors"
	"rmr/pkg/platform/httputil"
)

const maxImportBytes = 16 << 20

// Service defines the ledger operations exposed over HTTP.
type Service interface {
	Ingest(ctx context.Context, cmd models.IngestCommand) (*models.IngestResult, error)
	Import(ctx context.Context, r io.Reader) (*models.ImportReport, error)
	ListByEmail(ctx context.Context, rawEmail string) ([]*models.Record, error)
	ListByClient(ctx context.Context, id domain.ClientID) ([]*models.Record, error)
	ResolveOrphans(ctx context.Context) (models.OrphanReport, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts ledger endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/ledger/payments", h.HandleIngest)
	r.Post("/ledger/import", h.HandleImport)
	r.Post("/ledger/orphans/resolve", h.HandleResolveOrphans)
	r.Get("/ledger", h.HandleList)
}

// HandleIngest answers 201 for a new record and 200 with duplicate=true when
// the (email, date) key already existed.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[IngestRequest](w, r, h.logger)
	if !ok {
		return
	}
	res, err := h.service.Ingest(r.Context(), req.Command())
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "ledger ingest failed", err, "source", req.Source)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, IngestResponse{RecordResponse: FromRecord(res.Record), Duplicate: res.Duplicate})
}

// HandleImport ingests a text/csv body.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	report, err := h.service.Import(r.Context(), body)
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "ledger import failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) HandleResolveOrphans(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ResolveOrphans(r.Context())
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "orphan resolution failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleList answers GET /ledger?email= or GET /ledger?client_id=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		recs []*models.Record
		err  error
	)
	switch {
	case q.Get("email") != "":
		recs, err = h.service.ListByEmail(r.Context(), q.Get("email"))
	case q.Get("client_id") != "":
		var id domain.ClientID
		if id, err = domain.ParseClientID(q.Get("client_id")); err == nil {
			recs, err = h.service.ListByClient(r.Context(), id)
		}
	default:
		err = dErrors.New(dErrors.CodeBadRequest, "email or client_id query parameter is required")
	}
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "ledger list failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": FromRecords(recs), "count": len(recs)})
}
