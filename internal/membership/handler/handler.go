package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rmr/internal/membership/models"
	"rmr/pkg/domain"
	"rmr/pkg/platform/httputil"
)

// Service defines the membership operations exposed over HTTP.
type Service interface {
	Reconcile(ctx context.Context) (*models.Summary, error)
	Status(ctx context.Context, id domain.ClientID) (*models.Status, error)
	List(ctx context.Context) ([]*models.Status, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts membership endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/membership/reconcile", h.HandleReconcile)
	r.Get("/membership/status", h.HandleList)
	r.Get("/membership/status/{clientID}", h.HandleGet)
}

// HandleReconcile runs a pass synchronously. 409 when one is already running.
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Reconcile(r.Context())
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "reconcile failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.List(r.Context())
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "list membership status failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"statuses": rows, "count": len(rows)})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "invalid client id", err)
		return
	}
	st, err := h.service.Status(r.Context(), id)
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "get membership status failed", err, "client_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}
