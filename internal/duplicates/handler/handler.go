package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rmr/internal/duplicates/models"
	"rmr/pkg/platform/httputil"
)

// Service defines the duplicate review operations exposed over HTTP.
type Service interface {
	Detect(ctx context.Context) (*models.DetectReport, error)
	List(ctx context.Context, status models.ReviewStatus) ([]models.Candidate, error)
	Review(ctx context.Context, id string, status models.ReviewStatus) (*models.Candidate, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts duplicate review endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/duplicates", h.HandleList)
	r.Post("/duplicates/detect", h.HandleDetect)
	r.Post("/duplicates/{candidateID}/review", h.HandleReview)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	status, err := models.ParseReviewFilter(r.URL.Query().Get("status"))
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "invalid review filter", err)
		return
	}
	out, err := h.service.List(r.Context(), status)
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "list duplicates failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"candidates": out, "count": len(out)})
}

func (h *Handler) HandleDetect(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Detect(r.Context())
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "duplicate detection failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// ReviewRequest is the body of POST /duplicates/{id}/review.
type ReviewRequest struct {
	Status string `json:"status"`

	decision models.ReviewStatus
}

func (r *ReviewRequest) Validate() error {
	st, err := models.ParseReviewDecision(r.Status)
	if err != nil {
		return err
	}
	r.decision = st
	return nil
}

func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[ReviewRequest](w, r, h.logger)
	if !ok {
		return
	}
	id := chi.URLParam(r, "candidateID")
	c, err := h.service.Review(r.Context(), id, req.decision)
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "duplicate review failed", err, "candidate_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}
