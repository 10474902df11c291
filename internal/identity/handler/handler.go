package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"rmr/internal/identity/models"
	"rmr/internal/identity/resolver"
	"rmr/internal/identity/service"
	"rmr/pkg/domain"
	"rmr/pkg/platform/httputil"
)

// Service defines the client identity operations exposed over HTTP.
type Service interface {
	CreateClient(ctx context.Context, cmd models.CreateClientCommand) (*models.Client, error)
	UpdateProfile(ctx context.Context, id domain.ClientID, cmd service.UpdateClientCommand) (*models.Client, error)
	AddAlias(ctx context.Context, id domain.ClientID, email string) (*models.Client, error)
	RemoveAlias(ctx context.Context, id domain.ClientID, email string) (*models.Client, error)
	DeleteClient(ctx context.Context, id domain.ClientID) error
	Get(ctx context.Context, id domain.ClientID) (*models.Client, error)
	List(ctx context.Context) ([]*models.Client, error)
	Conflicts(ctx context.Context) ([]models.Conflict, error)
}

// Resolver is the read side used by the resolve and rebuild endpoints.
type Resolver interface {
	Resolve(ctx context.Context, rawEmail string) (domain.ClientID, bool, error)
	Rebuild(ctx context.Context) (*resolver.Index, error)
}

type Handler struct {
	service  Service
	resolver Resolver
	logger   *slog.Logger
}

func New(service Service, resolver Resolver, logger *slog.Logger) *Handler {
	return &Handler{service: service, resolver: resolver, logger: logger}
}

// Register mounts client and identity endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/clients", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/{clientID}", h.HandleGet)
		r.Patch("/{clientID}", h.HandleUpdate)
		r.Delete("/{clientID}", h.HandleDelete)
		r.Post("/{clientID}/aliases", h.HandleAddAlias)
		r.Delete("/{clientID}/aliases/{email}", h.HandleRemoveAlias)
	})
	r.Get("/identity/resolve", h.HandleResolve)
	r.Get("/identity/conflicts", h.HandleConflicts)
	r.Post("/identity/index/rebuild", h.HandleRebuild)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[CreateClientRequest](w, r, h.logger)
	if !ok {
		return
	}
	c, err := h.service.CreateClient(r.Context(), req.Command())
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "create client failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.List(r.Context())
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "list clients failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"clients": clients, "count": len(clients)})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := clientIDParam(w, r)
	if !ok {
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "get client failed", err, "client_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := clientIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateClientRequest](w, r, h.logger)
	if !ok {
		return
	}
	c, err := h.service.UpdateProfile(r.Context(), id, req.Command())
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "update client failed", err, "client_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := clientIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteClient(r.Context(), id); err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "delete client failed", err, "client_id", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleAddAlias(w http.ResponseWriter, r *http.Request) {
	id, ok := clientIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AddAliasRequest](w, r, h.logger)
	if !ok {
		return
	}
	c, err := h.service.AddAlias(r.Context(), id, req.Email)
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "add alias failed", err, "client_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleRemoveAlias(w http.ResponseWriter, r *http.Request) {
	id, ok := clientIDParam(w, r)
	if !ok {
		return
	}
	alias, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		alias = chi.URLParam(r, "email")
	}
	c, err := h.service.RemoveAlias(r.Context(), id, alias)
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "remove alias failed", err, "client_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// HandleResolve answers GET /identity/resolve?email=. A miss is a 200 with
// matched=false, never an error.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("email")
	id, ok, err := h.resolver.Resolve(r.Context(), raw)
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "resolve failed", err)
		return
	}
	resp := ResolveResponse{Email: raw, Matched: ok}
	if ok {
		resp.ClientID = &id
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.service.Conflicts(r.Context())
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "list conflicts failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts, "count": len(conflicts)})
}

func (h *Handler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	ix, err := h.resolver.Rebuild(r.Context())
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "index rebuild failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RebuildResponse{
		Emails:    ix.Size(),
		Conflicts: len(ix.Conflicts()),
		BuiltAt:   ix.BuiltAt(),
	})
}

func clientIDParam(w http.ResponseWriter, r *http.Request) (domain.ClientID, bool) {
	id, err := domain.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return id, true
}
