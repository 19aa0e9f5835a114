package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MarketingLimited/nexus-hr-sub006/internal/models"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/services"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/sync"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type SyncHandler struct {
	service *services.SyncService
	logger  *slog.Logger
}

func NewSyncHandler(service *services.SyncService, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{service: service, logger: logger}
}

// Routes returns the sync API subrouter. authenticate guards the endpoints
// that mutate sync state.
func (h *SyncHandler) Routes(authenticate func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/stats", h.GetStats)
	r.Get("/operations", h.ListOperations)
	r.Get("/conflicts", h.ListConflicts)

	r.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Post("/start", h.StartSync)
		r.Post("/conflicts/{id}/resolve", h.ResolveConflict)
		r.Post("/auto", h.SetAutoSync)
	})
	return r
}

func (h *SyncHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, stats)
}

func (h *SyncHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	ops, err := h.service.ListOperations(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if ops == nil {
		ops = []*models.SyncOperation{}
	}
	h.respond(w, http.StatusOK, ops)
}

func (h *SyncHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.service.ListConflicts(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if conflicts == nil {
		conflicts = []*models.SyncConflict{}
	}
	h.respond(w, http.StatusOK, conflicts)
}

func (h *SyncHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.StartSync(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.respond(w, http.StatusAccepted, stats)
}

type resolveRequest struct {
	Resolution models.Resolution `json:"resolution"`
}

func (h *SyncHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid conflict id")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conflict, err := h.service.ResolveConflict(r.Context(), id, req.Resolution)
	switch {
	case err == nil:
		h.respond(w, http.StatusOK, conflict)
	case errors.Is(err, services.ErrInvalidResolution):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrConflictNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case sync.IsPolicyError(err), errors.Is(err, sync.ErrResolutionMismatch):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.serverError(w, r, err)
	}
}

type autoSyncRequest struct {
	Enabled bool `json:"enabled"`
}

type autoSyncResponse struct {
	Enabled bool `json:"enabled"`
}

func (h *SyncHandler) SetAutoSync(w http.ResponseWriter, r *http.Request) {
	var req autoSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.SetAutoSync(req.Enabled); err != nil {
		h.serverError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, autoSyncResponse{Enabled: h.service.AutoSyncEnabled()})
}

func (h *SyncHandler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *SyncHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respond(w, status, errorResponse{Error: message})
}

func (h *SyncHandler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	h.respondError(w, http.StatusInternalServerError, "internal server error")
}
