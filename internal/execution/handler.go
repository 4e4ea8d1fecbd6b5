package execution

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/restorecp/rcs/internal/auth"
	"github.com/restorecp/rcs/internal/httpserver"
)

// Handler provides HTTP handlers for the execution API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates an execution Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes returns a chi.Router with all execution routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleExecute)
	r.Post("/resume", h.handleResume)
	r.Route("/{jobID}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Get("/checkpoint", h.handleGetCheckpoint)
		r.Get("/rollback-journal", h.handleGetRollbackJournal)
	})
	return r
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteJobRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	claims := auth.FromContext(r.Context())
	rec, err := h.service.ExecuteJob(r.Context(), claims, req)
	if err != nil {
		httpserver.RespondRCSError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, rec)
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	var req ResumeJobRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	claims := auth.FromContext(r.Context())
	rec, err := h.service.ResumeJob(r.Context(), claims, req)
	if err != nil {
		httpserver.RespondRCSError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, rec)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	rec, err := h.service.GetExecution(r.Context(), claims, chi.URLParam(r, "jobID"))
	if err != nil {
		httpserver.RespondRCSError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, rec)
}

func (h *Handler) handleGetCheckpoint(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	cp, err := h.service.GetCheckpoint(r.Context(), claims, chi.URLParam(r, "jobID"))
	if err != nil {
		httpserver.RespondRCSError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, cp)
}

func (h *Handler) handleGetRollbackJournal(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	entries, err := h.service.GetRollbackJournal(r.Context(), claims, chi.URLParam(r, "jobID"))
	if err != nil {
		httpserver.RespondRCSError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"items": entries})
}
