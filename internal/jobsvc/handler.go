package jobsvc

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/restorecp/rcs/internal/auth"
	"github.com/restorecp/rcs/internal/httpserver"
)

// Handler provides HTTP handlers for the job API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a job Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes returns a chi.Router with all job routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Route("/{jobID}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Get("/events", h.handleListEvents)
		r.Post("/pause", h.handlePause)
	})
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	claims := auth.FromContext(r.Context())
	j, err := h.service.CreateJob(r.Context(), claims, req)
	if err != nil {
		httpserver.RespondRCSError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, j)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	j, err := h.service.GetJob(r.Context(), claims, chi.URLParam(r, "jobID"))
	if err != nil {
		httpserver.RespondRCSError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, j)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	instanceID := q.Get("instance_id")
	if tenantID == "" && claims != nil {
		tenantID = claims.TenantID
	}
	if instanceID == "" && claims != nil {
		instanceID = claims.InstanceID
	}

	jobs, err := h.service.ListJobs(r.Context(), tenantID, instanceID)
	if err != nil {
		httpserver.RespondRCSError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"items": jobs})
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	events, err := h.service.ListJobEvents(r.Context(), claims, chi.URLParam(r, "jobID"))
	if err != nil {
		httpserver.RespondRCSError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"items": events})
}

type pauseRequest struct {
	ReasonCode string `json:"reason_code" validate:"required"`
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	claims := auth.FromContext(r.Context())
	j, err := h.service.PauseJob(r.Context(), claims, chi.URLParam(r, "jobID"), req.ReasonCode)
	if err != nil {
		httpserver.RespondRCSError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, j)
}
