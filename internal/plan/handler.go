package plan

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/restorecp/rcs/internal/auth"
	"github.com/restorecp/rcs/internal/httpserver"
)

// Handler provides HTTP handlers for the plan API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a plan Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes returns a chi.Router with all plan routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{planID}", h.handleGet)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateDryRunPlanRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	claims := auth.FromContext(r.Context())
	p, err := h.service.CreateDryRunPlan(r.Context(), claims, req)
	if err != nil {
		httpserver.RespondRCSError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, p)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	p, err := h.service.GetPlan(r.Context(), planID)
	if err != nil {
		httpserver.RespondRCSError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, p)
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

	plans, err := h.service.ListPlans(r.Context(), tenantID, instanceID)
	if err != nil {
		httpserver.RespondRCSError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"items": plans})
}
