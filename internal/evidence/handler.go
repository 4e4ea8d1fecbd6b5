package evidence

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/restorecp/rcs/internal/auth"
	"github.com/restorecp/rcs/internal/httpserver"
)

// Handler provides HTTP handlers for the evidence API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates an evidence Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes returns a chi.Router with all evidence routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Get("/{evidenceID}", h.handleGetByID)
	r.Route("/jobs/{jobID}", func(r chi.Router) {
		r.Post("/export", h.handleExport)
		r.Get("/", h.handleGet)
		r.Get("/validate", h.handleValidate)
	})
	return r
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	rec, reused, err := h.service.EnsureEvidence(r.Context(), claims, chi.URLParam(r, "jobID"))
	if err != nil {
		httpserver.RespondRCSError(w, err)
		return
	}

	status := http.StatusCreated
	if reused {
		status = http.StatusOK
	}
	httpserver.Respond(w, status, rec)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetEvidence(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		httpserver.RespondRCSError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, rec)
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

	records, err := h.service.ListEvidence(r.Context(), tenantID, instanceID)
	if err != nil {
		httpserver.RespondRCSError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"items": records})
}

func (h *Handler) handleGetByID(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetEvidenceByID(r.Context(), chi.URLParam(r, "evidenceID"))
	if err != nil {
		httpserver.RespondRCSError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, rec)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetEvidence(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		httpserver.RespondRCSError(w, err)
		return
	}

	result := h.service.ValidateEvidenceRecord(rec)
	httpserver.Respond(w, http.StatusOK, result)
}
