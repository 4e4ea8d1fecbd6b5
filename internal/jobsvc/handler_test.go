package jobsvc

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestHandleCreate_Validation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "missing required fields",
			body:       `{}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "missing lock_scope_tables",
			body:       `{"tenant_id":"t1","instance_id":"i1","source":"servicenow","service_scope":"rrs","plan_id":"p1","plan_hash":"h1","requested_by":"a@b.com"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "invalid JSON",
			body:       `{bad`,
			wantStatus: http.StatusBadRequest,
		},
	}

	h := NewHandler(nil, nil)
	router := chi.NewRouter()
	router.Mount("/jobs", h.Routes())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestHandleGet_NotFound(t *testing.T) {
	svc, _, _ := newHarness(t)
	h := NewHandler(svc, nil)
	router := chi.NewRouter()
	router.Mount("/jobs", h.Routes())

	r := httptest.NewRequest(http.MethodGet, "/jobs/does-not-exist", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404; body = %s", w.Code, w.Body.String())
	}
}

func TestHandlePause_RequiresReasonCode(t *testing.T) {
	svc, plans, _ := newHarness(t)
	createTestPlan(t, plans, "plan-handler-1")
	h := NewHandler(svc, nil)
	router := chi.NewRouter()
	router.Mount("/jobs", h.Routes())

	r := httptest.NewRequest(http.MethodPost, "/jobs/any-job/pause", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422; body = %s", w.Code, w.Body.String())
	}
}

func TestHandleListEvents_UnknownJobNotFound(t *testing.T) {
	svc, _, _ := newHarness(t)
	h := NewHandler(svc, nil)
	router := chi.NewRouter()
	router.Mount("/jobs", h.Routes())

	r := httptest.NewRequest(http.MethodGet, "/jobs/does-not-exist/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404; body = %s", w.Code, w.Body.String())
	}
}
