package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/restorecp/rcs/internal/rcserr"
)

// ErrorResponse is the generic JSON error envelope for non-validation failures.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	ReasonCode string `json:"reason_code,omitempty"`
	Dependency string `json:"dependency,omitempty"`
}

// Respond writes v as a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// RespondError writes a generic error envelope with the given status and label.
func RespondError(w http.ResponseWriter, status int, label, message string) {
	Respond(w, status, ErrorResponse{Error: label, Message: message})
}

// RespondErrorEnvelope writes an error envelope including a reason code and
// optional dependency name, matching the typed rcserr.Error shape.
func RespondErrorEnvelope(w http.ResponseWriter, status int, label, message, reasonCode, dependency string) {
	Respond(w, status, ErrorResponse{
		Error:      label,
		Message:    message,
		ReasonCode: reasonCode,
		Dependency: dependency,
	})
}

// RespondRCSError writes the error envelope for any error returned from a
// component boundary, unwrapping *rcserr.Error to surface its status and
// reason code and falling back to 500 for anything else.
func RespondRCSError(w http.ResponseWriter, err error) {
	status, env := rcserr.ToEnvelope(err)
	Respond(w, status, ErrorResponse{
		Error:      env.Error,
		Message:    env.Message,
		ReasonCode: env.ReasonCode,
		Dependency: env.Dependency,
	})
}
