// Package rcserr defines the typed error envelope every component boundary
// returns: a loose HTTP-style status code paired with a closed-set reason
// code, so a caller always learns both how to react and why.
package rcserr

import (
	"errors"
	"fmt"
	"net/http"
)

// Reason codes. This is the closed set a caller may branch on; components
// must not invent new ones ad hoc.
const (
	ReasonNone                                 = "none"
	ReasonQueuedScopeLock                      = "queued_scope_lock"
	ReasonBlockedUnknownSourceMapping           = "blocked_unknown_source_mapping"
	ReasonBlockedMissingCapability              = "blocked_missing_capability"
	ReasonBlockedUnresolvedDeleteCandidates     = "blocked_unresolved_delete_candidates"
	ReasonBlockedUnresolvedMediaCandidates      = "blocked_unresolved_media_candidates"
	ReasonBlockedReferenceConflict              = "blocked_reference_conflict"
	ReasonBlockedFreshnessStale                 = "blocked_freshness_stale"
	ReasonBlockedFreshnessUnknown               = "blocked_freshness_unknown"
	ReasonBlockedAuthControlPlaneOutage         = "blocked_auth_control_plane_outage"
	ReasonBlockedPlanHashMismatch               = "blocked_plan_hash_mismatch"
	ReasonBlockedEvidenceNotReady               = "blocked_evidence_not_ready"
	ReasonBlockedResumePreconditionMismatch     = "blocked_resume_precondition_mismatch"
	ReasonBlockedResumeCheckpointMissing        = "blocked_resume_checkpoint_missing"
	ReasonPausedTokenRefreshGraceExhausted      = "paused_token_refresh_grace_exhausted"
	ReasonPausedEntitlementDisabled             = "paused_entitlement_disabled"
	ReasonPausedInstanceDisabled                = "paused_instance_disabled"
	ReasonFailedMediaParentMissing              = "failed_media_parent_missing"
	ReasonFailedMediaHashMismatch               = "failed_media_hash_mismatch"
	ReasonFailedMediaRetryExhausted             = "failed_media_retry_exhausted"
	ReasonFailedEvidenceArtifactHashMismatch    = "failed_evidence_artifact_hash_mismatch"
	ReasonFailedEvidenceReportHashMismatch      = "failed_evidence_report_hash_mismatch"
	ReasonFailedEvidenceSignatureVerification   = "failed_evidence_signature_verification"
	ReasonFailedSchemaConflict                  = "failed_schema_conflict"
	ReasonFailedPermissionConflict              = "failed_permission_conflict"
	ReasonFailedInternalError                   = "failed_internal_error"
	ReasonBlockedRateLimited                    = "blocked_rate_limited"
)

// Error is the typed envelope propagated across every component boundary.
type Error struct {
	Status     int    // loose HTTP-style status code
	Reason     string // closed-set reason code
	Message    string
	Dependency string // set when Reason indicates a dependency outage
	cause      error
}

func (e *Error) Error() string {
	if e.Dependency != "" {
		return fmt.Sprintf("%s (reason=%s, dependency=%s)", e.Message, e.Reason, e.Dependency)
	}
	return fmt.Sprintf("%s (reason=%s)", e.Message, e.Reason)
}

// Unwrap exposes the wrapped cause, if any, so errors.Is/As traverse through.
func (e *Error) Unwrap() error {
	return e.cause
}

// New creates an Error with no wrapped cause.
func New(status int, reason, message string) *Error {
	return &Error{Status: status, Reason: reason, Message: message}
}

// Wrap creates an Error that wraps an underlying cause. The originating
// reason_code, if the cause is itself an *Error, is preserved in the message
// so it is never silently lost — only ever wrapped.
func Wrap(status int, reason, message string, cause error) *Error {
	var inner *Error
	if errors.As(cause, &inner) {
		message = fmt.Sprintf("%s: %s (reason=%s)", message, inner.Message, inner.Reason)
	} else if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}
	return &Error{Status: status, Reason: reason, Message: message, cause: cause}
}

// WithDependency attaches the name of the failing dependency, used for
// statusCode 503 / outage reason codes.
func (e *Error) WithDependency(dep string) *Error {
	e.Dependency = dep
	return e
}

// Blocked builds the common "blocked_*" shape: 409 plus the given reason.
func Blocked(reason, message string) *Error {
	return New(http.StatusConflict, reason, message)
}

// NotFound builds a 404 with reason "none".
func NotFound(message string) *Error {
	return New(http.StatusNotFound, ReasonNone, message)
}

// Internal builds a 500 failed_internal_error, wrapping cause if present.
func Internal(message string, cause error) *Error {
	return Wrap(http.StatusInternalServerError, ReasonFailedInternalError, message, cause)
}

// Outage builds a 503 dependency-outage error.
func Outage(dependency, message string) *Error {
	return New(http.StatusServiceUnavailable, ReasonBlockedAuthControlPlaneOutage, message).WithDependency(dependency)
}

// Envelope is the JSON response shape for a failed request.
type Envelope struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	ReasonCode string `json:"reason_code,omitempty"`
	Dependency string `json:"dependency,omitempty"`
}

// ToEnvelope converts an error into its wire representation. Non-*Error
// values are rendered as an internal error with no reason code.
func ToEnvelope(err error) (int, Envelope) {
	var e *Error
	if errors.As(err, &e) {
		return e.Status, Envelope{
			Error:      http.StatusText(e.Status),
			Message:    e.Message,
			ReasonCode: e.Reason,
			Dependency: e.Dependency,
		}
	}
	return http.StatusInternalServerError, Envelope{
		Error:   http.StatusText(http.StatusInternalServerError),
		Message: err.Error(),
	}
}
