// Package jobsvc implements job creation and lifecycle, scope lock
// admission, the per-job event log, and the cross-service audit event
// projection consumed by other RRS services.
package jobsvc

import "time"

// Status is the closed set of job lifecycle states.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// JobEvent is one entry in a job's ordered event log.
type JobEvent struct {
	EventID    string    `json:"event_id"`
	JobID      string    `json:"job_id"`
	Phase      string    `json:"phase"` // plan | execute | evidence
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	ReasonCode string    `json:"reason_code"`
	At         time.Time `json:"at"`
}

// Job is the persisted unit of restore work.
type Job struct {
	JobID                string     `json:"job_id"`
	TenantID             string     `json:"tenant_id"`
	InstanceID           string     `json:"instance_id"`
	Source               string     `json:"source"`
	PlanID               string     `json:"plan_id"`
	PlanHash             string     `json:"plan_hash"`
	Status               Status     `json:"status"`
	StatusReasonCode     string     `json:"status_reason_code"`
	WaitReasonCode       string     `json:"wait_reason_code,omitempty"`
	RequiredCapabilities []string   `json:"required_capabilities"`
	LockScopeTables      []string   `json:"lock_scope_tables"`
	RequestedBy          string     `json:"requested_by"`
	RequestedAt          time.Time  `json:"requested_at"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	QueuePosition        int        `json:"queue_position,omitempty"`
	Events               []JobEvent `json:"events"`
}

// CrossServiceEvent is the normalized audit projection other RRS services
// consume.
type CrossServiceEvent struct {
	ContractVersion string    `json:"contract_version"`
	SchemaVersion   string    `json:"schema_version"`
	Service         string    `json:"service"`
	TenantID        string    `json:"tenant_id"`
	InstanceID      string    `json:"instance_id"`
	Source          string    `json:"source"`
	PlanID          string    `json:"plan_id"`
	JobID           string    `json:"job_id"`
	Lifecycle       string    `json:"lifecycle"`
	Action          string    `json:"action"`
	Outcome         string    `json:"outcome"`
	ReasonCode      string    `json:"reason_code"`
	At              time.Time `json:"at"`
}

const (
	contractVersion = "audit.contracts.v1"
	schemaVersion   = "audit.event.v1"
	serviceName     = "rrs"
)

// CreateJobRequest is the public request contract for createJob.
type CreateJobRequest struct {
	TenantID             string   `json:"tenant_id" validate:"required"`
	InstanceID           string   `json:"instance_id" validate:"required"`
	Source               string   `json:"source" validate:"required"`
	ServiceScope         string   `json:"service_scope" validate:"required"`
	PlanID               string   `json:"plan_id" validate:"required"`
	PlanHash             string   `json:"plan_hash" validate:"required"`
	RequestedBy          string   `json:"requested_by" validate:"required"`
	LockScopeTables      []string `json:"lock_scope_tables" validate:"required"`
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
}

// stateDoc is the persisted "job_state" store_key document.
type stateDoc struct {
	Jobs map[string]Job `json:"jobs"`
}

// projectionDoc is the persisted "job_event_projection_state" store_key
// document: a bounded tail of cross-service events, newest last.
type projectionDoc struct {
	Events []CrossServiceEvent `json:"events"`
}

const maxProjectionEvents = 2000

// projectionStoreKey is a store_key private to this package, alongside
// snapshot's well-known job_state key.
const projectionStoreKey = "job_event_projection_state"
