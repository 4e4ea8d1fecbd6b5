// Package plan canonicalizes a restore request, computes a deterministic
// plan hash, and assembles the executability gate from the freshness
// oracle and the plan's own candidate/conflict state.
package plan

import "time"

// Row is one planned change against the external record system. Value
// payloads stay opaque: only one of DiffEnc, BeforeImageEnc, AfterImageEnc
// is ever populated, and none of them is ever plaintext.
type Row struct {
	RowID            string         `json:"row_id"`
	Table            string         `json:"table"`
	RecordSysID      string         `json:"record_sys_id"`
	Action           string         `json:"action"` // update | insert | delete | skip
	PreconditionHash string         `json:"precondition_hash"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	DiffEnc          string         `json:"diff_enc,omitempty"`
	BeforeImageEnc   string         `json:"before_image_enc,omitempty"`
	AfterImageEnc    string         `json:"after_image_enc,omitempty"`
	Topic            string         `json:"topic"`
	Partition        string         `json:"partition"`
}

// HasBeforeImageCandidate reports whether the row carries a value envelope
// the execution service can journal before overwriting.
func (r Row) HasBeforeImageCandidate() bool {
	return r.BeforeImageEnc != "" || r.DiffEnc != "" || r.AfterImageEnc != ""
}

// Conflict classes other than "reference" may resolve to skip; reference
// conflicts forbid skip.
const (
	ConflictClassValue              = "value"
	ConflictClassMissingRow         = "missing_row"
	ConflictClassUnexpectedExisting = "unexpected_existing"
	ConflictClassReference          = "reference"
	ConflictClassSchema             = "schema"
	ConflictClassPermission         = "permission"
	ConflictClassStale              = "stale"
)

// Conflict is a detected discrepancy between the plan and the live record
// system, optionally pre-resolved by the caller.
type Conflict struct {
	ConflictID string `json:"conflict_id"`
	RowID      string `json:"row_id"`
	Class      string `json:"class"`
	Resolution string `json:"resolution,omitempty"` // "skip" | "abort_and_replan" | ""
	ReasonCode string `json:"reason_code,omitempty"`
}

// IsResolved reports whether the conflict carries an explicit resolution.
func (c Conflict) IsResolved() bool {
	return c.Resolution != ""
}

// DeleteCandidate is a row whose action implies a delete that requires an
// explicit operator decision before the plan is executable.
type DeleteCandidate struct {
	CandidateID string `json:"candidate_id"`
	RowID       string `json:"row_id"`
	Decision    string `json:"decision,omitempty"` // "allow_deletion" | "exclude" | ""
}

// MediaCandidate is an attachment/media item discovered on a row.
type MediaCandidate struct {
	CandidateID        string `json:"candidate_id"`
	RowID              string `json:"row_id"`
	Decision           string `json:"decision,omitempty"` // "include" | "exclude" | ""
	ExpectedHash       string `json:"expected_hash,omitempty"`
	ObservedHash       string `json:"observed_hash,omitempty"`
	ParentRecordExists bool   `json:"parent_record_exists"`
	SizeBytes          int64  `json:"size_bytes"`
	MaxRetryAttempts   *int   `json:"max_retry_attempts,omitempty"`
	RetryableFailures  int    `json:"retryable_failures,omitempty"`
}

// PITCandidate is a point-in-time tie-break candidate surfaced for review.
type PITCandidate struct {
	CandidateID string `json:"candidate_id"`
	RowID       string `json:"row_id"`
	Value       string `json:"value,omitempty"`
}

// PITResolution records how a point-in-time ambiguity was resolved.
type PITResolution struct {
	RowID      string `json:"row_id"`
	Resolution string `json:"resolution"`
}

// PIT is the point-in-time selection for the restore.
type PIT struct {
	RestoreTime         time.Time `json:"restore_time"`
	RestoreTimezone     string    `json:"restore_timezone"`
	PitAlgorithmVersion string    `json:"pit_algorithm_version"`
	TieBreaker          []string  `json:"tie_breaker,omitempty"`
	TieBreakerFallback  []string  `json:"tie_breaker_fallback,omitempty"`
}

// Scope describes which tables/rows the plan covers.
type Scope struct {
	Mode         string   `json:"mode"`
	Tables       []string `json:"tables"`
	EncodedQuery string   `json:"encoded_query,omitempty"`
}

// ExecutionOptions are the caller's policy choices for how the plan should
// later be executed.
type ExecutionOptions struct {
	MissingRowMode          string `json:"missing_row_mode"`
	ConflictPolicy          string `json:"conflict_policy"`
	SchemaCompatibilityMode string `json:"schema_compatibility_mode"`
	WorkflowMode            string `json:"workflow_mode"`
}

// IncomingWatermark is the caller-supplied watermark shape. Its freshness
// fields are never trusted: only oracle-derived values feed the gate.
type IncomingWatermark struct {
	Topic     string `json:"topic"`
	Partition string `json:"partition"`
}

// Gate is the pair (executability, reason_code) deciding whether a plan may
// be executed now.
type Gate struct {
	Executability string `json:"executability"`
	ReasonCode    string `json:"reason_code"`
}

// Approval is a placeholder for a future manual-approval workflow; spec
// only requires the field to exist on the persisted record.
type Approval struct {
	Required bool       `json:"required"`
	Approved bool       `json:"approved"`
	By       string     `json:"by,omitempty"`
	At       *time.Time `json:"at,omitempty"`
}

// DryRunPlan is the immutable output of createDryRunPlan.
type DryRunPlan struct {
	PlanID           string            `json:"plan_id"`
	TenantID         string            `json:"tenant_id"`
	InstanceID       string            `json:"instance_id"`
	Source           string            `json:"source"`
	PlanHash         string            `json:"plan_hash"`
	PlanHashInput    planHashInput     `json:"plan_hash_input"`
	ExecutionOptions ExecutionOptions  `json:"execution_options"`
	Rows             []Row             `json:"rows"`
	Conflicts        []Conflict        `json:"conflicts"`
	DeleteCandidates []DeleteCandidate `json:"delete_candidates"`
	MediaCandidates  []MediaCandidate  `json:"media_candidates"`
	PITResolutions   []PITResolution   `json:"pit_resolutions"`
	Watermarks       []WatermarkView   `json:"watermarks"`
	Gate             Gate              `json:"gate"`
	GeneratedAt      time.Time         `json:"generated_at"`
	RequestedBy      string            `json:"requested_by"`
	Approval         Approval          `json:"approval"`
}

// WatermarkView is the subset of a freshness.Watermark persisted on the plan.
type WatermarkView struct {
	Topic         string `json:"topic"`
	Partition     string `json:"partition"`
	Freshness     string `json:"freshness"`
	Executability string `json:"executability"`
	ReasonCode    string `json:"reason_code"`
}

// CreateDryRunPlanRequest is the public request contract for createDryRunPlan.
type CreateDryRunPlanRequest struct {
	TenantID         string              `json:"tenant_id" validate:"required"`
	InstanceID       string              `json:"instance_id" validate:"required"`
	Source           string              `json:"source" validate:"required"`
	PlanID           string              `json:"plan_id" validate:"required"`
	RequestedBy      string              `json:"requested_by" validate:"required"`
	PIT              PIT                 `json:"pit"`
	Scope            Scope               `json:"scope"`
	ExecutionOptions ExecutionOptions    `json:"execution_options"`
	Rows             []Row               `json:"rows"`
	Conflicts        []Conflict          `json:"conflicts"`
	DeleteCandidates []DeleteCandidate   `json:"delete_candidates"`
	MediaCandidates  []MediaCandidate    `json:"media_candidates"`
	PITCandidates    []PITCandidate      `json:"pit_candidates"`
	Watermarks       []IncomingWatermark `json:"watermarks"`
}

// stateDoc is the persisted "plan_state" store_key document: plans keyed by
// plan_id, scoped within by tenant/instance/source for lookup isolation.
type stateDoc struct {
	Plans map[string]DryRunPlan `json:"plans"`
}
