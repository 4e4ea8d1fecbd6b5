// Package execution implements chunked apply with row-isolation fallback,
// an attachment/media pipeline, checkpointed resume, and the authoritative
// rollback journal with its mirrored external index.
package execution

import "time"

// Status is the closed set of execution states.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Checkpoint is the durable resume cursor for an execution attempt.
type Checkpoint struct {
	CheckpointID     string         `json:"checkpoint_id"`
	NextChunkIndex   int            `json:"next_chunk_index"`
	TotalChunks      int            `json:"total_chunks"`
	LastChunkID      string         `json:"last_chunk_id,omitempty"`
	RowAttemptByRow  map[string]int `json:"row_attempt_by_row"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ChunkRecord describes one processed chunk of plan rows.
type ChunkRecord struct {
	ChunkID string   `json:"chunk_id"`
	Index   int      `json:"index"`
	Mode    string   `json:"mode"` // normal | row_fallback
	RowIDs  []string `json:"row_ids"`
}

// RowOutcome is the per-row result of applying a plan row.
type RowOutcome struct {
	RowID      string `json:"row_id"`
	ChunkID    string `json:"chunk_id"`
	Outcome    string `json:"outcome"` // applied | skipped | failed
	ReasonCode string `json:"reason_code"`
	Resolution string `json:"resolution,omitempty"`
	Attempt    int    `json:"attempt"`
}

// MediaOutcome is the per-candidate result of the media pipeline.
type MediaOutcome struct {
	CandidateID string `json:"candidate_id"`
	RowID       string `json:"row_id"`
	Outcome     string `json:"outcome"` // applied | skipped | failed
	ReasonCode  string `json:"reason_code"`
	Attempts    int    `json:"attempts"`
}

// RuntimeConflict is a conflict discovered at execute/resume time, distinct
// from the conflicts already recorded on the plan.
type RuntimeConflict struct {
	ConflictID string `json:"conflict_id"`
	RowID      string `json:"row_id"`
	Class      string `json:"class"`
	Resolution string `json:"resolution"` // "skip" | "abort_and_replan"
	ReasonCode string `json:"reason_code"`
}

// ElevatedConfirmation is the operator's explicit acknowledgement required
// when restore_override_caps is part of the required capability set.
type ElevatedConfirmation struct {
	Confirmed    bool   `json:"confirmed"`
	Confirmation string `json:"confirmation"` // must equal "I UNDERSTAND"
	Reason       string `json:"reason"`
}

// Summary aggregates row/media outcome counts for quick inspection.
type Summary struct {
	PlannedRows  int `json:"planned_rows"`
	AppliedRows  int `json:"applied_rows"`
	SkippedRows  int `json:"skipped_rows"`
	FailedRows   int `json:"failed_rows"`
	AppliedMedia int `json:"applied_media"`
	SkippedMedia int `json:"skipped_media"`
	FailedMedia  int `json:"failed_media"`
}

// ExecutionRecord is the persisted unit of execution progress.
type ExecutionRecord struct {
	JobID                    string         `json:"job_id"`
	TenantID                 string         `json:"tenant_id"`
	InstanceID               string         `json:"instance_id"`
	PlanID                   string         `json:"plan_id"`
	PlanHash                 string         `json:"plan_hash"`
	PlanChecksum             string         `json:"plan_checksum"`
	PreconditionChecksum     string         `json:"precondition_checksum"`
	Status                   Status         `json:"status"`
	ReasonCode               string         `json:"reason_code"`
	ChunkSize                int            `json:"chunk_size"`
	WorkflowMode             string         `json:"workflow_mode"`
	WorkflowAllowlist        []string       `json:"workflow_allowlist,omitempty"`
	CapabilitiesUsed         []string       `json:"capabilities_used"`
	ElevatedConfirmationUsed bool           `json:"elevated_confirmation_used"`
	ResumeAttemptCount       int            `json:"resume_attempt_count"`
	Checkpoint               Checkpoint     `json:"checkpoint"`
	Summary                  Summary        `json:"summary"`
	Chunks                   []ChunkRecord  `json:"chunks"`
	RowOutcomes              []RowOutcome   `json:"row_outcomes"`
	MediaOutcomes            []MediaOutcome `json:"media_outcomes"`
	CreatedAt                time.Time      `json:"created_at"`
	UpdatedAt                time.Time      `json:"updated_at"`
}

// RollbackJournalEntry is the authoritative record of a row's prior value,
// written only when the row carried a before-image candidate.
type RollbackJournalEntry struct {
	JournalID     string    `json:"journal_id"`
	JobID         string    `json:"job_id"`
	PlanRowID     string    `json:"plan_row_id"`
	Table         string    `json:"table"`
	RecordSysID   string    `json:"record_sys_id"`
	Action        string    `json:"action"`
	BeforeImageEnc string   `json:"before_image_enc"`
	ChunkID       string    `json:"chunk_id"`
	RowAttempt    int       `json:"row_attempt"`
	ExecutedBy    string    `json:"executed_by"`
	ExecutedAt    time.Time `json:"executed_at"`
}

// MirrorEntry mirrors a journal entry into the external index.
type MirrorEntry struct {
	MirrorID    string    `json:"mirror_id"`
	JournalID   string    `json:"journal_id"`
	JobID       string    `json:"job_id"`
	PlanRowID   string    `json:"plan_row_id"`
	Table       string    `json:"table"`
	RecordSysID string    `json:"record_sys_id"`
	Action      string    `json:"action"`
	Outcome     string    `json:"outcome"`
	ReasonCode  string    `json:"reason_code"`
	LinkedAt    time.Time `json:"linked_at"`
}

// ExecuteJobRequest is the public request contract for executeJob.
type ExecuteJobRequest struct {
	JobID                string                `json:"job_id" validate:"required"`
	ExecutedBy           string                `json:"executed_by" validate:"required"`
	ChunkSize            int                   `json:"chunk_size,omitempty"`
	MaxChunksPerAttempt  int                   `json:"max_chunks_per_attempt,omitempty"`
	WorkflowMode         string                `json:"workflow_mode,omitempty"`
	RuntimeConflicts     []RuntimeConflict     `json:"runtime_conflicts,omitempty"`
	Capabilities         []string              `json:"capabilities,omitempty"`
	ElevatedConfirmation *ElevatedConfirmation `json:"elevated_confirmation,omitempty"`
}

// ResumeJobRequest is the public request contract for resumeJob.
type ResumeJobRequest struct {
	JobID                     string                `json:"job_id" validate:"required"`
	ExecutedBy                string                `json:"executed_by" validate:"required"`
	MaxChunksPerAttempt       int                   `json:"max_chunks_per_attempt,omitempty"`
	RuntimeConflicts          []RuntimeConflict     `json:"runtime_conflicts,omitempty"`
	Capabilities              []string              `json:"capabilities,omitempty"`
	ElevatedConfirmation      *ElevatedConfirmation `json:"elevated_confirmation,omitempty"`
	ExpectedPlanChecksum      string                `json:"expected_plan_checksum,omitempty"`
	ExpectedPreconditionChecksum string             `json:"expected_precondition_checksum,omitempty"`
}

// stateDoc is the persisted "execution_state" store_key document.
type stateDoc struct {
	Executions map[string]ExecutionRecord        `json:"executions"`
	Journal    map[string][]RollbackJournalEntry  `json:"journal"`
	Mirror     map[string][]MirrorEntry           `json:"mirror"`
}
