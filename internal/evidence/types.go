// Package evidence assembles a signed, hash-chained manifest over a
// completed execution's artifacts so a restore's outcome can be
// independently verified after the fact.
package evidence

import "time"

// VerificationResult is the closed set of signature/hash verification outcomes.
type VerificationResult string

const (
	VerificationVerified VerificationResult = "verified"
	VerificationFailed   VerificationResult = "verification_failed"
)

// ArtifactHash is one manifest artifact's content-addressed fingerprint.
type ArtifactHash struct {
	ArtifactID    string `json:"artifact_id"`
	SHA256        string `json:"sha256"`
	ByteLength    int    `json:"byte_length"`
	CanonicalJSON string `json:"canonical_json"`
}

// ResumeMetadata summarizes the resume history folded into the manifest.
type ResumeMetadata struct {
	ResumeAttemptCount int    `json:"resume_attempt_count"`
	FinalReasonCode    string `json:"final_reason_code"`
}

// ExecutionOutcomesSummary is the manifest's condensed view of the execution result.
type ExecutionOutcomesSummary struct {
	Status       string `json:"status"`
	PlannedRows  int    `json:"planned_rows"`
	AppliedRows  int    `json:"applied_rows"`
	SkippedRows  int    `json:"skipped_rows"`
	FailedRows   int    `json:"failed_rows"`
	AppliedMedia int    `json:"applied_media"`
	SkippedMedia int    `json:"skipped_media"`
	FailedMedia  int    `json:"failed_media"`
}

// ConflictSummary condenses the plan's conflict ledger for the report.
type ConflictSummary struct {
	Total      int `json:"total"`
	Resolved   int `json:"resolved"`
	Unresolved int `json:"unresolved"`
}

// DeleteDecisionSummary condenses the plan's delete-candidate decisions.
type DeleteDecisionSummary struct {
	Total           int `json:"total"`
	AllowedDeletion int `json:"allowed_deletion"`
	Excluded        int `json:"excluded"`
	Undecided       int `json:"undecided"`
}

// SchemaDriftSummary records whether the plan required a schema override.
type SchemaDriftSummary struct {
	SchemaCompatibilityMode string `json:"schema_compatibility_mode"`
	OverrideUsed            bool   `json:"override_used"`
}

// ApprovedScope is the manifest's record of what the plan's scope covered.
type ApprovedScope struct {
	Mode   string   `json:"mode"`
	Tables []string `json:"tables"`
}

// reportHashInput is the exact composite struct report_hash is computed
// over: contract_version through approval, with artifact_hashes sorted by
// artifact_id.
type reportHashInput struct {
	ContractVersion         string                   `json:"contract_version"`
	EvidenceID              string                   `json:"evidence_id"`
	JobID                   string                   `json:"job_id"`
	PlanHash                string                   `json:"plan_hash"`
	PitAlgorithmVersion     string                   `json:"pit_algorithm_version"`
	BackupTimestamp         string                   `json:"backup_timestamp"`
	ApprovedScope           ApprovedScope            `json:"approved_scope"`
	SchemaDriftSummary      SchemaDriftSummary       `json:"schema_drift_summary"`
	ConflictSummary         ConflictSummary          `json:"conflict_summary"`
	DeleteDecisionSummary   DeleteDecisionSummary    `json:"delete_decision_summary"`
	ExecutionOutcomes       ExecutionOutcomesSummary `json:"execution_outcomes"`
	ResumeMetadata          ResumeMetadata           `json:"resume_metadata"`
	ArtifactHashes          []ArtifactHash           `json:"artifact_hashes"`
	CanonicalizationVersion string                   `json:"canonicalization_version"`
	ImmutableStorage        bool                     `json:"immutable_storage"`
	Approval                ApprovalView             `json:"approval"`
}

// ApprovalView mirrors plan.Approval into the evidence manifest.
type ApprovalView struct {
	Required bool   `json:"required"`
	Approved bool   `json:"approved"`
	By       string `json:"by,omitempty"`
}

// manifestPayload is the report-hash input plus the computed report_hash
// itself; this is exactly what gets signed.
type manifestPayload struct {
	reportHashInput
	ReportHash string `json:"report_hash"`
}

// Record is the persisted unit of evidence.
type Record struct {
	EvidenceID              string                   `json:"evidence_id"`
	JobID                   string                   `json:"job_id"`
	TenantID                string                   `json:"tenant_id"`
	InstanceID              string                   `json:"instance_id"`
	PlanID                  string                   `json:"plan_id"`
	PlanHash                string                   `json:"plan_hash"`
	PitAlgorithmVersion     string                   `json:"pit_algorithm_version"`
	BackupTimestamp         string                   `json:"backup_timestamp"`
	ApprovedScope           ApprovedScope            `json:"approved_scope"`
	SchemaDriftSummary      SchemaDriftSummary       `json:"schema_drift_summary"`
	ConflictSummary         ConflictSummary          `json:"conflict_summary"`
	DeleteDecisionSummary   DeleteDecisionSummary    `json:"delete_decision_summary"`
	ExecutionOutcomes       ExecutionOutcomesSummary `json:"execution_outcomes"`
	ResumeMetadata          ResumeMetadata           `json:"resume_metadata"`
	ArtifactHashes          []ArtifactHash           `json:"artifact_hashes"`
	CanonicalizationVersion string                   `json:"canonicalization_version"`
	ImmutableStorage        bool                     `json:"immutable_storage"`
	Approval                ApprovalView             `json:"approval"`
	ReportHash              string                   `json:"report_hash"`
	Signature               string                   `json:"signature"` // base64
	SignatureVerification   VerificationResult       `json:"signature_verification"`
	ReasonCode              string                   `json:"reason_code"`
	CreatedAt               time.Time                `json:"created_at"`
}

// VerifyResult is the outcome of validateEvidenceRecord.
type VerifyResult struct {
	Result     VerificationResult `json:"result"`
	ReasonCode string             `json:"reason_code"`
}

// stateDoc is the persisted "evidence_state" store_key document: one record
// per job_id, since a job produces at most one evidence record.
type stateDoc struct {
	Records map[string]Record `json:"records"` // keyed by job_id
	ByID    map[string]string `json:"by_id"`    // evidence_id -> job_id
}

const canonicalizationVersion = "evidence.canon.v1"
