package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/restorecp/rcs/internal/auth"
	"github.com/restorecp/rcs/internal/canon"
	"github.com/restorecp/rcs/internal/execution"
	"github.com/restorecp/rcs/internal/jobsvc"
	"github.com/restorecp/rcs/internal/notify"
	"github.com/restorecp/rcs/internal/plan"
	"github.com/restorecp/rcs/internal/rcserr"
	"github.com/restorecp/rcs/internal/snapshot"
	"github.com/restorecp/rcs/internal/telemetry"
)

// Service implements the EvidenceService.
type Service struct {
	store    snapshot.Store
	plans    *plan.Service
	jobs     *jobsvc.Service
	executor *execution.Service
	signer   *Signer
	notifier *notify.Notifier
}

// NewService wires an EvidenceService from its dependencies.
func NewService(store snapshot.Store, plans *plan.Service, jobs *jobsvc.Service, executor *execution.Service, signer *Signer, notifier *notify.Notifier) *Service {
	return &Service{store: store, plans: plans, jobs: jobs, executor: executor, signer: signer, notifier: notifier}
}

// ExportEvidence assembles, signs, and persists a fresh evidence manifest
// for job_id. It is NOT idempotent: callers wanting reuse-or-create
// semantics should call EnsureEvidence instead.
func (s *Service) ExportEvidence(ctx context.Context, claims *auth.Claims, jobID string) (*Record, error) {
	job, err := s.jobs.GetJob(ctx, claims, jobID)
	if err != nil {
		return nil, err
	}
	rec, err := s.executor.GetExecution(ctx, claims, jobID)
	if err != nil {
		return nil, err
	}
	if rec.Status != execution.StatusCompleted && rec.Status != execution.StatusFailed {
		return nil, rcserr.Blocked(rcserr.ReasonBlockedEvidenceNotReady, "execution is not in a terminal state")
	}
	p, err := s.plans.GetPlan(ctx, job.PlanID)
	if err != nil {
		return nil, rcserr.New(409, rcserr.ReasonFailedInternalError, "plan referenced by job is missing")
	}
	events, err := s.jobs.ListJobEvents(ctx, claims, jobID)
	if err != nil {
		return nil, err
	}
	journal, err := s.executor.GetRollbackJournal(ctx, claims, jobID)
	if err != nil {
		return nil, err
	}

	completedAt := job.RequestedAt
	if job.CompletedAt != nil {
		completedAt = *job.CompletedAt
	}
	evidenceID := newEvidenceID(jobID, p.PlanHash, completedAt)

	artifacts, err := buildArtifacts(p, rec, events, journal)
	if err != nil {
		return nil, rcserr.Internal("building evidence artifacts", err)
	}

	input := buildReportHashInput(evidenceID, p, rec, artifacts)
	reportHash, err := canon.SHA256Hex(input)
	if err != nil {
		return nil, rcserr.Internal("computing report hash", err)
	}

	payloadJSON, err := canon.JSON(manifestPayload{reportHashInput: input, ReportHash: reportHash})
	if err != nil {
		return nil, rcserr.Internal("canonicalizing manifest payload", err)
	}
	signature := s.signer.Sign([]byte(payloadJSON))

	verification := VerificationVerified
	reasonCode := rcserr.ReasonNone
	if !s.signer.Verify([]byte(payloadJSON), signature) {
		verification = VerificationFailed
		reasonCode = rcserr.ReasonFailedEvidenceSignatureVerification
	}

	record := Record{
		EvidenceID:              evidenceID,
		JobID:                   jobID,
		TenantID:                job.TenantID,
		InstanceID:              job.InstanceID,
		PlanID:                  p.PlanID,
		PlanHash:                p.PlanHash,
		PitAlgorithmVersion:     input.PitAlgorithmVersion,
		BackupTimestamp:         input.BackupTimestamp,
		ApprovedScope:           input.ApprovedScope,
		SchemaDriftSummary:      input.SchemaDriftSummary,
		ConflictSummary:         input.ConflictSummary,
		DeleteDecisionSummary:   input.DeleteDecisionSummary,
		ExecutionOutcomes:       input.ExecutionOutcomes,
		ResumeMetadata:          input.ResumeMetadata,
		ArtifactHashes:          artifacts,
		CanonicalizationVersion: canonicalizationVersion,
		ImmutableStorage:        true,
		Approval:                input.Approval,
		ReportHash:              reportHash,
		Signature:               signature,
		SignatureVerification:   verification,
		ReasonCode:              reasonCode,
		CreatedAt:               time.Now().UTC(),
	}

	if err := s.save(ctx, record); err != nil {
		return nil, err
	}

	if verification == VerificationFailed {
		s.notifier.NotifyEvidenceVerificationFailed(ctx, job.TenantID, job.InstanceID, evidenceID, reasonCode)
	} else {
		s.notifier.NotifyEvidenceExported(ctx, job.TenantID, job.InstanceID, jobID, evidenceID)
	}
	telemetry.EvidenceExportedTotal.WithLabelValues("false").Inc()
	telemetry.EvidenceVerificationTotal.WithLabelValues(string(verification)).Inc()

	return &record, nil
}

// EnsureEvidence returns the existing record for job_id if one exists
// (reused=true), otherwise exports a fresh one (reused=false).
func (s *Service) EnsureEvidence(ctx context.Context, claims *auth.Claims, jobID string) (rec *Record, reused bool, err error) {
	existing, err := s.GetEvidence(ctx, jobID)
	if err == nil {
		telemetry.EvidenceExportedTotal.WithLabelValues("true").Inc()
		return existing, true, nil
	}
	var rerr *rcserr.Error
	if !isNotFound(err, &rerr) {
		return nil, false, err
	}
	created, err := s.ExportEvidence(ctx, claims, jobID)
	if err != nil {
		return nil, false, err
	}
	return created, false, nil
}

// GetEvidence returns the evidence record for job_id.
func (s *Service) GetEvidence(ctx context.Context, jobID string) (*Record, error) {
	doc, _, err := snapshot.ReadTyped[stateDoc](ctx, s.store, snapshot.KeyEvidenceState)
	if err != nil {
		return nil, rcserr.Internal("reading evidence state", err)
	}
	r, ok := doc.Records[jobID]
	if !ok {
		return nil, rcserr.NotFound(fmt.Sprintf("evidence for job %s not found", jobID))
	}
	return &r, nil
}

// GetEvidenceByID returns the evidence record for evidence_id.
func (s *Service) GetEvidenceByID(ctx context.Context, evidenceID string) (*Record, error) {
	doc, _, err := snapshot.ReadTyped[stateDoc](ctx, s.store, snapshot.KeyEvidenceState)
	if err != nil {
		return nil, rcserr.Internal("reading evidence state", err)
	}
	jobID, ok := doc.ByID[evidenceID]
	if !ok {
		return nil, rcserr.NotFound(fmt.Sprintf("evidence %s not found", evidenceID))
	}
	r, ok := doc.Records[jobID]
	if !ok {
		return nil, rcserr.NotFound(fmt.Sprintf("evidence %s not found", evidenceID))
	}
	return &r, nil
}

// ListEvidence returns every evidence record scoped to tenant/instance,
// oldest first.
func (s *Service) ListEvidence(ctx context.Context, tenantID, instanceID string) ([]*Record, error) {
	doc, _, err := snapshot.ReadTyped[stateDoc](ctx, s.store, snapshot.KeyEvidenceState)
	if err != nil {
		return nil, rcserr.Internal("reading evidence state", err)
	}
	out := make([]*Record, 0)
	for _, r := range doc.Records {
		if r.TenantID == tenantID && r.InstanceID == instanceID {
			rr := r
			out = append(out, &rr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ValidateEvidenceRecord independently recomputes artifact hashes, the
// report_hash, and the signature, flagging the specific integrity failure
// on any mismatch.
func (s *Service) ValidateEvidenceRecord(record *Record) (result VerifyResult) {
	defer func() { telemetry.EvidenceVerificationTotal.WithLabelValues(string(result.Result)).Inc() }()

	for _, a := range record.ArtifactHashes {
		sum := sha256.Sum256([]byte(a.CanonicalJSON))
		if hex.EncodeToString(sum[:]) != a.SHA256 || len(a.CanonicalJSON) != a.ByteLength {
			return VerifyResult{Result: VerificationFailed, ReasonCode: rcserr.ReasonFailedEvidenceArtifactHashMismatch}
		}
	}

	input := reportHashInput{
		ContractVersion:         "evidence.report.v1",
		EvidenceID:              record.EvidenceID,
		JobID:                   record.JobID,
		PlanHash:                record.PlanHash,
		PitAlgorithmVersion:     record.PitAlgorithmVersion,
		BackupTimestamp:         record.BackupTimestamp,
		ApprovedScope:           record.ApprovedScope,
		SchemaDriftSummary:      record.SchemaDriftSummary,
		ConflictSummary:         record.ConflictSummary,
		DeleteDecisionSummary:   record.DeleteDecisionSummary,
		ExecutionOutcomes:       record.ExecutionOutcomes,
		ResumeMetadata:          record.ResumeMetadata,
		ArtifactHashes:          record.ArtifactHashes,
		CanonicalizationVersion: record.CanonicalizationVersion,
		ImmutableStorage:        record.ImmutableStorage,
		Approval:                record.Approval,
	}
	reportHash, err := canon.SHA256Hex(input)
	if err != nil || reportHash != record.ReportHash {
		return VerifyResult{Result: VerificationFailed, ReasonCode: rcserr.ReasonFailedEvidenceReportHashMismatch}
	}

	payloadJSON, err := canon.JSON(manifestPayload{reportHashInput: input, ReportHash: reportHash})
	if err != nil || !s.signer.Verify([]byte(payloadJSON), record.Signature) {
		return VerifyResult{Result: VerificationFailed, ReasonCode: rcserr.ReasonFailedEvidenceSignatureVerification}
	}

	return VerifyResult{Result: VerificationVerified, ReasonCode: rcserr.ReasonNone}
}

func (s *Service) save(ctx context.Context, record Record) error {
	return snapshot.MutateTyped(ctx, s.store, snapshot.KeyEvidenceState, func(doc *stateDoc) error {
		if doc.Records == nil {
			doc.Records = make(map[string]Record)
		}
		if doc.ByID == nil {
			doc.ByID = make(map[string]string)
		}
		doc.Records[record.JobID] = record
		doc.ByID[record.EvidenceID] = record.JobID
		return nil
	})
}

func newEvidenceID(jobID, planHash string, completedAt time.Time) string {
	h := sha256.New()
	h.Write([]byte(jobID))
	h.Write([]byte("|"))
	h.Write([]byte(planHash))
	h.Write([]byte("|"))
	h.Write([]byte(canon.NormalizeISO(completedAt)))
	return "evidence_" + hex.EncodeToString(h.Sum(nil))[:24]
}

func isNotFound(err error, target **rcserr.Error) bool {
	if errors.As(err, target) {
		return (*target).Status == 404
	}
	return false
}
