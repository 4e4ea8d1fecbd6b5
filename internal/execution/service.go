package execution

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/restorecp/rcs/internal/auth"
	"github.com/restorecp/rcs/internal/jobsvc"
	"github.com/restorecp/rcs/internal/plan"
	"github.com/restorecp/rcs/internal/rcserr"
	"github.com/restorecp/rcs/internal/snapshot"
	"github.com/restorecp/rcs/internal/telemetry"
)

// Service implements the ExecutionService.
type Service struct {
	store                      snapshot.Store
	plans                      *plan.Service
	jobs                       *jobsvc.Service
	logger                     *slog.Logger
	limits                     CapabilityLimits
	defaultChunkSize           int
	defaultMaxChunksPerAttempt int
	defaultMaxRetryAttempts    int
	rateLimiter                *auth.RateLimiter // optional; nil disables rate limiting
}

// NewService wires an ExecutionService from its dependencies. rateLimiter
// may be nil, in which case executeJob is never throttled. The default
// max_chunks_per_attempt, used for requests that omit it (0 means
// unlimited), is set separately with WithDefaultMaxChunksPerAttempt.
func NewService(store snapshot.Store, plans *plan.Service, jobs *jobsvc.Service, logger *slog.Logger, limits CapabilityLimits, defaultChunkSize int, rateLimiter *auth.RateLimiter) *Service {
	if defaultChunkSize <= 0 {
		defaultChunkSize = 500
	}
	return &Service{store: store, plans: plans, jobs: jobs, logger: logger, limits: limits, defaultChunkSize: defaultChunkSize, defaultMaxRetryAttempts: 3, rateLimiter: rateLimiter}
}

// WithDefaultMaxChunksPerAttempt sets the chunk budget applied when a
// request omits max_chunks_per_attempt, and returns s for chaining.
func (s *Service) WithDefaultMaxChunksPerAttempt(n int) *Service {
	s.defaultMaxChunksPerAttempt = n
	return s
}

// WithDefaultMaxRetryAttempts sets the media retry budget applied to
// candidates that don't carry their own max_retry_attempts override, and
// returns s for chaining.
func (s *Service) WithDefaultMaxRetryAttempts(n int) *Service {
	if n > 0 {
		s.defaultMaxRetryAttempts = n
	}
	return s
}

func (s *Service) resolveMaxChunksPerAttempt(requested int) int {
	if requested > 0 {
		return requested
	}
	return s.defaultMaxChunksPerAttempt
}

// ExecuteJob admits and drives a fresh execution attempt for job_id.
func (s *Service) ExecuteJob(ctx context.Context, claims *auth.Claims, req ExecuteJobRequest) (*ExecutionRecord, error) {
	job, p, err := s.admitCommon(ctx, claims, req.JobID, jobsvc.StatusRunning)
	if err != nil {
		return nil, err
	}

	if s.rateLimiter != nil {
		subject := job.TenantID + "/" + job.InstanceID
		result, err := s.rateLimiter.Check(ctx, subject)
		if err != nil {
			return nil, rcserr.Internal("checking execute_job rate limit", err)
		}
		if !result.Allowed {
			return nil, rcserr.New(429, rcserr.ReasonBlockedRateLimited, fmt.Sprintf("execute_job rate limit exceeded, retry at %s", result.RetryAt.Format(time.RFC3339)))
		}
		// best-effort: a missed record only loosens the limit, never tightens it
		defer func() { _ = s.rateLimiter.Record(ctx, subject) }()
	}

	if err := validateRuntimeConflicts(req.RuntimeConflicts, p); err != nil {
		return nil, err
	}

	caps, overrideReasons, err := s.checkCapabilities(p, req.Capabilities, req.ElevatedConfirmation, len(req.RuntimeConflicts))
	if err != nil {
		return nil, err
	}

	planChk, err := planChecksum(p)
	if err != nil {
		return nil, rcserr.Internal("computing plan checksum", err)
	}
	preconditionChk, err := preconditionChecksum(p)
	if err != nil {
		return nil, rcserr.Internal("computing precondition checksum", err)
	}

	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = s.defaultChunkSize
	}

	now := time.Now().UTC()
	record := ExecutionRecord{
		JobID:                    job.JobID,
		TenantID:                 job.TenantID,
		InstanceID:               job.InstanceID,
		PlanID:                   job.PlanID,
		PlanHash:                 job.PlanHash,
		PlanChecksum:             planChk,
		PreconditionChecksum:     preconditionChk,
		Status:                   StatusRunning,
		ReasonCode:               rcserr.ReasonNone,
		ChunkSize:                chunkSize,
		WorkflowMode:             req.WorkflowMode,
		CapabilitiesUsed:         caps,
		ElevatedConfirmationUsed: len(overrideReasons) > 0,
		ResumeAttemptCount:       1,
		Checkpoint: Checkpoint{
			CheckpointID:    newID("chk", job.JobID, now),
			RowAttemptByRow: make(map[string]int),
			UpdatedAt:       now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	return s.run(ctx, claims, &record, p, req.RuntimeConflicts, s.resolveMaxChunksPerAttempt(req.MaxChunksPerAttempt), req.ExecutedBy)
}

// ResumeJob admits and continues a paused execution attempt for job_id.
func (s *Service) ResumeJob(ctx context.Context, claims *auth.Claims, req ResumeJobRequest) (*ExecutionRecord, error) {
	job, err := s.jobs.GetJob(ctx, claims, req.JobID)
	if err != nil {
		return nil, err
	}

	if job.Status == jobsvc.StatusCompleted || job.Status == jobsvc.StatusFailed {
		existing, err := s.GetExecution(ctx, claims, req.JobID)
		if err != nil {
			return nil, err
		}
		return existing, nil
	}

	if job.Status != jobsvc.StatusPaused {
		return nil, rcserr.New(409, rcserr.ReasonFailedPermissionConflict, "job is not paused")
	}

	p, err := s.plans.GetPlan(ctx, job.PlanID)
	if err != nil {
		return nil, err
	}
	if p.PlanHash != job.PlanHash {
		return nil, rcserr.New(409, rcserr.ReasonBlockedPlanHashMismatch, "plan_hash no longer matches the job")
	}
	if p.Gate.Executability != "executable" {
		return nil, rcserr.Blocked(p.Gate.ReasonCode, "plan is no longer in an executable state")
	}
	if err := requireConflictsResolved(p.Conflicts); err != nil {
		return nil, err
	}

	existing, err := s.GetExecution(ctx, claims, req.JobID)
	if err != nil {
		return nil, rcserr.New(409, rcserr.ReasonBlockedResumeCheckpointMissing, "no execution record to resume")
	}

	if err := validateRuntimeConflicts(req.RuntimeConflicts, p); err != nil {
		return nil, err
	}

	currentPlanChk, err := planChecksum(p)
	if err != nil {
		return nil, rcserr.Internal("computing plan checksum", err)
	}
	currentPreconditionChk, err := preconditionChecksum(p)
	if err != nil {
		return nil, rcserr.Internal("computing precondition checksum", err)
	}
	if req.ExpectedPlanChecksum != "" && (req.ExpectedPlanChecksum != currentPlanChk || req.ExpectedPlanChecksum != existing.PlanChecksum) {
		return nil, rcserr.New(409, rcserr.ReasonBlockedResumePreconditionMismatch, "expected_plan_checksum does not match current plan state")
	}
	if req.ExpectedPreconditionChecksum != "" && (req.ExpectedPreconditionChecksum != currentPreconditionChk || req.ExpectedPreconditionChecksum != existing.PreconditionChecksum) {
		return nil, rcserr.New(409, rcserr.ReasonBlockedResumePreconditionMismatch, "expected_precondition_checksum does not match current plan state")
	}
	if !grantedCapabilities(existing.CapabilitiesUsed, req.Capabilities) {
		return nil, rcserr.New(403, rcserr.ReasonBlockedMissingCapability, "resume request does not present the capabilities recorded on the execution")
	}

	if _, err := s.jobs.ResumePausedJob(ctx, req.JobID); err != nil {
		return nil, err
	}

	record := *existing
	record.Status = StatusRunning
	record.ReasonCode = rcserr.ReasonNone
	record.ResumeAttemptCount++

	return s.run(ctx, claims, &record, p, req.RuntimeConflicts, s.resolveMaxChunksPerAttempt(req.MaxChunksPerAttempt), req.ExecutedBy)
}

// admitCommon loads and validates job+plan for the given expected job
// status, scoped to claims.
func (s *Service) admitCommon(ctx context.Context, claims *auth.Claims, jobID string, expected jobsvc.Status) (*jobsvc.Job, *plan.DryRunPlan, error) {
	job, err := s.jobs.GetJob(ctx, claims, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != expected {
		return nil, nil, rcserr.New(409, rcserr.ReasonFailedPermissionConflict, fmt.Sprintf("job is not %s", expected))
	}
	p, err := s.plans.GetPlan(ctx, job.PlanID)
	if err != nil {
		return nil, nil, err
	}
	if p.PlanHash != job.PlanHash {
		return nil, nil, rcserr.New(409, rcserr.ReasonBlockedPlanHashMismatch, "plan_hash does not match the job")
	}
	if p.Gate.Executability != "executable" {
		return nil, nil, rcserr.Blocked(p.Gate.ReasonCode, "plan is not in an executable state")
	}
	if err := requireConflictsResolved(p.Conflicts); err != nil {
		return nil, nil, err
	}
	return job, p, nil
}

// requireConflictsResolved re-verifies, independently of the plan's own
// gate, that every conflict is resolved and none carries a blocking
// resolution/class. Gate and admission are evaluated against potentially
// different plan snapshots, so a plan that was executable when its gate was
// derived can still carry conflicts that must block execution now.
func requireConflictsResolved(conflicts []plan.Conflict) error {
	for _, c := range conflicts {
		if !c.IsResolved() {
			return rcserr.Blocked(rcserr.ReasonBlockedReferenceConflict, fmt.Sprintf("conflict %s is not resolved", c.ConflictID))
		}
		if c.Resolution == "abort_and_replan" || c.Class == plan.ConflictClassReference {
			return rcserr.Blocked(rcserr.ReasonBlockedReferenceConflict, fmt.Sprintf("conflict %s must be replanned before execution", c.ConflictID))
		}
	}
	return nil
}

func (s *Service) checkCapabilities(p *plan.DryRunPlan, granted []string, confirmation *ElevatedConfirmation, runtimeConflictRowCount int) ([]string, []string, error) {
	required, overrideReasons := requiredCapabilities(p, ExecuteJobRequest{}, runtimeConflictRowCount, s.limits)
	if hasOverrideCaps(required) && !validElevatedConfirmation(confirmation) {
		return nil, nil, rcserr.New(403, rcserr.ReasonBlockedMissingCapability,
			fmt.Sprintf("restore_override_caps required and no valid elevated_confirmation supplied: %v", overrideReasons))
	}
	if !grantedCapabilities(required, granted) {
		return nil, nil, rcserr.New(403, rcserr.ReasonBlockedMissingCapability, "request does not present all required capabilities")
	}
	return required, overrideReasons, nil
}

func validateRuntimeConflicts(conflicts []RuntimeConflict, p *plan.DryRunPlan) error {
	rowIDs := make(map[string]struct{}, len(p.Rows))
	for _, r := range p.Rows {
		rowIDs[r.RowID] = struct{}{}
	}
	seenConflict := make(map[string]struct{})
	seenRow := make(map[string]struct{})
	for _, c := range conflicts {
		if _, ok := rowIDs[c.RowID]; !ok {
			return rcserr.New(400, "invalid_request", fmt.Sprintf("runtime conflict row_id %s does not belong to the plan", c.RowID))
		}
		if _, ok := seenConflict[c.ConflictID]; ok {
			return rcserr.New(400, "invalid_request", fmt.Sprintf("duplicate conflict_id %s", c.ConflictID))
		}
		seenConflict[c.ConflictID] = struct{}{}
		if _, ok := seenRow[c.RowID]; ok {
			return rcserr.New(400, "invalid_request", fmt.Sprintf("duplicate row_id %s among runtime conflicts", c.RowID))
		}
		seenRow[c.RowID] = struct{}{}
		if c.Class == plan.ConflictClassReference && c.Resolution == "skip" {
			return rcserr.Blocked(rcserr.ReasonBlockedReferenceConflict, fmt.Sprintf("row %s: reference conflicts may not resolve to skip", c.RowID))
		}
	}
	return nil
}

// run drives chunked apply from the record's current checkpoint, pausing on
// chunk budget exhaustion and running the media pipeline on the attempt that
// completes the final chunk.
func (s *Service) run(ctx context.Context, claims *auth.Claims, record *ExecutionRecord, p *plan.DryRunPlan, runtimeConflicts []RuntimeConflict, maxChunksPerAttempt int, executedBy string) (*ExecutionRecord, error) {
	conflictByRow := make(map[string]RuntimeConflict, len(runtimeConflicts))
	for _, c := range runtimeConflicts {
		conflictByRow[c.RowID] = c
	}

	chunks := chunkRows(p.Rows, record.ChunkSize)
	record.Checkpoint.TotalChunks = len(chunks)

	processedThisAttempt := 0
	paused := false

	for idx := record.Checkpoint.NextChunkIndex; idx < len(chunks); idx++ {
		chunk := chunks[idx]
		chunkID := newID("chunk", fmt.Sprintf("%s-%d", record.JobID, idx), record.CreatedAt)

		mode := "normal"
		for _, r := range chunk {
			if _, ok := conflictByRow[r.RowID]; ok {
				mode = "row_fallback"
				break
			}
		}

		rowIDs := make([]string, 0, len(chunk))
		for _, r := range chunk {
			rowIDs = append(rowIDs, r.RowID)
			record.Checkpoint.RowAttemptByRow[r.RowID]++
			attempt := record.Checkpoint.RowAttemptByRow[r.RowID]

			outcome := applyRow(r, conflictByRow, chunkID, attempt)
			record.RowOutcomes = append(record.RowOutcomes, outcome)
			telemetry.RowOutcomesTotal.WithLabelValues(outcome.Outcome).Inc()

			if outcome.Outcome == "applied" && r.HasBeforeImageCandidate() {
				s.journal(ctx, record.JobID, r, chunkID, attempt, executedBy)
			}
		}

		record.Chunks = append(record.Chunks, ChunkRecord{ChunkID: chunkID, Index: idx, Mode: mode, RowIDs: rowIDs})
		telemetry.ChunksAppliedTotal.WithLabelValues(mode).Inc()
		record.Checkpoint.NextChunkIndex = idx + 1
		record.Checkpoint.LastChunkID = chunkID
		record.Checkpoint.UpdatedAt = time.Now().UTC()
		processedThisAttempt++

		if maxChunksPerAttempt > 0 && processedThisAttempt >= maxChunksPerAttempt && record.Checkpoint.NextChunkIndex < len(chunks) {
			paused = true
			break
		}
	}

	if paused {
		record.Status = StatusPaused
		record.ReasonCode = rcserr.ReasonPausedTokenRefreshGraceExhausted
		record.UpdatedAt = time.Now().UTC()
		if err := s.save(ctx, *record); err != nil {
			return nil, err
		}
		if _, err := s.jobs.PauseJob(ctx, claims, record.JobID, rcserr.ReasonPausedTokenRefreshGraceExhausted); err != nil {
			return nil, err
		}
		return record, nil
	}

	if len(record.MediaOutcomes) == 0 {
		record.MediaOutcomes = s.runMediaPipeline(p)
		for _, mo := range record.MediaOutcomes {
			telemetry.MediaOutcomesTotal.WithLabelValues(mo.Outcome).Inc()
		}
	}

	computeSummary(record)

	outcome := jobsvc.StatusCompleted
	record.Status = StatusCompleted
	record.ReasonCode = rcserr.ReasonNone
	if record.Summary.FailedRows > 0 || record.Summary.FailedMedia > 0 {
		outcome = jobsvc.StatusFailed
		record.Status = StatusFailed
		record.ReasonCode = rcserr.ReasonFailedInternalError
	}
	record.UpdatedAt = time.Now().UTC()

	if err := s.save(ctx, *record); err != nil {
		return nil, err
	}
	if _, _, err := s.jobs.CompleteJob(ctx, record.JobID, outcome, record.ReasonCode); err != nil {
		return nil, err
	}
	return record, nil
}

func applyRow(r plan.Row, conflictByRow map[string]RuntimeConflict, chunkID string, attempt int) RowOutcome {
	if c, ok := conflictByRow[r.RowID]; ok {
		return RowOutcome{RowID: r.RowID, ChunkID: chunkID, Outcome: "skipped", ReasonCode: c.ReasonCode, Resolution: "skip", Attempt: attempt}
	}
	if r.Action == "skip" {
		return RowOutcome{RowID: r.RowID, ChunkID: chunkID, Outcome: "skipped", ReasonCode: rcserr.ReasonNone, Attempt: attempt}
	}
	return RowOutcome{RowID: r.RowID, ChunkID: chunkID, Outcome: "applied", ReasonCode: rcserr.ReasonNone, Attempt: attempt}
}

func (s *Service) journal(ctx context.Context, jobID string, r plan.Row, chunkID string, attempt int, executedBy string) {
	now := time.Now().UTC()
	journalID := hashJoin(jobID, r.RowID, fmt.Sprintf("%d", attempt))
	entry := RollbackJournalEntry{
		JournalID:      journalID,
		JobID:          jobID,
		PlanRowID:      r.RowID,
		Table:          r.Table,
		RecordSysID:    r.RecordSysID,
		Action:         r.Action,
		BeforeImageEnc: r.BeforeImageEnc,
		ChunkID:        chunkID,
		RowAttempt:     attempt,
		ExecutedBy:     executedBy,
		ExecutedAt:     now,
	}
	mirror := MirrorEntry{
		MirrorID:    hashJoin(journalID),
		JournalID:   journalID,
		JobID:       jobID,
		PlanRowID:   r.RowID,
		Table:       r.Table,
		RecordSysID: r.RecordSysID,
		Action:      r.Action,
		Outcome:     "applied",
		ReasonCode:  rcserr.ReasonNone,
		LinkedAt:    now,
	}
	err := snapshot.MutateTyped(ctx, s.store, snapshot.KeyExecutionState, func(doc *stateDoc) error {
		if doc.Journal == nil {
			doc.Journal = make(map[string][]RollbackJournalEntry)
		}
		if doc.Mirror == nil {
			doc.Mirror = make(map[string][]MirrorEntry)
		}
		doc.Journal[jobID] = append(doc.Journal[jobID], entry)
		doc.Mirror[jobID] = append(doc.Mirror[jobID], mirror)
		return nil
	})
	if err != nil {
		s.logger.Error("writing rollback journal entry", "error", err, "job_id", jobID, "row_id", r.RowID)
	}
}

// runMediaPipeline processes every media candidate on the plan, simulating
// an idempotent-per-item effector that succeeds on its first attempt unless
// the candidate's own preconditions (parent existence, hash match) fail, or
// retries it up to its retry budget when it carries simulated transient
// failures.
func (s *Service) runMediaPipeline(p *plan.DryRunPlan) []MediaOutcome {
	out := make([]MediaOutcome, 0, len(p.MediaCandidates))
	for _, m := range p.MediaCandidates {
		switch {
		case m.Decision == "exclude":
			out = append(out, MediaOutcome{CandidateID: m.CandidateID, RowID: m.RowID, Outcome: "skipped", ReasonCode: rcserr.ReasonNone})
		case m.Decision == "include" && !m.ParentRecordExists:
			out = append(out, MediaOutcome{CandidateID: m.CandidateID, RowID: m.RowID, Outcome: "failed", ReasonCode: rcserr.ReasonFailedMediaParentMissing})
		case m.Decision == "include" && m.ExpectedHash != "" && m.ObservedHash != "" && m.ExpectedHash != m.ObservedHash:
			out = append(out, MediaOutcome{CandidateID: m.CandidateID, RowID: m.RowID, Outcome: "failed", ReasonCode: rcserr.ReasonFailedMediaHashMismatch})
		case m.Decision == "include":
			out = append(out, s.applyMediaWithRetry(m))
		}
	}
	return out
}

// applyMediaWithRetry simulates up to the candidate's retry budget (its own
// max_retry_attempts override, falling back to defaultMaxRetryAttempts),
// decrementing retryable_failures on each attempt. It yields applied once
// the simulated failures run out, or failed_media_retry_exhausted once the
// attempt budget does.
func (s *Service) applyMediaWithRetry(m plan.MediaCandidate) MediaOutcome {
	maxAttempts := s.defaultMaxRetryAttempts
	if m.MaxRetryAttempts != nil && *m.MaxRetryAttempts > 0 {
		maxAttempts = *m.MaxRetryAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	remaining := m.RetryableFailures
	attempts := 0
	for attempts < maxAttempts {
		attempts++
		if remaining == 0 {
			return MediaOutcome{CandidateID: m.CandidateID, RowID: m.RowID, Outcome: "applied", ReasonCode: rcserr.ReasonNone, Attempts: attempts}
		}
		remaining--
	}
	return MediaOutcome{CandidateID: m.CandidateID, RowID: m.RowID, Outcome: "failed", ReasonCode: rcserr.ReasonFailedMediaRetryExhausted, Attempts: attempts}
}

func computeSummary(record *ExecutionRecord) {
	var sum Summary
	sum.PlannedRows = len(record.RowOutcomes)
	for _, ro := range record.RowOutcomes {
		switch ro.Outcome {
		case "applied":
			sum.AppliedRows++
		case "skipped":
			sum.SkippedRows++
		case "failed":
			sum.FailedRows++
		}
	}
	for _, mo := range record.MediaOutcomes {
		switch mo.Outcome {
		case "applied":
			sum.AppliedMedia++
		case "skipped":
			sum.SkippedMedia++
		case "failed":
			sum.FailedMedia++
		}
	}
	record.Summary = sum
}

func chunkRows(rows []plan.Row, size int) [][]plan.Row {
	if size <= 0 {
		size = len(rows)
		if size == 0 {
			size = 1
		}
	}
	var chunks [][]plan.Row
	for i := 0; i < len(rows); i += size {
		end := i + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[i:end])
	}
	return chunks
}

// GetExecution returns the execution record for job_id, scoped to claims: an
// execution owned by a different tenant/instance is reported not found
// rather than forbidden, per I1.
func (s *Service) GetExecution(ctx context.Context, claims *auth.Claims, jobID string) (*ExecutionRecord, error) {
	doc, _, err := snapshot.ReadTyped[stateDoc](ctx, s.store, snapshot.KeyExecutionState)
	if err != nil {
		return nil, rcserr.Internal("reading execution state", err)
	}
	e, ok := doc.Executions[jobID]
	if !ok {
		return nil, rcserr.NotFound(fmt.Sprintf("execution for job %s not found", jobID))
	}
	if claims == nil || claims.TenantID != e.TenantID || claims.InstanceID != e.InstanceID {
		return nil, rcserr.NotFound(fmt.Sprintf("execution for job %s not found", jobID))
	}
	return &e, nil
}

// ListExecutions returns every execution scoped to tenant/instance, oldest first.
func (s *Service) ListExecutions(ctx context.Context, tenantID, instanceID string) ([]*ExecutionRecord, error) {
	doc, _, err := snapshot.ReadTyped[stateDoc](ctx, s.store, snapshot.KeyExecutionState)
	if err != nil {
		return nil, rcserr.Internal("reading execution state", err)
	}
	out := make([]*ExecutionRecord, 0)
	for _, e := range doc.Executions {
		if e.TenantID == tenantID && e.InstanceID == instanceID {
			ee := e
			out = append(out, &ee)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// GetCheckpoint returns the resume checkpoint for job_id.
func (s *Service) GetCheckpoint(ctx context.Context, claims *auth.Claims, jobID string) (*Checkpoint, error) {
	e, err := s.GetExecution(ctx, claims, jobID)
	if err != nil {
		return nil, err
	}
	return &e.Checkpoint, nil
}

// GetRollbackJournal returns the authoritative rollback journal entries for job_id.
func (s *Service) GetRollbackJournal(ctx context.Context, claims *auth.Claims, jobID string) ([]RollbackJournalEntry, error) {
	if _, err := s.GetExecution(ctx, claims, jobID); err != nil {
		return nil, err
	}
	doc, _, err := snapshot.ReadTyped[stateDoc](ctx, s.store, snapshot.KeyExecutionState)
	if err != nil {
		return nil, rcserr.Internal("reading execution state", err)
	}
	return doc.Journal[jobID], nil
}

func (s *Service) save(ctx context.Context, record ExecutionRecord) error {
	return snapshot.MutateTyped(ctx, s.store, snapshot.KeyExecutionState, func(doc *stateDoc) error {
		if doc.Executions == nil {
			doc.Executions = make(map[string]ExecutionRecord)
		}
		doc.Executions[record.JobID] = record
		return nil
	})
}

func newID(prefix, seed string, at time.Time) string {
	return prefix + "_" + hashJoin(seed, at.Format(time.RFC3339Nano))
}

func hashJoin(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte("|"))
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:24]
}
