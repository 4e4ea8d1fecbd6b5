package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/restorecp/rcs/internal/canon"
	"github.com/restorecp/rcs/internal/execution"
	"github.com/restorecp/rcs/internal/jobsvc"
	"github.com/restorecp/rcs/internal/plan"
)

// buildArtifacts canonicalizes and hashes the four manifest artifacts in
// alphabetical order by artifact_id.
func buildArtifacts(p *plan.DryRunPlan, rec *execution.ExecutionRecord, events []jobsvc.JobEvent, journal []execution.RollbackJournalEntry) ([]ArtifactHash, error) {
	named := map[string]any{
		"execution.json":        rec,
		"job-events.json":       events,
		"plan.json":             p,
		"rollback-journal.json": journal,
	}
	ids := make([]string, 0, len(named))
	for id := range named {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	hashes := make([]ArtifactHash, 0, len(ids))
	for _, id := range ids {
		cj, err := canon.JSON(named[id])
		if err != nil {
			return nil, fmt.Errorf("evidence: canonicalizing artifact %s: %w", id, err)
		}
		sum := sha256.Sum256([]byte(cj))
		hashes = append(hashes, ArtifactHash{
			ArtifactID:    id,
			SHA256:        hex.EncodeToString(sum[:]),
			ByteLength:    len(cj),
			CanonicalJSON: cj,
		})
	}
	return hashes, nil
}

func summarizeConflicts(conflicts []plan.Conflict) ConflictSummary {
	s := ConflictSummary{Total: len(conflicts)}
	for _, c := range conflicts {
		if c.IsResolved() {
			s.Resolved++
		} else {
			s.Unresolved++
		}
	}
	return s
}

func summarizeDeleteDecisions(candidates []plan.DeleteCandidate) DeleteDecisionSummary {
	s := DeleteDecisionSummary{Total: len(candidates)}
	for _, d := range candidates {
		switch d.Decision {
		case "allow_deletion":
			s.AllowedDeletion++
		case "exclude":
			s.Excluded++
		default:
			s.Undecided++
		}
	}
	return s
}

func summarizeExecutionOutcomes(rec *execution.ExecutionRecord) ExecutionOutcomesSummary {
	return ExecutionOutcomesSummary{
		Status:       string(rec.Status),
		PlannedRows:  rec.Summary.PlannedRows,
		AppliedRows:  rec.Summary.AppliedRows,
		SkippedRows:  rec.Summary.SkippedRows,
		FailedRows:   rec.Summary.FailedRows,
		AppliedMedia: rec.Summary.AppliedMedia,
		SkippedMedia: rec.Summary.SkippedMedia,
		FailedMedia:  rec.Summary.FailedMedia,
	}
}

// buildReportHashInput assembles the exact struct report_hash is computed
// over, with artifact_hashes already sorted by artifact_id (buildArtifacts
// produces them in that order).
func buildReportHashInput(evidenceID string, p *plan.DryRunPlan, rec *execution.ExecutionRecord, artifacts []ArtifactHash) reportHashInput {
	return reportHashInput{
		ContractVersion:     "evidence.report.v1",
		EvidenceID:          evidenceID,
		JobID:               rec.JobID,
		PlanHash:            p.PlanHash,
		PitAlgorithmVersion: p.PlanHashInput.PIT.PitAlgorithmVersion,
		BackupTimestamp:     p.PlanHashInput.PIT.RestoreTime,
		ApprovedScope:       ApprovedScope{Mode: p.PlanHashInput.Scope.Mode, Tables: p.PlanHashInput.Scope.Tables},
		SchemaDriftSummary: SchemaDriftSummary{
			SchemaCompatibilityMode: p.ExecutionOptions.SchemaCompatibilityMode,
			OverrideUsed:            p.ExecutionOptions.SchemaCompatibilityMode == "manual_override",
		},
		ConflictSummary:       summarizeConflicts(p.Conflicts),
		DeleteDecisionSummary: summarizeDeleteDecisions(p.DeleteCandidates),
		ExecutionOutcomes:     summarizeExecutionOutcomes(rec),
		ResumeMetadata: ResumeMetadata{
			ResumeAttemptCount: rec.ResumeAttemptCount,
			FinalReasonCode:    rec.ReasonCode,
		},
		ArtifactHashes:          artifacts,
		CanonicalizationVersion: canonicalizationVersion,
		ImmutableStorage:        true,
		Approval: ApprovalView{
			Required: p.Approval.Required,
			Approved: p.Approval.Approved,
			By:       p.Approval.By,
		},
	}
}
