package execution

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/restorecp/rcs/internal/auth"
	"github.com/restorecp/rcs/internal/freshness"
	"github.com/restorecp/rcs/internal/jobsvc"
	"github.com/restorecp/rcs/internal/notify"
	"github.com/restorecp/rcs/internal/plan"
	"github.com/restorecp/rcs/internal/scopelock"
	"github.com/restorecp/rcs/internal/snapshot"
	"github.com/restorecp/rcs/internal/sourcing"
)

type fixedOracle struct{ at time.Time }

func (f fixedOracle) ReadIndexedThrough(_ context.Context, _, _, _ string, partitions []freshness.PartitionKey) (map[freshness.PartitionKey]freshness.OracleRecord, error) {
	out := make(map[freshness.PartitionKey]freshness.OracleRecord, len(partitions))
	for _, p := range partitions {
		out[p] = freshness.OracleRecord{IndexedThroughTime: f.at}
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultLimits() CapabilityLimits {
	return CapabilityLimits{MaxRows: 10000, ElevatedSkipRatioPercent: 100, MediaMaxItems: 500, MediaMaxBytes: 5 << 30}
}

type harness struct {
	exec  *Service
	plans *plan.Service
	jobs  *jobsvc.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := snapshot.NewMemoryStore()
	registry := sourcing.NewRegistry([]sourcing.Mapping{
		{TenantID: "tenant-acme", InstanceID: "sn-dev-01", Source: "servicenow", AllowedServices: []string{"rrs"}},
	})
	resolver := &sourcing.Resolver{Registry: registry}
	reader := freshness.NewReader(fixedOracle{at: time.Now().UTC().Add(-10 * time.Second)}, nil, discardLogger(), 120*time.Second)
	plans := plan.NewService(store, resolver, reader)

	locks := scopelock.NewManager()
	projector := jobsvc.NewProjector(store, discardLogger())
	notifier := notify.New("", "", discardLogger())
	jobs := jobsvc.NewService(store, plans, resolver, locks, projector, notifier, nil)

	exec := NewService(store, plans, jobs, discardLogger(), defaultLimits(), 2, nil)
	return &harness{exec: exec, plans: plans, jobs: jobs}
}

func testClaims() *auth.Claims {
	return &auth.Claims{TenantID: "tenant-acme", InstanceID: "sn-dev-01", Source: "servicenow", ServiceScope: auth.ServiceScopeRRS}
}

func (h *harness) createPlan(t *testing.T, planID string, rows []plan.Row) *plan.DryRunPlan {
	t.Helper()
	claims := testClaims()
	p, err := h.plans.CreateDryRunPlan(context.Background(), claims, plan.CreateDryRunPlanRequest{
		TenantID:    "tenant-acme",
		InstanceID:  "sn-dev-01",
		Source:      "servicenow",
		PlanID:      planID,
		RequestedBy: "operator@example.com",
		PIT: plan.PIT{
			RestoreTime:         time.Now().UTC(),
			RestoreTimezone:     "UTC",
			PitAlgorithmVersion: "v1",
		},
		Scope: plan.Scope{Mode: "tables", Tables: []string{"incident"}},
		Rows:  rows,
	})
	if err != nil {
		t.Fatalf("createPlan() error: %v", err)
	}
	return p
}

func (h *harness) createJob(t *testing.T, p *plan.DryRunPlan) *jobsvc.Job {
	t.Helper()
	j, err := h.jobs.CreateJob(context.Background(), testClaims(), jobsvc.CreateJobRequest{
		TenantID: "tenant-acme", InstanceID: "sn-dev-01", Source: "servicenow", ServiceScope: "rrs",
		PlanID: p.PlanID, PlanHash: p.PlanHash, RequestedBy: "operator@example.com",
		LockScopeTables: []string{"incident"},
	})
	if err != nil {
		t.Fatalf("createJob() error: %v", err)
	}
	return j
}

func threeRows() []plan.Row {
	return []plan.Row{
		{RowID: "row-1", Table: "incident", RecordSysID: "sys-1", Action: "update", Topic: "incident", Partition: "0", BeforeImageEnc: "enc-1"},
		{RowID: "row-2", Table: "incident", RecordSysID: "sys-2", Action: "update", Topic: "incident", Partition: "0"},
		{RowID: "row-3", Table: "incident", RecordSysID: "sys-3", Action: "skip", Topic: "incident", Partition: "0"},
	}
}

func TestExecuteJob_CompletesAndWritesJournalForBeforeImages(t *testing.T) {
	h := newHarness(t)
	p := h.createPlan(t, "plan-1", threeRows())
	j := h.createJob(t, p)

	rec, err := h.exec.ExecuteJob(context.Background(), testClaims(), ExecuteJobRequest{
		JobID: j.JobID, ExecutedBy: "operator@example.com",
		Capabilities: []string{CapabilityExecute},
	})
	if err != nil {
		t.Fatalf("ExecuteJob() error: %v", err)
	}
	if rec.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", rec.Status)
	}
	if rec.Summary.AppliedRows != 2 || rec.Summary.SkippedRows != 1 {
		t.Errorf("summary = %+v, want applied=2 skipped=1", rec.Summary)
	}

	journal, err := h.exec.GetRollbackJournal(context.Background(), testClaims(), j.JobID)
	if err != nil {
		t.Fatalf("GetRollbackJournal() error: %v", err)
	}
	if len(journal) != 1 || journal[0].PlanRowID != "row-1" {
		t.Errorf("journal = %+v, want exactly one entry for row-1", journal)
	}

	finalJob, err := h.jobs.GetJob(context.Background(), testClaims(), j.JobID)
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if finalJob.Status != jobsvc.StatusCompleted {
		t.Errorf("job status = %s, want completed", finalJob.Status)
	}
}

func TestExecuteJob_PausesOnChunkBudgetAndResumeContinues(t *testing.T) {
	h := newHarness(t)
	rows := []plan.Row{
		{RowID: "row-1", Table: "incident", RecordSysID: "sys-1", Action: "update", Topic: "incident", Partition: "0"},
		{RowID: "row-2", Table: "incident", RecordSysID: "sys-2", Action: "update", Topic: "incident", Partition: "0"},
		{RowID: "row-3", Table: "incident", RecordSysID: "sys-3", Action: "update", Topic: "incident", Partition: "0"},
		{RowID: "row-4", Table: "incident", RecordSysID: "sys-4", Action: "update", Topic: "incident", Partition: "0"},
	}
	p := h.createPlan(t, "plan-1", rows)
	j := h.createJob(t, p)

	rec, err := h.exec.ExecuteJob(context.Background(), testClaims(), ExecuteJobRequest{
		JobID: j.JobID, ExecutedBy: "operator@example.com",
		MaxChunksPerAttempt: 1,
		Capabilities:        []string{CapabilityExecute},
	})
	if err != nil {
		t.Fatalf("ExecuteJob() error: %v", err)
	}
	if rec.Status != StatusPaused {
		t.Fatalf("status = %s, want paused", rec.Status)
	}
	if rec.Checkpoint.NextChunkIndex != 1 {
		t.Errorf("next_chunk_index = %d, want 1", rec.Checkpoint.NextChunkIndex)
	}

	pausedJob, err := h.jobs.GetJob(context.Background(), testClaims(), j.JobID)
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if pausedJob.Status != jobsvc.StatusPaused {
		t.Fatalf("job status = %s, want paused", pausedJob.Status)
	}

	resumed, err := h.exec.ResumeJob(context.Background(), testClaims(), ResumeJobRequest{
		JobID: j.JobID, ExecutedBy: "operator@example.com",
		Capabilities: []string{CapabilityExecute},
	})
	if err != nil {
		t.Fatalf("ResumeJob() error: %v", err)
	}
	if resumed.Status != StatusCompleted {
		t.Fatalf("resumed status = %s, want completed", resumed.Status)
	}
	if resumed.ResumeAttemptCount != 2 {
		t.Errorf("resume_attempt_count = %d, want 2", resumed.ResumeAttemptCount)
	}
	if resumed.Summary.AppliedRows != 4 {
		t.Errorf("applied_rows = %d, want 4", resumed.Summary.AppliedRows)
	}
}

func TestResumeJob_IdempotentAfterCompletion(t *testing.T) {
	h := newHarness(t)
	p := h.createPlan(t, "plan-1", threeRows())
	j := h.createJob(t, p)

	first, err := h.exec.ExecuteJob(context.Background(), testClaims(), ExecuteJobRequest{
		JobID: j.JobID, ExecutedBy: "operator@example.com",
		Capabilities: []string{CapabilityExecute},
	})
	if err != nil {
		t.Fatalf("ExecuteJob() error: %v", err)
	}

	second, err := h.exec.ResumeJob(context.Background(), testClaims(), ResumeJobRequest{
		JobID: j.JobID, ExecutedBy: "operator@example.com",
		Capabilities: []string{CapabilityExecute},
	})
	if err != nil {
		t.Fatalf("ResumeJob() on terminal job error: %v", err)
	}
	if second.ResumeAttemptCount != first.ResumeAttemptCount {
		t.Errorf("resume_attempt_count changed on idempotent replay: %d -> %d", first.ResumeAttemptCount, second.ResumeAttemptCount)
	}
}

func TestExecuteJob_RuntimeConflictUsesRowFallback(t *testing.T) {
	h := newHarness(t)
	p := h.createPlan(t, "plan-1", threeRows())
	j := h.createJob(t, p)

	rec, err := h.exec.ExecuteJob(context.Background(), testClaims(), ExecuteJobRequest{
		JobID: j.JobID, ExecutedBy: "operator@example.com",
		Capabilities: []string{CapabilityExecute},
		RuntimeConflicts: []RuntimeConflict{
			{ConflictID: "conf-1", RowID: "row-1", Class: plan.ConflictClassValue, Resolution: "skip", ReasonCode: "stale_value"},
		},
	})
	if err != nil {
		t.Fatalf("ExecuteJob() error: %v", err)
	}
	if rec.Chunks[0].Mode != "row_fallback" {
		t.Errorf("chunk 0 mode = %s, want row_fallback", rec.Chunks[0].Mode)
	}
	var row1Outcome *RowOutcome
	for i := range rec.RowOutcomes {
		if rec.RowOutcomes[i].RowID == "row-1" {
			row1Outcome = &rec.RowOutcomes[i]
		}
	}
	if row1Outcome == nil || row1Outcome.Outcome != "skipped" || row1Outcome.ReasonCode != "stale_value" {
		t.Errorf("row-1 outcome = %+v, want skipped/stale_value", row1Outcome)
	}
}

func TestExecuteJob_ReferenceConflictMayNotResolveToSkip(t *testing.T) {
	h := newHarness(t)
	p := h.createPlan(t, "plan-1", threeRows())
	j := h.createJob(t, p)

	_, err := h.exec.ExecuteJob(context.Background(), testClaims(), ExecuteJobRequest{
		JobID: j.JobID, ExecutedBy: "operator@example.com",
		Capabilities: []string{CapabilityExecute},
		RuntimeConflicts: []RuntimeConflict{
			{ConflictID: "conf-1", RowID: "row-1", Class: plan.ConflictClassReference, Resolution: "skip"},
		},
	})
	if err == nil {
		t.Fatal("ExecuteJob() want error for reference conflict resolved to skip")
	}
}

func TestExecuteJob_MissingCapabilityBlocked(t *testing.T) {
	h := newHarness(t)
	rows := []plan.Row{
		{RowID: "row-1", Table: "incident", RecordSysID: "sys-1", Action: "delete", Topic: "incident", Partition: "0"},
	}
	p := h.createPlan(t, "plan-1", rows)
	j := h.createJob(t, p)

	_, err := h.exec.ExecuteJob(context.Background(), testClaims(), ExecuteJobRequest{
		JobID: j.JobID, ExecutedBy: "operator@example.com",
		Capabilities: []string{CapabilityExecute},
	})
	if err == nil {
		t.Fatal("ExecuteJob() want error when restore_delete is required but not granted")
	}
}

func TestExecuteJob_MediaPipelineOutcomes(t *testing.T) {
	h := newHarness(t)
	claims := testClaims()
	p, err := h.plans.CreateDryRunPlan(context.Background(), claims, plan.CreateDryRunPlanRequest{
		TenantID: "tenant-acme", InstanceID: "sn-dev-01", Source: "servicenow",
		PlanID: "plan-1", RequestedBy: "operator@example.com",
		PIT:   plan.PIT{RestoreTime: time.Now().UTC(), RestoreTimezone: "UTC", PitAlgorithmVersion: "v1"},
		Scope: plan.Scope{Mode: "tables", Tables: []string{"incident"}},
		Rows: []plan.Row{
			{RowID: "row-1", Table: "incident", RecordSysID: "sys-1", Action: "update", Topic: "incident", Partition: "0"},
		},
		MediaCandidates: []plan.MediaCandidate{
			{CandidateID: "media-1", RowID: "row-1", Decision: "exclude"},
			{CandidateID: "media-2", RowID: "row-1", Decision: "include", ParentRecordExists: false},
			{CandidateID: "media-3", RowID: "row-1", Decision: "include", ParentRecordExists: true, ExpectedHash: "a", ObservedHash: "b"},
			{CandidateID: "media-4", RowID: "row-1", Decision: "include", ParentRecordExists: true, ExpectedHash: "a", ObservedHash: "a"},
		},
	})
	if err != nil {
		t.Fatalf("createPlan() error: %v", err)
	}
	j := h.createJob(t, p)

	rec, err := h.exec.ExecuteJob(context.Background(), testClaims(), ExecuteJobRequest{
		JobID: j.JobID, ExecutedBy: "operator@example.com",
		Capabilities: []string{CapabilityExecute},
	})
	if err != nil {
		t.Fatalf("ExecuteJob() error: %v", err)
	}
	if rec.Status != StatusFailed {
		t.Fatalf("status = %s, want failed (media-2/media-3 fail)", rec.Status)
	}
	want := map[string]string{"media-1": "skipped", "media-2": "failed", "media-3": "failed", "media-4": "applied"}
	for _, mo := range rec.MediaOutcomes {
		if want[mo.CandidateID] != mo.Outcome {
			t.Errorf("candidate %s outcome = %s, want %s", mo.CandidateID, mo.Outcome, want[mo.CandidateID])
		}
	}
}
