package evidence

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/restorecp/rcs/internal/auth"
	"github.com/restorecp/rcs/internal/execution"
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

func testSigner(t *testing.T) *Signer {
	t.Helper()
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("generating test seed: %v", err)
	}
	signer, err := NewSigner(hex.EncodeToString(seed))
	if err != nil {
		t.Fatalf("NewSigner() error: %v", err)
	}
	return signer
}

type harness struct {
	evidence *Service
	plans    *plan.Service
	jobs     *jobsvc.Service
	exec     *execution.Service
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

	limits := execution.CapabilityLimits{MaxRows: 10000, ElevatedSkipRatioPercent: 20, MediaMaxItems: 500, MediaMaxBytes: 5 << 30}
	exec := execution.NewService(store, plans, jobs, discardLogger(), limits, 10, nil)

	ev := NewService(store, plans, jobs, exec, testSigner(t), notifier)
	return &harness{evidence: ev, plans: plans, jobs: jobs, exec: exec}
}

func testClaims() *auth.Claims {
	return &auth.Claims{TenantID: "tenant-acme", InstanceID: "sn-dev-01", Source: "servicenow", ServiceScope: auth.ServiceScopeRRS}
}

func (h *harness) runToCompletion(t *testing.T) *jobsvc.Job {
	t.Helper()
	claims := testClaims()
	p, err := h.plans.CreateDryRunPlan(context.Background(), claims, plan.CreateDryRunPlanRequest{
		TenantID: "tenant-acme", InstanceID: "sn-dev-01", Source: "servicenow",
		PlanID: "plan-1", RequestedBy: "operator@example.com",
		PIT:   plan.PIT{RestoreTime: time.Now().UTC(), RestoreTimezone: "UTC", PitAlgorithmVersion: "v1"},
		Scope: plan.Scope{Mode: "tables", Tables: []string{"incident"}},
		Rows: []plan.Row{
			{RowID: "row-1", Table: "incident", RecordSysID: "sys-1", Action: "update", Topic: "incident", Partition: "0"},
		},
	})
	if err != nil {
		t.Fatalf("createPlan() error: %v", err)
	}
	j, err := h.jobs.CreateJob(context.Background(), claims, jobsvc.CreateJobRequest{
		TenantID: "tenant-acme", InstanceID: "sn-dev-01", Source: "servicenow", ServiceScope: "rrs",
		PlanID: p.PlanID, PlanHash: p.PlanHash, RequestedBy: "operator@example.com",
		LockScopeTables: []string{"incident"},
	})
	if err != nil {
		t.Fatalf("createJob() error: %v", err)
	}
	if _, err := h.exec.ExecuteJob(context.Background(), claims, execution.ExecuteJobRequest{
		JobID: j.JobID, ExecutedBy: "operator@example.com",
		Capabilities: []string{execution.CapabilityExecute},
	}); err != nil {
		t.Fatalf("ExecuteJob() error: %v", err)
	}
	finalJob, err := h.jobs.GetJob(context.Background(), claims, j.JobID)
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	return finalJob
}

func TestExportEvidence_ProducesVerifiableRecord(t *testing.T) {
	h := newHarness(t)
	j := h.runToCompletion(t)

	rec, err := h.evidence.ExportEvidence(context.Background(), testClaims(), j.JobID)
	if err != nil {
		t.Fatalf("ExportEvidence() error: %v", err)
	}
	if rec.SignatureVerification != VerificationVerified {
		t.Fatalf("signature_verification = %s, want verified", rec.SignatureVerification)
	}

	result := h.evidence.ValidateEvidenceRecord(rec)
	if result.Result != VerificationVerified {
		t.Errorf("ValidateEvidenceRecord() = %+v, want verified", result)
	}
}

func TestEnsureEvidence_ReusesExistingRecord(t *testing.T) {
	h := newHarness(t)
	j := h.runToCompletion(t)

	first, reused, err := h.evidence.EnsureEvidence(context.Background(), testClaims(), j.JobID)
	if err != nil {
		t.Fatalf("EnsureEvidence() first call error: %v", err)
	}
	if reused {
		t.Fatal("first EnsureEvidence() call reported reused=true")
	}

	second, reused, err := h.evidence.EnsureEvidence(context.Background(), testClaims(), j.JobID)
	if err != nil {
		t.Fatalf("EnsureEvidence() second call error: %v", err)
	}
	if !reused {
		t.Fatal("second EnsureEvidence() call reported reused=false")
	}
	if second.EvidenceID != first.EvidenceID {
		t.Errorf("evidence_id changed across reuse: %s -> %s", first.EvidenceID, second.EvidenceID)
	}
}

func TestValidateEvidenceRecord_DetectsArtifactTamper(t *testing.T) {
	h := newHarness(t)
	j := h.runToCompletion(t)

	rec, err := h.evidence.ExportEvidence(context.Background(), testClaims(), j.JobID)
	if err != nil {
		t.Fatalf("ExportEvidence() error: %v", err)
	}

	tampered := *rec
	tampered.ArtifactHashes = append([]ArtifactHash(nil), rec.ArtifactHashes...)
	tampered.ArtifactHashes[0].CanonicalJSON = tampered.ArtifactHashes[0].CanonicalJSON + " "

	result := h.evidence.ValidateEvidenceRecord(&tampered)
	if result.Result != VerificationFailed || result.ReasonCode != "failed_evidence_artifact_hash_mismatch" {
		t.Errorf("ValidateEvidenceRecord() = %+v, want artifact hash mismatch", result)
	}
}

func TestValidateEvidenceRecord_DetectsSignatureTamper(t *testing.T) {
	h := newHarness(t)
	j := h.runToCompletion(t)

	rec, err := h.evidence.ExportEvidence(context.Background(), testClaims(), j.JobID)
	if err != nil {
		t.Fatalf("ExportEvidence() error: %v", err)
	}

	tampered := *rec
	tampered.Signature = "AAAA"

	result := h.evidence.ValidateEvidenceRecord(&tampered)
	if result.Result != VerificationFailed || result.ReasonCode != "failed_evidence_signature_verification" {
		t.Errorf("ValidateEvidenceRecord() = %+v, want signature verification failure", result)
	}
}

func TestExportEvidence_FailsBeforeExecutionExists(t *testing.T) {
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
	})
	if err != nil {
		t.Fatalf("createPlan() error: %v", err)
	}
	j, err := h.jobs.CreateJob(context.Background(), claims, jobsvc.CreateJobRequest{
		TenantID: "tenant-acme", InstanceID: "sn-dev-01", Source: "servicenow", ServiceScope: "rrs",
		PlanID: p.PlanID, PlanHash: p.PlanHash, RequestedBy: "operator@example.com",
		LockScopeTables: []string{"incident"},
	})
	if err != nil {
		t.Fatalf("createJob() error: %v", err)
	}

	_, err = h.evidence.ExportEvidence(context.Background(), claims, j.JobID)
	if err == nil {
		t.Fatal("ExportEvidence() want error before any execution exists")
	}
}
