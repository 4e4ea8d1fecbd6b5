package jobsvc

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/restorecp/rcs/internal/auth"
	"github.com/restorecp/rcs/internal/freshness"
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

func newHarness(t *testing.T) (*Service, *plan.Service, *scopelock.Manager) {
	t.Helper()
	store := snapshot.NewMemoryStore()
	registry := sourcing.NewRegistry([]sourcing.Mapping{
		{TenantID: "tenant-acme", InstanceID: "sn-dev-01", Source: "servicenow", AllowedServices: []string{"rrs"}},
	})
	resolver := &sourcing.Resolver{Registry: registry}
	reader := freshness.NewReader(fixedOracle{at: time.Now().UTC().Add(-10 * time.Second)}, nil, discardLogger(), 120*time.Second)
	plans := plan.NewService(store, resolver, reader)

	locks := scopelock.NewManager()
	projector := NewProjector(store, discardLogger())
	notifier := notify.New("", "", discardLogger())
	svc := NewService(store, plans, resolver, locks, projector, notifier, nil)
	return svc, plans, locks
}

func testClaims() *auth.Claims {
	return &auth.Claims{TenantID: "tenant-acme", InstanceID: "sn-dev-01", Source: "servicenow", ServiceScope: auth.ServiceScopeRRS}
}

func createTestPlan(t *testing.T, plans *plan.Service, planID string) *plan.DryRunPlan {
	t.Helper()
	claims := testClaims()
	p, err := plans.CreateDryRunPlan(context.Background(), claims, plan.CreateDryRunPlanRequest{
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
		Rows: []plan.Row{
			{RowID: "row-1", Table: "incident", RecordSysID: "sys-1", Action: "update", Topic: "incident", Partition: "0"},
		},
	})
	if err != nil {
		t.Fatalf("createTestPlan() error: %v", err)
	}
	return p
}

func TestCreateJob_NoOverlapRunsImmediately(t *testing.T) {
	svc, plans, _ := newHarness(t)
	p := createTestPlan(t, plans, "plan-1")

	j, err := svc.CreateJob(context.Background(), testClaims(), CreateJobRequest{
		TenantID: "tenant-acme", InstanceID: "sn-dev-01", Source: "servicenow", ServiceScope: "rrs",
		PlanID: p.PlanID, PlanHash: p.PlanHash, RequestedBy: "operator@example.com",
		LockScopeTables: []string{"incident"},
	})
	if err != nil {
		t.Fatalf("CreateJob() error: %v", err)
	}
	if j.Status != StatusRunning {
		t.Errorf("status = %s, want running", j.Status)
	}
}

func TestCreateJob_OverlappingScopeQueues(t *testing.T) {
	svc, plans, _ := newHarness(t)
	p1 := createTestPlan(t, plans, "plan-1")
	p2 := createTestPlan(t, plans, "plan-2")

	req := func(p *plan.DryRunPlan) CreateJobRequest {
		return CreateJobRequest{
			TenantID: "tenant-acme", InstanceID: "sn-dev-01", Source: "servicenow", ServiceScope: "rrs",
			PlanID: p.PlanID, PlanHash: p.PlanHash, RequestedBy: "operator@example.com",
			LockScopeTables: []string{"incident"},
		}
	}

	first, err := svc.CreateJob(context.Background(), testClaims(), req(p1))
	if err != nil {
		t.Fatalf("first CreateJob() error: %v", err)
	}
	second, err := svc.CreateJob(context.Background(), testClaims(), req(p2))
	if err != nil {
		t.Fatalf("second CreateJob() error: %v", err)
	}
	if first.Status != StatusRunning {
		t.Errorf("first status = %s, want running", first.Status)
	}
	if second.Status != StatusQueued {
		t.Errorf("second status = %s, want queued", second.Status)
	}
}

func TestCompleteJob_PromotesQueuedJob(t *testing.T) {
	svc, plans, _ := newHarness(t)
	p1 := createTestPlan(t, plans, "plan-1")
	p2 := createTestPlan(t, plans, "plan-2")

	req := func(p *plan.DryRunPlan) CreateJobRequest {
		return CreateJobRequest{
			TenantID: "tenant-acme", InstanceID: "sn-dev-01", Source: "servicenow", ServiceScope: "rrs",
			PlanID: p.PlanID, PlanHash: p.PlanHash, RequestedBy: "operator@example.com",
			LockScopeTables: []string{"incident"},
		}
	}

	first, _ := svc.CreateJob(context.Background(), testClaims(), req(p1))
	second, _ := svc.CreateJob(context.Background(), testClaims(), req(p2))

	_, promoted, err := svc.CompleteJob(context.Background(), first.JobID, StatusCompleted, "none")
	if err != nil {
		t.Fatalf("CompleteJob() error: %v", err)
	}
	if len(promoted) != 1 || promoted[0] != second.JobID {
		t.Errorf("promoted = %v, want [%s]", promoted, second.JobID)
	}

	updated, err := svc.GetJob(context.Background(), testClaims(), second.JobID)
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if updated.Status != StatusRunning {
		t.Errorf("promoted job status = %s, want running", updated.Status)
	}
}

func TestPauseThenResumeJob(t *testing.T) {
	svc, plans, _ := newHarness(t)
	p := createTestPlan(t, plans, "plan-1")
	job, _ := svc.CreateJob(context.Background(), testClaims(), CreateJobRequest{
		TenantID: "tenant-acme", InstanceID: "sn-dev-01", Source: "servicenow", ServiceScope: "rrs",
		PlanID: p.PlanID, PlanHash: p.PlanHash, RequestedBy: "operator@example.com",
		LockScopeTables: []string{"incident"},
	})

	paused, err := svc.PauseJob(context.Background(), testClaims(), job.JobID, "paused_token_refresh_grace_exhausted")
	if err != nil {
		t.Fatalf("PauseJob() error: %v", err)
	}
	if paused.Status != StatusPaused {
		t.Errorf("status = %s, want paused", paused.Status)
	}

	resumed, err := svc.ResumePausedJob(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("ResumePausedJob() error: %v", err)
	}
	if resumed.Status != StatusRunning {
		t.Errorf("status = %s, want running", resumed.Status)
	}
}
