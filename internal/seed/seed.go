// Package seed provisions demo data for local development: a sample
// tenant/instance source mapping plus one dry-run plan and job taken
// through the full create-plan -> create-job -> execute -> export-evidence
// flow, so a fresh environment has something to poke at.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/restorecp/rcs/internal/auth"
	"github.com/restorecp/rcs/internal/evidence"
	"github.com/restorecp/rcs/internal/execution"
	"github.com/restorecp/rcs/internal/jobsvc"
	"github.com/restorecp/rcs/internal/plan"
	"github.com/restorecp/rcs/internal/sourcing"
)

// Services is the subset of the application's dependency graph RunDemo
// exercises. It mirrors the ones app.buildServices constructs, so callers
// typically just pass that same set straight through.
type Services struct {
	Registry  *sourcing.Registry
	Plans     *plan.Service
	Jobs      *jobsvc.Service
	Execution *execution.Service
	Evidence  *evidence.Service
}

const (
	demoTenantID   = "tenant-acme-demo"
	demoInstanceID = "sn-demo-01"
	demoSource     = "servicenow"
)

// RunDemo registers the demo source mapping and walks one dry-run plan
// through the full lifecycle: create, admit into a job, execute to
// completion, and export its evidence manifest.
func RunDemo(ctx context.Context, svcs Services, logger *slog.Logger) error {
	svcs.Registry.Put(sourcing.Mapping{
		TenantID:        demoTenantID,
		InstanceID:      demoInstanceID,
		Source:          demoSource,
		AllowedServices: []string{"rrs", "reg"},
	})
	logger.Info("seed-demo: registered source mapping", "tenant_id", demoTenantID, "instance_id", demoInstanceID)

	claims := &auth.Claims{
		TenantID:     demoTenantID,
		InstanceID:   demoInstanceID,
		Source:       demoSource,
		ServiceScope: auth.ServiceScopeRRS,
	}

	p, err := svcs.Plans.CreateDryRunPlan(ctx, claims, plan.CreateDryRunPlanRequest{
		TenantID:    demoTenantID,
		InstanceID:  demoInstanceID,
		Source:      demoSource,
		PlanID:      "plan-demo-001",
		RequestedBy: "demo-operator@example.com",
		PIT: plan.PIT{
			RestoreTime:         time.Now().UTC(),
			RestoreTimezone:     "UTC",
			PitAlgorithmVersion: "v1",
		},
		Scope: plan.Scope{Mode: "tables", Tables: []string{"incident", "sys_attachment"}},
		ExecutionOptions: plan.ExecutionOptions{
			MissingRowMode:          "skip",
			ConflictPolicy:          "manual_review",
			SchemaCompatibilityMode: "strict",
			WorkflowMode:            "standard",
		},
		Rows: []plan.Row{
			{
				RowID: "row-demo-1", Table: "incident", RecordSysID: "sys-demo-1",
				Action: "update", Topic: "cdc.servicenow.incident", Partition: "0",
				BeforeImageEnc: "ZGVtby1iZWZvcmU=", AfterImageEnc: "ZGVtby1hZnRlcg==",
			},
			{
				RowID: "row-demo-2", Table: "incident", RecordSysID: "sys-demo-2",
				Action: "insert", Topic: "cdc.servicenow.incident", Partition: "0",
				AfterImageEnc: "ZGVtby1uZXc=",
			},
		},
	})
	if err != nil {
		return fmt.Errorf("seed-demo: creating plan: %w", err)
	}
	logger.Info("seed-demo: created plan", "plan_id", p.PlanID, "plan_hash", p.PlanHash, "gate", p.Gate.Executability)

	if p.Gate.Executability != "executable" {
		logger.Warn("seed-demo: plan is not executable, stopping before job creation", "reason_code", p.Gate.ReasonCode)
		return nil
	}

	j, err := svcs.Jobs.CreateJob(ctx, claims, jobsvc.CreateJobRequest{
		TenantID:        demoTenantID,
		InstanceID:      demoInstanceID,
		Source:          demoSource,
		ServiceScope:    "rrs",
		PlanID:          p.PlanID,
		PlanHash:        p.PlanHash,
		RequestedBy:     "demo-operator@example.com",
		LockScopeTables: []string{"incident", "sys_attachment"},
	})
	if err != nil {
		return fmt.Errorf("seed-demo: creating job: %w", err)
	}
	logger.Info("seed-demo: created job", "job_id", j.JobID, "status", j.Status)

	if j.Status != jobsvc.StatusRunning {
		logger.Info("seed-demo: job queued behind an existing scope lock, stopping before execution", "status", j.Status)
		return nil
	}

	rec, err := svcs.Execution.ExecuteJob(ctx, claims, execution.ExecuteJobRequest{
		JobID:        j.JobID,
		ExecutedBy:   "demo-operator@example.com",
		Capabilities: []string{execution.CapabilityExecute},
	})
	if err != nil {
		return fmt.Errorf("seed-demo: executing job: %w", err)
	}
	logger.Info("seed-demo: executed job", "job_id", j.JobID, "status", rec.Status)

	if rec.Status != execution.StatusCompleted {
		logger.Info("seed-demo: execution did not complete, stopping before evidence export", "status", rec.Status)
		return nil
	}

	ev, reused, err := svcs.Evidence.EnsureEvidence(ctx, claims, j.JobID)
	if err != nil {
		return fmt.Errorf("seed-demo: exporting evidence: %w", err)
	}
	logger.Info("seed-demo: exported evidence", "evidence_id", ev.EvidenceID, "reused", reused, "signature_verification", ev.SignatureVerification)

	return nil
}
