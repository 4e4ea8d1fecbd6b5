package jobsvc

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/restorecp/rcs/internal/auth"
	"github.com/restorecp/rcs/internal/notify"
	"github.com/restorecp/rcs/internal/plan"
	"github.com/restorecp/rcs/internal/rcserr"
	"github.com/restorecp/rcs/internal/scopelock"
	"github.com/restorecp/rcs/internal/snapshot"
	"github.com/restorecp/rcs/internal/sourcing"
	"github.com/restorecp/rcs/internal/telemetry"
)

// Service implements the JobService.
type Service struct {
	store       snapshot.Store
	plans       *plan.Service
	resolver    *sourcing.Resolver
	locks       *scopelock.Manager
	projector   *Projector
	notifier    *notify.Notifier
	rateLimiter *auth.RateLimiter // optional; nil disables rate limiting
}

// NewService wires a JobService from its dependencies. rateLimiter may be
// nil, in which case createJob is never throttled.
func NewService(store snapshot.Store, plans *plan.Service, resolver *sourcing.Resolver, locks *scopelock.Manager, projector *Projector, notifier *notify.Notifier, rateLimiter *auth.RateLimiter) *Service {
	return &Service{store: store, plans: plans, resolver: resolver, locks: locks, projector: projector, notifier: notifier, rateLimiter: rateLimiter}
}

// CreateJob admits a job against its plan's gate, acquires (or queues for)
// the scope lock, and persists the resulting Job in status running or
// queued.
func (s *Service) CreateJob(ctx context.Context, claims *auth.Claims, req CreateJobRequest) (*Job, error) {
	if err := requireClaimsOwnership(claims, req.TenantID, req.InstanceID, fmt.Sprintf("plan %s not found", req.PlanID)); err != nil {
		return nil, err
	}

	if s.rateLimiter != nil {
		subject := req.TenantID + "/" + req.InstanceID
		result, err := s.rateLimiter.Check(ctx, subject)
		if err != nil {
			return nil, rcserr.Internal("checking create_job rate limit", err)
		}
		if !result.Allowed {
			return nil, rcserr.New(429, rcserr.ReasonBlockedRateLimited, fmt.Sprintf("create_job rate limit exceeded, retry at %s", result.RetryAt.Format(time.RFC3339)))
		}
		// best-effort: a missed record only loosens the limit, never tightens it
		defer func() { _ = s.rateLimiter.Record(ctx, subject) }()
	}

	if _, err := s.resolver.ResolveEffectiveSource(ctx, req.TenantID, req.InstanceID, req.Source, req.ServiceScope); err != nil {
		return nil, err
	}

	p, err := s.plans.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if p.TenantID != req.TenantID || p.InstanceID != req.InstanceID {
		return nil, rcserr.NotFound(fmt.Sprintf("plan %s not found", req.PlanID))
	}
	if p.PlanHash != req.PlanHash {
		return nil, rcserr.New(409, rcserr.ReasonBlockedPlanHashMismatch, "plan_hash does not match the stored plan")
	}
	if p.Gate.Executability != "executable" {
		return nil, rcserr.Blocked(p.Gate.ReasonCode, "plan is not in an executable state")
	}

	jobID, err := newJobID(req.TenantID, req.InstanceID, req.PlanID)
	if err != nil {
		return nil, rcserr.Internal("generating job id", err)
	}

	scopeKey := scopelock.ScopeKey(req.TenantID, req.InstanceID)
	acquire := s.locks.Acquire(scopeKey, jobID, req.LockScopeTables)

	now := time.Now().UTC()
	job := Job{
		JobID:                jobID,
		TenantID:             req.TenantID,
		InstanceID:           req.InstanceID,
		Source:               req.Source,
		PlanID:               req.PlanID,
		PlanHash:             req.PlanHash,
		RequiredCapabilities: req.RequiredCapabilities,
		LockScopeTables:      req.LockScopeTables,
		RequestedBy:          req.RequestedBy,
		RequestedAt:          now,
	}

	if acquire.Running {
		job.Status = StatusRunning
		job.StatusReasonCode = rcserr.ReasonNone
		job.StartedAt = &now
		job.Events = append(job.Events, newEvent(jobID, "plan", "job_created", "accepted", rcserr.ReasonNone, now))
	} else {
		job.Status = StatusQueued
		job.StatusReasonCode = rcserr.ReasonQueuedScopeLock
		job.WaitReasonCode = rcserr.ReasonQueuedScopeLock
		job.QueuePosition = acquire.QueuePosition
		job.Events = append(job.Events,
			newEvent(jobID, "plan", "job_created", "accepted", rcserr.ReasonNone, now),
			newEvent(jobID, "execute", "queued_for_lock", "queued", rcserr.ReasonQueuedScopeLock, now),
		)
		s.notifier.NotifyJobQueuedForLock(ctx, req.TenantID, req.InstanceID, jobID)
	}

	if err := s.save(ctx, job); err != nil {
		return nil, err
	}
	for _, e := range job.Events {
		s.project(req.TenantID, req.InstanceID, req.Source, req.PlanID, e)
	}
	if job.Status == StatusQueued {
		telemetry.JobsQueuedTotal.Inc()
	}
	telemetry.ScopeLockQueueDepth.WithLabelValues(req.TenantID, req.InstanceID).Set(float64(s.locks.QueueDepth(scopeKey)))
	return &job, nil
}

// GetJob returns a job by id, scoped to claims: a job owned by a different
// tenant/instance is reported not found rather than forbidden, per I1.
func (s *Service) GetJob(ctx context.Context, claims *auth.Claims, jobID string) (*Job, error) {
	doc, _, err := snapshot.ReadTyped[stateDoc](ctx, s.store, snapshot.KeyJobState)
	if err != nil {
		return nil, rcserr.Internal("reading job state", err)
	}
	j, ok := doc.Jobs[jobID]
	if !ok {
		return nil, rcserr.NotFound(fmt.Sprintf("job %s not found", jobID))
	}
	if err := requireClaimsOwnership(claims, j.TenantID, j.InstanceID, fmt.Sprintf("job %s not found", jobID)); err != nil {
		return nil, err
	}
	return &j, nil
}

// requireClaimsOwnership rejects when claims is nil or its tenant/instance
// does not equal the resource's own tenant_id/instance_id. A mismatch is
// reported as "not found" rather than forbidden, so a caller never learns
// that a resource exists outside its own claim scope.
func requireClaimsOwnership(claims *auth.Claims, tenantID, instanceID, notFoundMessage string) error {
	if claims == nil || claims.TenantID != tenantID || claims.InstanceID != instanceID {
		return rcserr.NotFound(notFoundMessage)
	}
	return nil
}

// ListJobs returns every job scoped to tenant/instance, oldest first.
func (s *Service) ListJobs(ctx context.Context, tenantID, instanceID string) ([]*Job, error) {
	doc, _, err := snapshot.ReadTyped[stateDoc](ctx, s.store, snapshot.KeyJobState)
	if err != nil {
		return nil, rcserr.Internal("reading job state", err)
	}
	out := make([]*Job, 0)
	for _, j := range doc.Jobs {
		if j.TenantID == tenantID && j.InstanceID == instanceID {
			jj := j
			out = append(out, &jj)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].RequestedAt.Before(out[k].RequestedAt) })
	return out, nil
}

// PauseJob transitions a running job to paused, preserving its scope lock.
func (s *Service) PauseJob(ctx context.Context, claims *auth.Claims, jobID, reasonCode string) (*Job, error) {
	var result Job
	err := snapshot.MutateTyped(ctx, s.store, snapshot.KeyJobState, func(doc *stateDoc) error {
		j, ok := doc.Jobs[jobID]
		if !ok {
			return rcserr.NotFound(fmt.Sprintf("job %s not found", jobID))
		}
		if err := requireClaimsOwnership(claims, j.TenantID, j.InstanceID, fmt.Sprintf("job %s not found", jobID)); err != nil {
			return err
		}
		if j.Status != StatusRunning {
			return rcserr.New(409, rcserr.ReasonFailedPermissionConflict, "job is not running")
		}
		j.Status = StatusPaused
		j.StatusReasonCode = reasonCode
		j.Events = append(j.Events, newEvent(jobID, "execute", "pause", "paused", reasonCode, time.Now().UTC()))
		doc.Jobs[jobID] = j
		result = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyJobPaused(ctx, result.TenantID, result.InstanceID, jobID, reasonCode)
	s.project(result.TenantID, result.InstanceID, result.Source, result.PlanID, result.Events[len(result.Events)-1])
	return &result, nil
}

// ResumePausedJob transitions a paused job back to running. The scope lock
// was never released while paused, so no lock re-acquisition is needed.
func (s *Service) ResumePausedJob(ctx context.Context, jobID string) (*Job, error) {
	var result Job
	err := snapshot.MutateTyped(ctx, s.store, snapshot.KeyJobState, func(doc *stateDoc) error {
		j, ok := doc.Jobs[jobID]
		if !ok {
			return rcserr.NotFound(fmt.Sprintf("job %s not found", jobID))
		}
		if j.Status != StatusPaused {
			return rcserr.New(409, rcserr.ReasonFailedPermissionConflict, "job is not paused")
		}
		j.Status = StatusRunning
		j.StatusReasonCode = rcserr.ReasonNone
		j.Events = append(j.Events, newEvent(jobID, "execute", "resume", "running", rcserr.ReasonNone, time.Now().UTC()))
		doc.Jobs[jobID] = j
		result = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.project(result.TenantID, result.InstanceID, result.Source, result.PlanID, result.Events[len(result.Events)-1])
	return &result, nil
}

// CompleteJob transitions a running job to a terminal state, releases its
// scope lock, and returns the promoted job ids.
func (s *Service) CompleteJob(ctx context.Context, jobID string, outcome Status, reasonCode string) (*Job, []string, error) {
	if outcome != StatusCompleted && outcome != StatusFailed {
		return nil, nil, rcserr.Internal("completeJob called with a non-terminal outcome", nil)
	}

	var result Job
	err := snapshot.MutateTyped(ctx, s.store, snapshot.KeyJobState, func(doc *stateDoc) error {
		j, ok := doc.Jobs[jobID]
		if !ok {
			return rcserr.NotFound(fmt.Sprintf("job %s not found", jobID))
		}
		if j.Status != StatusRunning {
			return rcserr.New(409, rcserr.ReasonFailedPermissionConflict, "job is not running")
		}
		now := time.Now().UTC()
		j.Status = outcome
		j.StatusReasonCode = reasonCode
		j.CompletedAt = &now
		j.Events = append(j.Events, newEvent(jobID, "execute", "complete", string(outcome), reasonCode, now))
		doc.Jobs[jobID] = j
		result = j
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	scopeKey := scopelock.ScopeKey(result.TenantID, result.InstanceID)
	promoted := s.locks.Release(scopeKey, jobID)

	if err := s.promote(ctx, promoted); err != nil {
		return &result, promoted, err
	}

	if outcome == StatusFailed {
		s.notifier.NotifyJobFailed(ctx, result.TenantID, result.InstanceID, jobID, reasonCode)
	}
	s.project(result.TenantID, result.InstanceID, result.Source, result.PlanID, result.Events[len(result.Events)-1])
	return &result, promoted, nil
}

// promote transitions every promoted job id from queued to running and
// emits its "promoted" event.
func (s *Service) promote(ctx context.Context, jobIDs []string) error {
	if len(jobIDs) == 0 {
		return nil
	}
	var promotedJobs []Job
	err := snapshot.MutateTyped(ctx, s.store, snapshot.KeyJobState, func(doc *stateDoc) error {
		now := time.Now().UTC()
		for _, id := range jobIDs {
			j, ok := doc.Jobs[id]
			if !ok {
				continue
			}
			j.Status = StatusRunning
			j.StatusReasonCode = rcserr.ReasonNone
			j.WaitReasonCode = ""
			j.QueuePosition = 0
			j.StartedAt = &now
			j.Events = append(j.Events, newEvent(id, "execute", "promoted", "running", rcserr.ReasonNone, now))
			doc.Jobs[id] = j
			promotedJobs = append(promotedJobs, j)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, j := range promotedJobs {
		s.notifier.NotifyJobPromoted(ctx, j.TenantID, j.InstanceID, j.JobID)
		s.project(j.TenantID, j.InstanceID, j.Source, j.PlanID, j.Events[len(j.Events)-1])
		telemetry.JobsPromotedTotal.Inc()
		scopeKey := scopelock.ScopeKey(j.TenantID, j.InstanceID)
		telemetry.ScopeLockQueueDepth.WithLabelValues(j.TenantID, j.InstanceID).Set(float64(s.locks.QueueDepth(scopeKey)))
	}
	return nil
}

// ListJobEvents returns a job's own ordered event log.
func (s *Service) ListJobEvents(ctx context.Context, claims *auth.Claims, jobID string) ([]JobEvent, error) {
	j, err := s.GetJob(ctx, claims, jobID)
	if err != nil {
		return nil, err
	}
	return j.Events, nil
}

// ListCrossServiceJobEvents returns the bounded tail of cross-service event
// projections.
func (s *Service) ListCrossServiceJobEvents(ctx context.Context) ([]CrossServiceEvent, error) {
	doc, _, err := snapshot.ReadTyped[projectionDoc](ctx, s.store, projectionStoreKey)
	if err != nil {
		return nil, rcserr.Internal("reading cross-service event projection", err)
	}
	return doc.Events, nil
}

// GetLockSnapshot reports the scope lock manager's current running/queued
// counts for (tenant_id, instance_id).
func (s *Service) GetLockSnapshot(tenantID, instanceID string) (running, queued int) {
	scopeKey := scopelock.ScopeKey(tenantID, instanceID)
	return s.locks.RunningCount(scopeKey), s.locks.QueueDepth(scopeKey)
}

func (s *Service) save(ctx context.Context, j Job) error {
	return snapshot.MutateTyped(ctx, s.store, snapshot.KeyJobState, func(doc *stateDoc) error {
		if doc.Jobs == nil {
			doc.Jobs = make(map[string]Job)
		}
		doc.Jobs[j.JobID] = j
		return nil
	})
}

func (s *Service) project(tenantID, instanceID, source, planID string, e JobEvent) {
	s.projector.Project(CrossServiceEvent{
		ContractVersion: contractVersion,
		SchemaVersion:   schemaVersion,
		Service:         serviceName,
		TenantID:        tenantID,
		InstanceID:      instanceID,
		Source:          source,
		PlanID:          planID,
		JobID:           e.JobID,
		Lifecycle:       e.Phase,
		Action:          e.Action,
		Outcome:         e.Outcome,
		ReasonCode:      e.ReasonCode,
		At:              e.At,
	})
}

func newEvent(jobID, phase, action, outcome, reasonCode string, at time.Time) JobEvent {
	return JobEvent{
		EventID:    uuid.NewString(),
		JobID:      jobID,
		Phase:      phase,
		Action:     action,
		Outcome:    outcome,
		ReasonCode: reasonCode,
		At:         at,
	}
}

// newJobID derives job_id = "job_" + first24(sha256(tenant|instance|plan|random)).
func newJobID(tenantID, instanceID, planID string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s", tenantID, instanceID, planID, hex.EncodeToString(salt))))
	return "job_" + hex.EncodeToString(sum[:])[:24], nil
}
