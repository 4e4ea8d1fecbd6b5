package plan

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/restorecp/rcs/internal/auth"
	"github.com/restorecp/rcs/internal/freshness"
	"github.com/restorecp/rcs/internal/rcserr"
	"github.com/restorecp/rcs/internal/snapshot"
	"github.com/restorecp/rcs/internal/sourcing"
	"github.com/restorecp/rcs/internal/telemetry"
)

// Service implements the PlanService.
type Service struct {
	store     snapshot.Store
	resolver  *sourcing.Resolver
	freshness *freshness.Reader
}

// NewService wires a PlanService from its dependencies.
func NewService(store snapshot.Store, resolver *sourcing.Resolver, freshnessReader *freshness.Reader) *Service {
	return &Service{store: store, resolver: resolver, freshness: freshnessReader}
}

// CreateDryRunPlan admits the claim triple, resolves the effective source,
// computes the plan hash, derives the executability gate, and persists the
// resulting DryRunPlan. It is idempotent on plan_id: replaying the same
// plan_id with an identical request body returns the stored plan unchanged;
// replaying with a different body that hashes differently is rejected.
func (s *Service) CreateDryRunPlan(ctx context.Context, claims *auth.Claims, req CreateDryRunPlanRequest) (*DryRunPlan, error) {
	if claims.TenantID != req.TenantID || claims.InstanceID != req.InstanceID || claims.Source != req.Source {
		return nil, rcserr.New(400, "invalid_request", "claim triple does not match request tenant_id/instance_id/source")
	}

	if _, err := s.resolver.ResolveEffectiveSource(ctx, req.TenantID, req.InstanceID, req.Source, string(claims.ServiceScope)); err != nil {
		return nil, err
	}

	input := buildHashInput(req)
	planHash, err := computePlanHash(input)
	if err != nil {
		return nil, rcserr.Internal("computing plan hash", err)
	}

	existing, _, err := snapshot.ReadTyped[stateDoc](ctx, s.store, snapshot.KeyPlanState)
	if err != nil {
		return nil, rcserr.Internal("reading plan state", err)
	}
	if existing.Plans != nil {
		if prior, ok := existing.Plans[req.PlanID]; ok {
			if prior.PlanHash != planHash {
				return nil, rcserr.New(409, rcserr.ReasonBlockedPlanHashMismatch,
					fmt.Sprintf("plan_id %s already exists with a different plan_hash", req.PlanID))
			}
			return &prior, nil
		}
	}

	partitions := distinctPartitions(req.Rows)
	watermarks, err := s.freshness.ReadWatermarksForPartitions(ctx, req.TenantID, req.InstanceID, req.Source, time.Now().UTC(), partitions)
	if err != nil {
		return nil, rcserr.Internal("reading freshness watermarks", err)
	}

	gate := deriveGate(watermarks, req.DeleteCandidates, req.MediaCandidates, req.Conflicts)

	p := DryRunPlan{
		PlanID:           req.PlanID,
		TenantID:         req.TenantID,
		InstanceID:       req.InstanceID,
		Source:           req.Source,
		PlanHash:         planHash,
		PlanHashInput:    input,
		ExecutionOptions: req.ExecutionOptions,
		Rows:             input.Rows,
		Conflicts:        req.Conflicts,
		DeleteCandidates: req.DeleteCandidates,
		MediaCandidates:  req.MediaCandidates,
		PITResolutions:   resolvePIT(req),
		Watermarks:       toWatermarkViews(watermarks),
		Gate:             gate,
		GeneratedAt:      time.Now().UTC(),
		RequestedBy:      req.RequestedBy,
	}

	err = snapshot.MutateTyped(ctx, s.store, snapshot.KeyPlanState, func(doc *stateDoc) error {
		if doc.Plans == nil {
			doc.Plans = make(map[string]DryRunPlan)
		}
		if prior, ok := doc.Plans[req.PlanID]; ok {
			if prior.PlanHash != planHash {
				return rcserr.New(409, rcserr.ReasonBlockedPlanHashMismatch, "plan_id already exists with a different plan_hash")
			}
			return nil
		}
		doc.Plans[req.PlanID] = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.PlansCreatedTotal.WithLabelValues(p.Gate.Executability).Inc()
	return &p, nil
}

// GetPlan returns a previously created plan by id.
func (s *Service) GetPlan(ctx context.Context, planID string) (*DryRunPlan, error) {
	doc, _, err := snapshot.ReadTyped[stateDoc](ctx, s.store, snapshot.KeyPlanState)
	if err != nil {
		return nil, rcserr.Internal("reading plan state", err)
	}
	p, ok := doc.Plans[planID]
	if !ok {
		return nil, rcserr.NotFound(fmt.Sprintf("plan %s not found", planID))
	}
	return &p, nil
}

// ListPlans returns every plan scoped to the given tenant/instance.
func (s *Service) ListPlans(ctx context.Context, tenantID, instanceID string) ([]*DryRunPlan, error) {
	doc, _, err := snapshot.ReadTyped[stateDoc](ctx, s.store, snapshot.KeyPlanState)
	if err != nil {
		return nil, rcserr.Internal("reading plan state", err)
	}
	out := make([]*DryRunPlan, 0)
	for _, p := range doc.Plans {
		if p.TenantID == tenantID && p.InstanceID == instanceID {
			pp := p
			out = append(out, &pp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GeneratedAt.Before(out[j].GeneratedAt) })
	return out, nil
}

func distinctPartitions(rows []Row) []freshness.PartitionKey {
	seen := make(map[freshness.PartitionKey]struct{})
	out := make([]freshness.PartitionKey, 0)
	for _, r := range rows {
		k := freshness.PartitionKey{Topic: r.Topic, Partition: r.Partition}
		if k.Topic == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func toWatermarkViews(wms []freshness.Watermark) []WatermarkView {
	out := make([]WatermarkView, 0, len(wms))
	for _, w := range wms {
		out = append(out, WatermarkView{
			Topic:         w.Topic,
			Partition:     w.Partition,
			Freshness:     string(w.Freshness),
			Executability: string(w.Executability),
			ReasonCode:    w.ReasonCode,
		})
	}
	return out
}

// resolvePIT pairs each caller-supplied pit_candidate with its declared
// resolution, defaulting to the PIT's primary tie_breaker when no explicit
// candidate was supplied for a row.
func resolvePIT(req CreateDryRunPlanRequest) []PITResolution {
	out := make([]PITResolution, 0, len(req.PITCandidates))
	for _, c := range req.PITCandidates {
		resolution := c.Value
		if resolution == "" && len(req.PIT.TieBreaker) > 0 {
			resolution = req.PIT.TieBreaker[0]
		}
		out = append(out, PITResolution{RowID: c.RowID, Resolution: resolution})
	}
	return out
}
