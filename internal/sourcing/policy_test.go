package sourcing

import (
	"context"
	"errors"
	"testing"

	"github.com/restorecp/rcs/internal/rcserr"
)

type fakeResolver struct {
	result Result
	err    error
}

func (f *fakeResolver) ResolveSourceMapping(_ context.Context, _ ResolveRequest) (Result, error) {
	return f.result, f.err
}

func TestResolveEffectiveSource_LiveFoundAndAllowed(t *testing.T) {
	r := &Resolver{Live: &fakeResolver{result: Result{
		Outcome:         OutcomeFound,
		ServiceAllowed:  true,
		Mapping:         Mapping{Source: "sn://acme-dev.service-now.com"},
		CanonicalSource: "sn://acme-dev.service-now.com",
	}}}

	source, err := r.ResolveEffectiveSource(context.Background(), "tenant-acme", "sn-dev-01", "sn://acme-dev.service-now.com", "rrs")
	if err != nil {
		t.Fatalf("ResolveEffectiveSource() error: %v", err)
	}
	if source != "sn://acme-dev.service-now.com" {
		t.Errorf("source = %q", source)
	}
}

func TestResolveEffectiveSource_LiveOutage(t *testing.T) {
	r := &Resolver{Live: &fakeResolver{result: Result{Outcome: OutcomeOutage, Message: "timeout"}}}

	_, err := r.ResolveEffectiveSource(context.Background(), "t", "i", "s", "rrs")
	var rerr *rcserr.Error
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *rcserr.Error, got %v", err)
	}
	if rerr.Reason != rcserr.ReasonBlockedAuthControlPlaneOutage {
		t.Errorf("reason = %q, want %q", rerr.Reason, rcserr.ReasonBlockedAuthControlPlaneOutage)
	}
	if rerr.Status != 503 {
		t.Errorf("status = %d, want 503", rerr.Status)
	}
}

func TestResolveEffectiveSource_NotFoundWithNoLiveResolverFallsBackToRegistry(t *testing.T) {
	reg := NewRegistry([]Mapping{
		{TenantID: "tenant-acme", InstanceID: "sn-dev-01", Source: "sn://acme-dev.service-now.com", AllowedServices: []string{"rrs"}},
	})
	r := &Resolver{Registry: reg}

	source, err := r.ResolveEffectiveSource(context.Background(), "tenant-acme", "sn-dev-01", "sn://acme-dev.service-now.com", "rrs")
	if err != nil {
		t.Fatalf("ResolveEffectiveSource() error: %v", err)
	}
	if source != "sn://acme-dev.service-now.com" {
		t.Errorf("source = %q", source)
	}
}

func TestResolveEffectiveSource_NotFoundWithLiveResolverDenies(t *testing.T) {
	r := &Resolver{Live: &fakeResolver{result: Result{Outcome: OutcomeNotFound}}}

	_, err := r.ResolveEffectiveSource(context.Background(), "t", "i", "s", "rrs")
	var rerr *rcserr.Error
	if !errors.As(err, &rerr) || rerr.Reason != rcserr.ReasonBlockedUnknownSourceMapping {
		t.Fatalf("expected blocked_unknown_source_mapping, got %v", err)
	}
}
