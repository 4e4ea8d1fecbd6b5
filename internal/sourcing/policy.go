package sourcing

import (
	"context"
	"net/http"

	"github.com/restorecp/rcs/internal/rcserr"
)

// Resolver bundles the live resolver (may be nil when unconfigured) with the
// static fallback registry, implementing the "effective canonical source"
// resolution policy.
type Resolver struct {
	Live     MappingResolver // nil when no live resolver is configured
	Registry *Registry
}

// ResolveEffectiveSource determines whether (tenantID, instanceID, source,
// serviceScope) is currently authorized and, if so, returns the canonical
// source to use. It implements:
//  1. live resolver found + serviceAllowed + mapping.source == source -> admit
//  2. not_found -> fall back to the static registry only when no live
//     resolver is configured; otherwise deny blocked_unknown_source_mapping
//  3. outage -> deny blocked_auth_control_plane_outage (503)
func (r *Resolver) ResolveEffectiveSource(ctx context.Context, tenantID, instanceID, source, serviceScope string) (string, error) {
	if r.Live != nil {
		result, err := r.Live.ResolveSourceMapping(ctx, ResolveRequest{
			TenantID:     tenantID,
			InstanceID:   instanceID,
			ServiceScope: serviceScope,
		})
		if err != nil {
			return "", rcserr.Internal("resolving source mapping", err)
		}

		switch result.Outcome {
		case OutcomeFound:
			if !result.ServiceAllowed || result.Mapping.Source != source {
				return "", rcserr.New(http.StatusForbidden, rcserr.ReasonFailedPermissionConflict,
					"service scope not permitted for this source mapping")
			}
			canonical := result.CanonicalSource
			if canonical == "" {
				canonical = result.Mapping.Source
			}
			return canonical, nil
		case OutcomeNotFound:
			return "", rcserr.New(http.StatusNotFound, rcserr.ReasonBlockedUnknownSourceMapping,
				"no source mapping for tenant/instance")
		case OutcomeOutage:
			return "", rcserr.Outage("acp", "authorization oracle unavailable: "+result.Message)
		default:
			return "", rcserr.Internal("unrecognized mapping resolver outcome", nil)
		}
	}

	// No live resolver configured: the static registry is authoritative.
	mapping, ok := r.Registry.Lookup(tenantID, instanceID)
	if !ok || mapping.Source != source {
		return "", rcserr.New(http.StatusNotFound, rcserr.ReasonBlockedUnknownSourceMapping,
			"no source mapping for tenant/instance")
	}
	if !mapping.AllowsService(serviceScope) {
		return "", rcserr.New(http.StatusForbidden, rcserr.ReasonFailedPermissionConflict,
			"service scope not permitted for this source mapping")
	}
	return mapping.Source, nil
}
