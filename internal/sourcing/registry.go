package sourcing

import "sync"

// Registry holds the statically configured (tenant_id, instance_id, source)
// tuples used as a fallback when no live MappingResolver is configured.
type Registry struct {
	mu       sync.RWMutex
	mappings map[string]Mapping
}

// NewRegistry creates a registry seeded with the given mappings.
func NewRegistry(seed []Mapping) *Registry {
	r := &Registry{mappings: make(map[string]Mapping, len(seed))}
	for _, m := range seed {
		r.mappings[registryKey(m.TenantID, m.InstanceID)] = m
	}
	return r
}

// Lookup returns the statically registered mapping for (tenantID, instanceID).
func (r *Registry) Lookup(tenantID, instanceID string) (Mapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mappings[registryKey(tenantID, instanceID)]
	return m, ok
}

// Put registers or replaces a static mapping.
func (r *Registry) Put(m Mapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings[registryKey(m.TenantID, m.InstanceID)] = m
}

func registryKey(tenantID, instanceID string) string {
	return tenantID + "/" + instanceID
}
