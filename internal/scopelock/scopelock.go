// Package scopelock implements exclusive locks on (tenant_id, instance_id)
// scoped to a set of table names, with a strict FIFO queue and
// no-overtaking promotion on release.
package scopelock

import (
	"fmt"
	"sort"
	"sync"
)

// TableSet is an unordered set of table names.
type TableSet map[string]struct{}

// NewTableSet builds a TableSet from a slice of table names.
func NewTableSet(tables []string) TableSet {
	s := make(TableSet, len(tables))
	for _, t := range tables {
		s[t] = struct{}{}
	}
	return s
}

// Overlaps reports whether s and other share any table.
func (s TableSet) Overlaps(other TableSet) bool {
	small, big := s, other
	if len(big) < len(small) {
		small, big = big, small
	}
	for t := range small {
		if _, ok := big[t]; ok {
			return true
		}
	}
	return false
}

// Slice returns the table names in sorted order.
func (s TableSet) Slice() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

type entry struct {
	jobID  string
	tables TableSet
}

// AcquireResult is the outcome of Acquire.
type AcquireResult struct {
	Running       bool
	ReasonCode    string
	BlockedTables []string
	QueuePosition int // 1-based position within the queue, when not running
}

// Manager holds the per-scope-key running set and FIFO queue, with its own
// mutual-exclusion discipline making Acquire/Release/Snapshot atomic with
// respect to each other.
type Manager struct {
	mu      sync.Mutex
	running map[string][]entry
	queue   map[string][]entry
}

// NewManager creates an empty scope lock manager.
func NewManager() *Manager {
	return &Manager{
		running: make(map[string][]entry),
		queue:   make(map[string][]entry),
	}
}

// ScopeKey derives the logical lock key for (tenant_id, instance_id).
func ScopeKey(tenantID, instanceID string) string {
	return fmt.Sprintf("%s/%s", tenantID, instanceID)
}

// Acquire attempts to admit jobID with the given lock_scope_tables into the
// running set. If the tables overlap any currently running entry for the
// same scope key, the job is enqueued FIFO instead.
func (m *Manager) Acquire(scopeKey, jobID string, tables []string) AcquireResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := NewTableSet(tables)

	var blocked TableSet
	for _, r := range m.running[scopeKey] {
		if ts.Overlaps(r.tables) {
			if blocked == nil {
				blocked = make(TableSet)
			}
			for t := range r.tables {
				if _, ok := ts[t]; ok {
					blocked[t] = struct{}{}
				}
			}
		}
	}

	if blocked == nil {
		m.running[scopeKey] = append(m.running[scopeKey], entry{jobID: jobID, tables: ts})
		return AcquireResult{Running: true, ReasonCode: "none"}
	}

	m.queue[scopeKey] = append(m.queue[scopeKey], entry{jobID: jobID, tables: ts})
	return AcquireResult{
		Running:       false,
		ReasonCode:    "queued_scope_lock",
		BlockedTables: blocked.Slice(),
		QueuePosition: len(m.queue[scopeKey]),
	}
}

// Release removes jobID from the running set for scopeKey, then promotes
// every queued entry whose tables no longer overlap any remaining running
// entry and are not transitively blocked by an earlier-still-blocked queue
// entry (strict FIFO, no overtaking). Returns promoted job ids in FIFO order.
func (m *Manager) Release(scopeKey, jobID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	running := m.running[scopeKey]
	for i, r := range running {
		if r.jobID == jobID {
			running = append(running[:i], running[i+1:]...)
			break
		}
	}
	m.running[scopeKey] = running

	queue := m.queue[scopeKey]
	var promoted []string
	var remainingQueue []entry
	blockedTables := make(TableSet)

	for _, q := range queue {
		overlapsRunning := false
		for _, r := range m.running[scopeKey] {
			if q.tables.Overlaps(r.tables) {
				overlapsRunning = true
				break
			}
		}

		if !overlapsRunning && !q.tables.Overlaps(blockedTables) {
			m.running[scopeKey] = append(m.running[scopeKey], entry{jobID: q.jobID, tables: q.tables})
			promoted = append(promoted, q.jobID)
			continue
		}

		for t := range q.tables {
			blockedTables[t] = struct{}{}
		}
		remainingQueue = append(remainingQueue, q)
	}

	m.queue[scopeKey] = remainingQueue
	return promoted
}

// QueueDepth returns the current queue length for scopeKey.
func (m *Manager) QueueDepth(scopeKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue[scopeKey])
}

// RunningCount returns the current running-set size for scopeKey.
func (m *Manager) RunningCount(scopeKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running[scopeKey])
}
