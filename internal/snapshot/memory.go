package snapshot

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local development. It
// gives the same copy-on-read/write serializability as the Postgres
// implementation via a single mutex guarding all keys.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]State)}
}

func (m *MemoryStore) Read(_ context.Context, key string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[key]
	if !ok {
		return State{}, nil
	}
	return copyState(row), nil
}

func (m *MemoryStore) Mutate(_ context.Context, key string, fn MutateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := copyState(m.rows[key])
	next, err := fn(current)
	if err != nil {
		return err
	}

	m.rows[key] = State{Version: current.Version + 1, Data: next}
	return nil
}

func copyState(s State) State {
	if len(s.Data) == 0 {
		return State{Version: s.Version}
	}
	cp := make(json.RawMessage, len(s.Data))
	copy(cp, s.Data)
	return State{Version: s.Version, Data: cp}
}

var _ Store = (*MemoryStore)(nil)
