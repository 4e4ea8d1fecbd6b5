// Package snapshot implements the single-writer, versioned key-to-opaque-
// state store every other service persists through. A store_key names one
// logical JSON document (e.g. "plan_state"); mutations are serializable:
// the latest version is read for update, the caller's function transforms
// it in place, and the result is persisted as the next version.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
)

// State is a store_key's current committed value: a version counter plus
// the opaque JSON document it guards.
type State struct {
	Version int
	Data    json.RawMessage
}

// MutateFunc transforms the current state and returns the next state. An
// empty/nil current.Data (version 0) means the key has never been written.
type MutateFunc func(current State) (next json.RawMessage, err error)

// Store is the single-writer, versioned key-to-opaque-state abstraction
// every domain service persists through. Implementations must guarantee
// at-most-one writer wins per version and that reads observe the last
// committed version.
type Store interface {
	// Read returns a deep copy of the last committed state for key. A key
	// that has never been written returns State{Version: 0, Data: nil}.
	Read(ctx context.Context, key string) (State, error)

	// Mutate runs fn under a serializable transaction: it reads the latest
	// row for key for update, lets fn compute the next document, and
	// persists it with version = prev + 1. A serialization conflict aborts
	// the mutation and returns an error; the caller may retry.
	Mutate(ctx context.Context, key string, fn MutateFunc) error
}

// ReadTyped reads key and unmarshals it into a zero value of T. A never-
// written key yields the zero value of T and version 0.
func ReadTyped[T any](ctx context.Context, store Store, key string) (T, int, error) {
	var out T
	state, err := store.Read(ctx, key)
	if err != nil {
		return out, 0, fmt.Errorf("snapshot: reading %q: %w", key, err)
	}
	if len(state.Data) == 0 {
		return out, state.Version, nil
	}
	if err := json.Unmarshal(state.Data, &out); err != nil {
		return out, 0, fmt.Errorf("snapshot: decoding %q: %w", key, err)
	}
	return out, state.Version, nil
}

// MutateTyped decodes the current document into *T (zero value if unwritten),
// lets fn mutate it in place, then re-encodes and persists it.
func MutateTyped[T any](ctx context.Context, store Store, key string, fn func(*T) error) error {
	return store.Mutate(ctx, key, func(current State) (json.RawMessage, error) {
		var doc T
		if len(current.Data) > 0 {
			if err := json.Unmarshal(current.Data, &doc); err != nil {
				return nil, fmt.Errorf("snapshot: decoding %q for mutation: %w", key, err)
			}
		}
		if err := fn(&doc); err != nil {
			return nil, err
		}
		next, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("snapshot: encoding %q after mutation: %w", key, err)
		}
		return next, nil
	})
}

// Well-known store_keys, one per persisted entity family.
const (
	KeyPlanState      = "plan_state"
	KeyJobState       = "job_state"
	KeyExecutionState = "execution_state"
	KeyEvidenceState  = "evidence_state"
)
