package snapshot

import (
	"context"
	"testing"
)

type counterDoc struct {
	N int `json:"n"`
}

func TestMemoryStore_MutateIncrementsVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 3; i++ {
		err := MutateTyped(ctx, store, "counter", func(d *counterDoc) error {
			d.N++
			return nil
		})
		if err != nil {
			t.Fatalf("MutateTyped() error: %v", err)
		}
	}

	doc, version, err := ReadTyped[counterDoc](ctx, store, "counter")
	if err != nil {
		t.Fatalf("ReadTyped() error: %v", err)
	}
	if doc.N != 3 {
		t.Errorf("doc.N = %d, want 3", doc.N)
	}
	if version != 3 {
		t.Errorf("version = %d, want 3", version)
	}
}

func TestMemoryStore_ReadUnwrittenKeyIsZeroValue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	doc, version, err := ReadTyped[counterDoc](ctx, store, "never_written")
	if err != nil {
		t.Fatalf("ReadTyped() error: %v", err)
	}
	if doc.N != 0 || version != 0 {
		t.Errorf("ReadTyped() = %+v, version %d; want zero value, version 0", doc, version)
	}
}

func TestMemoryStore_MutateErrorLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_ = MutateTyped(ctx, store, "counter", func(d *counterDoc) error {
		d.N = 5
		return nil
	})

	wantErr := errFailingMutation
	err := MutateTyped(ctx, store, "counter", func(d *counterDoc) error {
		d.N = 99
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("MutateTyped() error = %v, want %v", err, wantErr)
	}

	doc, version, _ := ReadTyped[counterDoc](ctx, store, "counter")
	if doc.N != 5 || version != 1 {
		t.Errorf("state mutated despite fn returning an error: doc=%+v version=%d", doc, version)
	}
}

var errFailingMutation = &mutationError{"intentional failure"}

type mutationError struct{ msg string }

func (e *mutationError) Error() string { return e.msg }
