package statestore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreSetGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "wf1:output:result", "hello", time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got string
	if err := store.Get(ctx, "wf1:output:result", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
}

func TestMemoryStoreStructuredValue(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	selection := []string{"a1b2c3d4", "e5f6a7b8"}
	if err := store.Set(ctx, "wf1:output:selection_deadbeef", selection, time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got []string
	if err := store.Get(ctx, "wf1:output:selection_deadbeef", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 2 || got[0] != "a1b2c3d4" {
		t.Errorf("unexpected selection list: %v", got)
	}
}

func TestMemoryStoreMissingKey(t *testing.T) {
	store := NewMemoryStore()

	var got string
	err := store.Get(context.Background(), "missing", &got)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	if err := store.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got string
	if err := store.Get(ctx, "k", &got); err != nil {
		t.Fatalf("Get before expiry failed: %v", err)
	}

	store.now = func() time.Time { return now.Add(2 * time.Minute) }

	if err := store.Get(ctx, "k", &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var got string
	if err := store.Get(ctx, "k", &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting a missing key is not an error.
	if err := store.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete of missing key failed: %v", err)
	}
}

func TestOutputKey(t *testing.T) {
	if got := OutputKey("wf1", "step_1_result"); got != "wf1:output:step_1_result" {
		t.Errorf("unexpected key: %q", got)
	}
}
