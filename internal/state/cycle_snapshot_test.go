package state

import (
	"context"
	"sync"
	"testing"
)

type memoryStore struct {
	mu    sync.Mutex
	items map[string]string
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.items[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]string)
	}
	m.items[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}

func TestCycleSnapshotRoundTrip(t *testing.T) {
	store := &memoryStore{}
	ctx := context.Background()
	snapshot := CycleSnapshot{
		Pair:           "sub1/sub2",
		ShortOutcome:   "opened",
		LongOutcome:    "opened",
		MonitorOutcome: "closed",
		TargetSize:     99.94,
		FilledSize:     99.94,
		EntryPrice:     50.03,
		TakeProfits:    2,
		Swept:          2,
		StartedAtMS:    1700000000000,
		FinishedAtMS:   1700000360000,
	}
	if err := SaveCycleSnapshot(ctx, store, snapshot); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	got, ok, err := LoadCycleSnapshot(ctx, store, "sub1/sub2")
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if !ok {
		t.Fatalf("expected snapshot to be present")
	}
	if got != snapshot {
		t.Fatalf("unexpected snapshot: %#v", got)
	}
}

func TestCycleSnapshotIsolatedPerPair(t *testing.T) {
	store := &memoryStore{}
	ctx := context.Background()
	if err := SaveCycleSnapshot(ctx, store, CycleSnapshot{Pair: "a/b", ShortOutcome: "opened"}); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	_, ok, err := LoadCycleSnapshot(ctx, store, "c/d")
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if ok {
		t.Fatalf("expected no snapshot for a different pair")
	}
}

func TestCycleSnapshotInvalid(t *testing.T) {
	store := &memoryStore{items: map[string]string{CycleSnapshotKey("a/b"): "{"}}
	_, _, err := LoadCycleSnapshot(context.Background(), store, "a/b")
	if err == nil {
		t.Fatalf("expected error for invalid snapshot JSON")
	}
}
