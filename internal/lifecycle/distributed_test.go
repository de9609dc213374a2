package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeRefcountStore struct {
	mu    sync.Mutex
	incrs map[string]int
	decrs map[string]int
}

func newFakeRefcountStore() *fakeRefcountStore {
	return &fakeRefcountStore{incrs: make(map[string]int), decrs: make(map[string]int)}
}

func (f *fakeRefcountStore) IncrRefcount(ctx context.Context, tableName string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incrs[tableName] += delta
	return nil
}

func (f *fakeRefcountStore) DecrRefcount(ctx context.Context, tableName string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decrs[tableName] += delta
	return nil
}

func (f *fakeRefcountStore) snapshot(tableName string) (incr, decr int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.incrs[tableName], f.decrs[tableName]
}

func TestDistributedNeverDropsDirectly(t *testing.T) {
	store := newFakeRefcountStore()
	d := NewDistributed(store)
	ctx := context.Background()
	d.Start(ctx)

	d.Incref("tbl_x")
	d.Incref("tbl_x")
	d.Decref("tbl_x")

	deadline := time.Now().Add(time.Second)
	for {
		incr, decr := store.snapshot("tbl_x")
		if incr == 2 && decr == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("incr=%d decr=%d, want incr=2 decr=1", incr, decr)
		}
		time.Sleep(time.Millisecond)
	}

	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestDistributedStopDrainsQueue(t *testing.T) {
	store := newFakeRefcountStore()
	d := NewDistributed(store)
	ctx := context.Background()
	d.Start(ctx)

	d.Incref("tbl_y")
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	incr, _ := store.snapshot("tbl_y")
	if incr != 1 {
		t.Fatalf("incr = %d, want 1 after Stop drains queue", incr)
	}
}
