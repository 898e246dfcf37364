package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestSubmitOnceSecondCallShortCircuits(t *testing.T) {
	m := NewIdempotencyMap()
	var calls int32

	submit := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "broker-order-1", nil
	}

	id1, err := m.SubmitOnce(context.Background(), "client-key-1", submit)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	id2, err := m.SubmitOnce(context.Background(), "client-key-1", submit)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same broker order id, got %q and %q", id1, id2)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one underlying submit call, got %d", calls)
	}
}

func TestSubmitOnceConcurrentCallersCoalesce(t *testing.T) {
	m := NewIdempotencyMap()
	var calls int32
	var wg sync.WaitGroup
	ids := make([]string, 20)

	submit := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "broker-order-concurrent", nil
	}

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := m.SubmitOnce(context.Background(), "shared-key", submit)
			if err != nil {
				t.Errorf("submit %d: %v", i, err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for i, id := range ids {
		if id != "broker-order-concurrent" {
			t.Fatalf("caller %d got unexpected id %q", i, id)
		}
	}
	if calls > 2 {
		t.Fatalf("expected submissions to coalesce onto ~1 call, got %d", calls)
	}
}

func TestEnsureKeyAssignsUUIDWhenEmpty(t *testing.T) {
	k1 := EnsureKey("")
	k2 := EnsureKey("")
	if k1 == "" || k2 == "" || k1 == k2 {
		t.Fatalf("expected distinct non-empty generated keys, got %q %q", k1, k2)
	}
	if EnsureKey("caller-supplied") != "caller-supplied" {
		t.Fatal("expected caller-supplied key to be preserved")
	}
}
