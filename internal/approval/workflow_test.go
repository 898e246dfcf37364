package approval

import (
	"context"
	"testing"
	"time"

	"github.com/tradingcore/riskcore/internal/broker"
)

func TestResolveSignalsExactlyOneWaiter(t *testing.T) {
	w := NewWorkflow(10, nil, nil)
	req := w.QueueForApproval(broker.OrderIntent{Symbol: "AAPL"}, "large order", time.Minute)

	resultCh := make(chan Request, 1)
	go func() {
		res, err := w.WaitForApproval(context.Background(), req.ID, time.Second)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		resultCh <- res
	}()

	time.Sleep(10 * time.Millisecond)
	if err := w.Resolve(req.ID, true, "ops"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	select {
	case res := <-resultCh:
		if res.State != StateApproved {
			t.Fatalf("expected APPROVED, got %s", res.State)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was never signaled")
	}
}

func TestWaitForApprovalExpiresOnTimeout(t *testing.T) {
	w := NewWorkflow(10, nil, nil)
	req := w.QueueForApproval(broker.OrderIntent{Symbol: "AAPL"}, "reason", time.Hour)
	res, err := w.WaitForApproval(context.Background(), req.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateExpired {
		t.Fatalf("expected EXPIRED after timeout, got %s", res.State)
	}
}

func TestQueueForApprovalEvictsOldestAtCapacity(t *testing.T) {
	var resolved []Request
	w := NewWorkflow(2, nil, func(r Request) { resolved = append(resolved, r) })
	first := w.QueueForApproval(broker.OrderIntent{Symbol: "A"}, "r1", time.Hour)
	w.QueueForApproval(broker.OrderIntent{Symbol: "B"}, "r2", time.Hour)
	w.QueueForApproval(broker.OrderIntent{Symbol: "C"}, "r3", time.Hour)

	if len(resolved) != 1 || resolved[0].ID != first.ID || resolved[0].State != StateExpired {
		t.Fatalf("expected oldest request evicted as EXPIRED, got %+v", resolved)
	}
}

func TestSweepExpiredExpiresPastDeadline(t *testing.T) {
	w := NewWorkflow(10, nil, nil)
	req := w.QueueForApproval(broker.OrderIntent{Symbol: "AAPL"}, "reason", -time.Second)
	w.SweepExpired()
	res := w.snapshotOrHistory(req.ID)
	if res.State != StateExpired {
		t.Fatalf("expected EXPIRED after sweep, got %s", res.State)
	}
}

func TestOnQueuedPanicIsIsolated(t *testing.T) {
	w := NewWorkflow(10, func(Request) { panic("boom") }, nil)
	// Must not crash the test process.
	w.QueueForApproval(broker.OrderIntent{Symbol: "AAPL"}, "reason", time.Hour)
}
