// Package approval implements the human-in-the-loop approval queue
// described in spec.md §4.7: a capacity-bounded pending map, a bounded
// history ring, an expiry sweeper, and per-request wait-for-approval
// signaling.
package approval

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tradingcore/riskcore/internal/broker"
)

type State string

const (
	StatePending   State = "PENDING"
	StateApproved  State = "APPROVED"
	StateRejected  State = "REJECTED"
	StateExpired   State = "EXPIRED"
	StateCancelled State = "CANCELLED"
)

// Request is one queued approval, carrying the full order intent and the
// risk-check context that triggered it.
type Request struct {
	ID         string
	Intent     broker.OrderIntent
	Reason     string
	State      State
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Resolver   string
	ResolvedAt time.Time

	done chan struct{}
}

const defaultHistoryCapacity = 500

// Workflow owns the pending map, history ring, and waiter signals
// exclusively; nothing else mutates them.
type Workflow struct {
	mu sync.Mutex

	capacity int
	pending  map[string]*Request
	order    []string // insertion order, oldest first, for capacity eviction

	history     []*Request
	historyCap  int

	onQueued   func(Request)
	onResolved func(Request)

	now func() time.Time
}

func NewWorkflow(capacity int, onQueued, onResolved func(Request)) *Workflow {
	if capacity <= 0 {
		capacity = 100
	}
	return &Workflow{
		capacity:   capacity,
		pending:    make(map[string]*Request),
		historyCap: defaultHistoryCapacity,
		onQueued:   onQueued,
		onResolved: onResolved,
		now:        time.Now,
	}
}

// QueueForApproval admits a new pending request, expiring the oldest pending
// entry if at capacity, and fires onQueued (exceptions isolated).
func (w *Workflow) QueueForApproval(intent broker.OrderIntent, reason string, ttl time.Duration) Request {
	w.mu.Lock()
	var evicted *Request
	if len(w.pending) >= w.capacity && len(w.order) > 0 {
		oldestID := w.order[0]
		w.order = w.order[1:]
		if oldest, ok := w.pending[oldestID]; ok {
			w.resolveLocked(oldest, StateExpired, "")
			snap := *oldest
			evicted = &snap
		}
	}

	req := &Request{
		ID:        uuid.NewString(),
		Intent:    intent,
		Reason:    reason,
		State:     StatePending,
		CreatedAt: w.now(),
		ExpiresAt: w.now().Add(ttl),
		done:      make(chan struct{}),
	}
	w.pending[req.ID] = req
	w.order = append(w.order, req.ID)
	snapshot := *req
	w.mu.Unlock()

	if evicted != nil {
		w.safeCall(w.onResolved, *evicted)
	}
	w.safeCall(w.onQueued, snapshot)
	return snapshot
}

// WaitForApproval blocks until the request resolves, the timeout elapses
// (request is expired in that case), or ctx is cancelled (the underlying
// request is left untouched for another waiter or the sweeper).
func (w *Workflow) WaitForApproval(ctx context.Context, id string, timeout time.Duration) (Request, error) {
	w.mu.Lock()
	req, ok := w.pending[id]
	if !ok {
		for _, h := range w.history {
			if h.ID == id {
				snap := *h
				w.mu.Unlock()
				return snap, nil
			}
		}
		w.mu.Unlock()
		return Request{}, ErrNotFound
	}
	done := req.done
	w.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return w.snapshotOrHistory(id), nil
	case <-timer.C:
		w.mu.Lock()
		if p, stillPending := w.pending[id]; stillPending {
			w.resolveLocked(p, StateExpired, "")
		}
		w.mu.Unlock()
		return w.snapshotOrHistory(id), nil
	case <-ctx.Done():
		return Request{}, ctx.Err()
	}
}

func (w *Workflow) snapshotOrHistory(id string) Request {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pending[id]; ok {
		return *p
	}
	for _, h := range w.history {
		if h.ID == id {
			return *h
		}
	}
	return Request{}
}

// Resolve transitions a pending request to APPROVED or REJECTED by resolver.
func (w *Workflow) Resolve(id string, approve bool, resolver string) error {
	w.mu.Lock()
	req, ok := w.pending[id]
	if !ok {
		w.mu.Unlock()
		return ErrNotFound
	}
	state := StateRejected
	if approve {
		state = StateApproved
	}
	w.resolveLocked(req, state, resolver)
	snapshot := *req
	w.mu.Unlock()
	w.safeCall(w.onResolved, snapshot)
	return nil
}

// Cancel transitions a pending request to CANCELLED.
func (w *Workflow) Cancel(id string) error {
	w.mu.Lock()
	req, ok := w.pending[id]
	if !ok {
		w.mu.Unlock()
		return ErrNotFound
	}
	w.resolveLocked(req, StateCancelled, "")
	snapshot := *req
	w.mu.Unlock()
	w.safeCall(w.onResolved, snapshot)
	return nil
}

// resolveLocked moves req from pending to history and releases its waiter.
// Callers hold w.mu.
func (w *Workflow) resolveLocked(req *Request, state State, resolver string) {
	req.State = state
	req.Resolver = resolver
	req.ResolvedAt = w.now()
	delete(w.pending, req.ID)
	for i, id := range w.order {
		if id == req.ID {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	close(req.done)
	w.history = append(w.history, req)
	if len(w.history) > w.historyCap {
		w.history = w.history[len(w.history)-w.historyCap:]
	}
}

// SweepExpired runs one pass, expiring every pending request past its
// deadline. Intended to run on a periodic background task.
func (w *Workflow) SweepExpired() {
	w.mu.Lock()
	now := w.now()
	var expired []Request
	for _, id := range append([]string{}, w.order...) {
		req, ok := w.pending[id]
		if !ok {
			continue
		}
		if now.After(req.ExpiresAt) {
			w.resolveLocked(req, StateExpired, "")
			expired = append(expired, *req)
		}
	}
	w.mu.Unlock()
	for _, req := range expired {
		w.safeCall(w.onResolved, req)
	}
}

func (w *Workflow) safeCall(fn func(Request), req Request) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("approval: notification callback panicked", "request_id", req.ID, "panic", r)
		}
	}()
	fn(req)
}
