// Package events implements the typed event bus consumed by pluggable
// subscribers (alert delivery, dashboards, journaling). It replaces the
// nullable-callback-field shape with a single publish/subscribe surface;
// subscriber panics and errors are isolated and never propagate into the
// core (spec: "callback exceptions are logged and never propagate").
package events

import (
	"log/slog"
	"sync"

	"github.com/tradingcore/riskcore/internal/broker"
	"github.com/tradingcore/riskcore/internal/drawdown"
)

// Kind identifies an event variant on the bus.
type Kind string

const (
	KindAlert               Kind = "alert"
	KindApprovalNeeded      Kind = "approval_needed"
	KindApprovalResolved    Kind = "approval_resolved"
	KindDrawdownLevelChange Kind = "drawdown_level_change"
	KindLiquidationRequired Kind = "liquidation_required"
	KindAccountSnapshot     Kind = "account_snapshot"
	KindHealthCheck         Kind = "health_check"
)

// Event wraps a typed payload with its kind.
type Event struct {
	Kind    Kind
	Payload any
}

// Subscriber receives events published to the bus.
type Subscriber func(Event)

// Bus is a simple fan-out publisher. All subscriber invocations are
// synchronous with respect to Publish but isolated from each other: one
// subscriber panicking does not stop the others from running, and does not
// propagate to the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Kind][]Subscriber
	logger      *slog.Logger
}

// NewBus creates an empty event bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[Kind][]Subscriber),
		logger:      logger.With("component", "events"),
	}
}

// Subscribe registers fn to be called for every event of the given kind.
func (b *Bus) Subscribe(kind Kind, fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[kind] = append(b.subscribers[kind], fn)
}

// Publish fans an event out to all subscribers of its kind.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subscribers[ev.Kind]...)
	b.mu.RUnlock()

	for _, fn := range subs {
		b.safeCall(fn, ev)
	}
}

func (b *Bus) safeCall(fn Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked", "kind", ev.Kind, "panic", r)
		}
	}()
	fn(ev)
}

// Alert is the typed payload for KindAlert.
type Alert struct {
	Type           string
	Priority       Priority
	Value          string
	Threshold      string
	Symbol         string // empty for portfolio-scope alerts
	Acknowledged   bool
	OccurredAtUnix int64
}

// Priority ranks an alert's severity.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// DrawdownLevelChange is the typed payload for KindDrawdownLevelChange.
type DrawdownLevelChange struct {
	Old string
	New string
}

// AccountSnapshot is the typed payload for KindAccountSnapshot, emitted by
// the 5s broadcaster for every venue it syncs.
type AccountSnapshot struct {
	Venue          string
	Account        broker.AccountSnapshot
	Positions      []broker.Position
	OccurredAtUnix int64
}

// HealthCheck is the typed payload for KindHealthCheck, emitted by the 60s
// health-check monitor for every venue it probes.
type HealthCheck struct {
	Venue          string
	Healthy        bool
	Err            string
	OccurredAtUnix int64
}

// ApprovalNeeded is the typed payload for KindApprovalNeeded, emitted when
// the approval workflow queues a request a human must act on.
type ApprovalNeeded struct {
	RequestID      string
	Symbol         string
	Side           broker.Side
	Quantity       int64
	Reason         string
	OccurredAtUnix int64
}

// ApprovalResolved is the typed payload for KindApprovalResolved, emitted
// when a pending request leaves the PENDING state (approved, rejected,
// expired, or cancelled).
type ApprovalResolved struct {
	RequestID      string
	State          string
	Resolver       string
	OccurredAtUnix int64
}

// LiquidationRequired is the typed payload for KindLiquidationRequired,
// emitted when the drawdown protector enters CRITICAL or EMERGENCY with a
// non-empty advisory liquidation plan.
type LiquidationRequired struct {
	Level          string
	Orders         []drawdown.LiquidationOrder
	OccurredAtUnix int64
}
