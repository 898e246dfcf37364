package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

const (
	minSampleSize  = 5
	breakerCooldown = 5 * time.Minute
)

type outcome struct {
	accepted bool
	slippagePct decimal.Decimal
}

// CircuitBreaker trips on elevated reject rate or average slippage over a
// bounded ring of recent submission outcomes.
type CircuitBreaker struct {
	mu sync.Mutex

	maxRejectRate decimal.Decimal
	maxSlippagePct decimal.Decimal
	windowSize    int

	ring      []outcome
	state     BreakerState
	openedAt  time.Time

	now func() time.Time
}

func NewCircuitBreaker(maxRejectRate, maxSlippagePct decimal.Decimal, windowSize int) *CircuitBreaker {
	if windowSize <= 0 {
		windowSize = 20
	}
	return &CircuitBreaker{
		maxRejectRate:  maxRejectRate,
		maxSlippagePct: maxSlippagePct,
		windowSize:     windowSize,
		state:          BreakerClosed,
		now:            time.Now,
	}
}

// RecordSuccess appends an accepted sample with observed slippage and
// re-evaluates the trip condition.
func (b *CircuitBreaker) RecordSuccess(slippagePct decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.push(outcome{accepted: true, slippagePct: slippagePct})
	if b.state == BreakerHalfOpen {
		b.state = BreakerClosed
		b.ring = nil
	} else {
		b.evaluateLocked()
	}
}

// RecordFailure appends a rejected sample.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.push(outcome{accepted: false})
	if b.state == BreakerHalfOpen {
		b.tripLocked()
		return
	}
	b.evaluateLocked()
}

func (b *CircuitBreaker) push(o outcome) {
	b.ring = append(b.ring, o)
	if len(b.ring) > b.windowSize {
		b.ring = b.ring[len(b.ring)-b.windowSize:]
	}
}

func (b *CircuitBreaker) evaluateLocked() {
	if len(b.ring) < minSampleSize {
		return
	}
	var rejects int
	slippageSum := decimal.Zero
	slippageN := 0
	for _, o := range b.ring {
		if !o.accepted {
			rejects++
		} else {
			slippageSum = slippageSum.Add(o.slippagePct)
			slippageN++
		}
	}
	rejectRate := decimal.NewFromInt(int64(rejects)).Div(decimal.NewFromInt(int64(len(b.ring))))
	tripOnReject := !b.maxRejectRate.IsZero() && rejectRate.GreaterThan(b.maxRejectRate)

	tripOnSlippage := false
	if slippageN > 0 && !b.maxSlippagePct.IsZero() {
		avgSlippage := slippageSum.Div(decimal.NewFromInt(int64(slippageN)))
		tripOnSlippage = avgSlippage.GreaterThan(b.maxSlippagePct)
	}

	if tripOnReject || tripOnSlippage {
		b.tripLocked()
	}
}

func (b *CircuitBreaker) tripLocked() {
	b.state = BreakerOpen
	b.openedAt = b.now()
}

// State returns the current state, transitioning OPEN -> HALF_OPEN once the
// cooldown has elapsed.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= breakerCooldown {
		b.state = BreakerHalfOpen
	}
	return b.state
}

// Reset manually clears the breaker to CLOSED and drops the outcome ring.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.ring = nil
}
