package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// period boundaries are wall-clock, UTC (spec.md §9 open question: pick UTC
// day boundaries unless a venue requires otherwise).

func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfWeekUTC(t time.Time) time.Time {
	d := startOfDayUTC(t)
	// ISO week starts Monday; time.Weekday Sunday=0.
	offset := int(d.Weekday())
	if offset == 0 {
		offset = 7
	}
	return d.AddDate(0, 0, -(offset - 1))
}

func startOfMonthUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// SpendTracker accumulates buy notional against rolling daily/weekly/monthly
// windows, resetting at the next UTC day/week/month boundary.
type SpendTracker struct {
	mu sync.Mutex

	daily   decimal.Decimal
	weekly  decimal.Decimal
	monthly decimal.Decimal

	dayAnchor   time.Time
	weekAnchor  time.Time
	monthAnchor time.Time

	now func() time.Time
}

func NewSpendTracker() *SpendTracker {
	now := time.Now
	t := now()
	return &SpendTracker{
		dayAnchor:   startOfDayUTC(t),
		weekAnchor:  startOfWeekUTC(t),
		monthAnchor: startOfMonthUTC(t),
		now:         now,
	}
}

func (s *SpendTracker) rollLocked() {
	t := s.now()
	if d := startOfDayUTC(t); d.After(s.dayAnchor) {
		s.daily = decimal.Zero
		s.dayAnchor = d
	}
	if w := startOfWeekUTC(t); w.After(s.weekAnchor) {
		s.weekly = decimal.Zero
		s.weekAnchor = w
	}
	if m := startOfMonthUTC(t); m.After(s.monthAnchor) {
		s.monthly = decimal.Zero
		s.monthAnchor = m
	}
}

// Record adds notional to all three rolling windows.
func (s *SpendTracker) Record(notional decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollLocked()
	s.daily = s.daily.Add(notional)
	s.weekly = s.weekly.Add(notional)
	s.monthly = s.monthly.Add(notional)
}

// Remaining returns (daily, weekly, monthly) headroom given the configured
// limits; a zero limit is treated as "no limit" (infinite headroom).
func (s *SpendTracker) Remaining(limits Limits) (daily, weekly, monthly decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollLocked()
	daily = headroom(limits.DailySpendLimit, s.daily)
	weekly = headroom(limits.WeeklySpendLimit, s.weekly)
	monthly = headroom(limits.MonthlySpendLimit, s.monthly)
	return
}

func headroom(limit, used decimal.Decimal) decimal.Decimal {
	if limit.IsZero() {
		return decimal.NewFromInt(1 << 30)
	}
	return limit.Sub(used)
}

// LossTracker maintains the equity high-water mark and daily/weekly realized
// P&L deltas, rolling over at UTC period boundaries.
type LossTracker struct {
	mu sync.Mutex

	peakEquity decimal.Decimal

	dailyStartEquity  decimal.Decimal
	weeklyStartEquity decimal.Decimal

	dayAnchor  time.Time
	weekAnchor time.Time

	now func() time.Time
}

func NewLossTracker(initialEquity decimal.Decimal) *LossTracker {
	now := time.Now
	t := now()
	return &LossTracker{
		peakEquity:        initialEquity,
		dailyStartEquity:  initialEquity,
		weeklyStartEquity: initialEquity,
		dayAnchor:         startOfDayUTC(t),
		weekAnchor:        startOfWeekUTC(t),
		now:               now,
	}
}

// UpdateEquity records the latest equity figure, advancing the high-water
// mark and rolling period baselines forward at boundaries.
func (l *LossTracker) UpdateEquity(equity decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := l.now()
	if d := startOfDayUTC(t); d.After(l.dayAnchor) {
		l.dayAnchor = d
		l.dailyStartEquity = equity
	}
	if w := startOfWeekUTC(t); w.After(l.weekAnchor) {
		l.weekAnchor = w
		l.weeklyStartEquity = equity
	}
	if equity.GreaterThan(l.peakEquity) {
		l.peakEquity = equity
	}
}

// Snapshot is a consistent, lock-free copy of tracker state for readers.
type LossSnapshot struct {
	PeakEquity   decimal.Decimal
	DailyPnL     decimal.Decimal
	WeeklyPnL    decimal.Decimal
	DrawdownPct  decimal.Decimal
}

func (l *LossTracker) Snapshot(currentEquity decimal.Decimal) LossSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	var drawdown decimal.Decimal
	if l.peakEquity.IsPositive() {
		drawdown = l.peakEquity.Sub(currentEquity).Div(l.peakEquity)
	}
	return LossSnapshot{
		PeakEquity:  l.peakEquity,
		DailyPnL:    currentEquity.Sub(l.dailyStartEquity),
		WeeklyPnL:   currentEquity.Sub(l.weeklyStartEquity),
		DrawdownPct: drawdown,
	}
}

func (l *LossTracker) PeakEquity() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peakEquity
}
