// Package portfolio runs the periodic account/position broadcaster: every
// syncInterval it pulls an AccountSnapshot and position list from each
// venue gateway and publishes them on the event bus, independent of
// whatever (if anything) subscribes. Adapted from the teacher's
// PortfolioTracker Data-API poller: same mutex-guarded cache plus ticker
// loop, now pulling from broker.Gateway instead of the Polymarket Data API
// and fanning results out through events.Bus instead of caching them for a
// dashboard handler to poll.
package portfolio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tradingcore/riskcore/internal/broker"
	"github.com/tradingcore/riskcore/internal/events"
)

// VenueGateway pairs a gateway with the venue name to tag its snapshots.
type VenueGateway struct {
	Name    string
	Gateway broker.Gateway
}

// cachedAccount is the last-synced view for one venue.
type cachedAccount struct {
	account   broker.AccountSnapshot
	positions []broker.Position
	lastSync  time.Time
}

// Tracker periodically syncs account state for every configured venue and
// broadcasts it on the event bus.
type Tracker struct {
	venues       []VenueGateway
	bus          *events.Bus
	syncInterval time.Duration
	logger       *slog.Logger

	mu    sync.RWMutex
	cache map[string]cachedAccount
}

// NewTracker creates a Tracker that syncs every venue at syncInterval.
func NewTracker(venues []VenueGateway, bus *events.Bus, syncInterval time.Duration, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		venues:       venues,
		bus:          bus,
		syncInterval: syncInterval,
		logger:       logger.With("component", "portfolio"),
		cache:        make(map[string]cachedAccount),
	}
}

// Sync pulls account and position state from every venue and publishes an
// AccountSnapshot event per venue that succeeds.
func (t *Tracker) Sync(ctx context.Context) {
	for _, v := range t.venues {
		account, err := v.Gateway.Account(ctx)
		if err != nil {
			t.logger.Error("account sync failed", "venue", v.Name, "err", err)
			continue
		}
		positions, err := v.Gateway.Positions(ctx)
		if err != nil {
			t.logger.Error("positions sync failed", "venue", v.Name, "err", err)
			continue
		}

		t.mu.Lock()
		t.cache[v.Name] = cachedAccount{account: account, positions: positions, lastSync: time.Now()}
		t.mu.Unlock()

		t.bus.Publish(events.Event{
			Kind: events.KindAccountSnapshot,
			Payload: events.AccountSnapshot{
				Venue:          v.Name,
				Account:        account,
				Positions:      positions,
				OccurredAtUnix: time.Now().Unix(),
			},
		})
	}
}

// Account returns the last-synced account snapshot for a venue.
func (t *Tracker) Account(venue string) (broker.AccountSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.cache[venue]
	return c.account, ok
}

// Positions returns the last-synced positions for a venue.
func (t *Tracker) Positions(venue string) []broker.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cache[venue].positions
}

// LastSync returns when a venue was last successfully synced.
func (t *Tracker) LastSync(venue string) time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cache[venue].lastSync
}

// Run starts the periodic sync loop. Blocks until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	t.Sync(ctx)

	ticker := time.NewTicker(t.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.Sync(ctx)
		}
	}
}
