// Package builder runs the 60s health-check monitor: it probes every venue
// gateway's reachability and publishes a HealthCheck event per venue so
// subscribers (alerting, the kill switch) can react to a venue going dark.
// Adapted from the teacher's VolumeTracker Data-API polling shape (periodic
// ticker, Sync, mutex-guarded last-result cache) — the builder-program
// volume/leaderboard concern it tracked has no equivalent in this domain,
// so the ticker/Sync/cache skeleton was repurposed rather than the thing it
// polled.
package builder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tradingcore/riskcore/internal/broker"
	"github.com/tradingcore/riskcore/internal/events"
)

// VenueGateway pairs a gateway with the venue name used to tag health
// events.
type VenueGateway struct {
	Name    string
	Gateway broker.Gateway
}

type venueHealth struct {
	healthy            bool
	lastErr            error
	lastSync           time.Time
	consecutiveFailures int
}

// Monitor periodically probes every configured venue's gateway and
// publishes a HealthCheck event on every status change.
type Monitor struct {
	venues       []VenueGateway
	bus          *events.Bus
	syncInterval time.Duration
	logger       *slog.Logger

	mu     sync.RWMutex
	status map[string]venueHealth
}

// NewMonitor creates a Monitor that probes every venue at syncInterval.
func NewMonitor(venues []VenueGateway, bus *events.Bus, syncInterval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		venues:       venues,
		bus:          bus,
		syncInterval: syncInterval,
		logger:       logger.With("component", "health"),
		status:       make(map[string]venueHealth),
	}
}

// Sync probes every venue and publishes a HealthCheck event whenever a
// venue's health status flips.
func (m *Monitor) Sync(ctx context.Context) {
	for _, v := range m.venues {
		_, err := v.Gateway.Account(ctx)
		healthy := err == nil

		m.mu.Lock()
		prev := m.status[v.Name]
		next := venueHealth{healthy: healthy, lastErr: err, lastSync: time.Now()}
		if !healthy {
			next.consecutiveFailures = prev.consecutiveFailures + 1
		}
		changed := prev.lastSync.IsZero() || prev.healthy != healthy
		m.status[v.Name] = next
		m.mu.Unlock()

		if !healthy {
			m.logger.Warn("venue health probe failed", "venue", v.Name, "err", err, "consecutive_failures", next.consecutiveFailures)
		}
		if changed {
			errMsg := ""
			if err != nil {
				errMsg = err.Error()
			}
			m.bus.Publish(events.Event{
				Kind: events.KindHealthCheck,
				Payload: events.HealthCheck{
					Venue:          v.Name,
					Healthy:        healthy,
					Err:            errMsg,
					OccurredAtUnix: time.Now().Unix(),
				},
			})
		}
	}
}

// Healthy reports whether a venue's last probe succeeded.
func (m *Monitor) Healthy(venue string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status[venue].healthy
}

// ConsecutiveFailures returns the current failure streak for a venue.
func (m *Monitor) ConsecutiveFailures(venue string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status[venue].consecutiveFailures
}

// LastSync returns when a venue was last probed.
func (m *Monitor) LastSync(venue string) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status[venue].lastSync
}

// Run starts the periodic probe loop. Blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.Sync(ctx)

	ticker := time.NewTicker(m.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Sync(ctx)
		}
	}
}
