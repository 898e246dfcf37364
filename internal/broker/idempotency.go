package broker

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// IdempotencyMap maps a caller-assigned client order key to the broker order
// id it produced. It is shared between REST callers and, indirectly, the
// trading-events stream reader (which may learn of an order before the REST
// submit call returns). A single read-write mutex guards the map; singleflight
// coalesces concurrent submissions under the same key into one in-flight
// REST call, so a race between two callers never double-submits.
type IdempotencyMap struct {
	mu    sync.RWMutex
	byKey map[string]string // clientKey -> brokerOrderID
	group singleflight.Group
}

// NewIdempotencyMap creates an empty map.
func NewIdempotencyMap() *IdempotencyMap {
	return &IdempotencyMap{byKey: make(map[string]string)}
}

// EnsureKey returns intent's client key, assigning a fresh UUID if the
// caller did not supply one.
func EnsureKey(key string) string {
	if key != "" {
		return key
	}
	return uuid.NewString()
}

// Lookup returns the cached broker order id for key, if any.
func (m *IdempotencyMap) Lookup(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[key]
	return id, ok
}

// Record associates key with a broker order id, overwriting any prior value.
// The gateway calls this both after a fresh submit and after recovering a
// key from a "duplicate submission" rejection.
func (m *IdempotencyMap) Record(key, brokerOrderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byKey[key] = brokerOrderID
}

// SubmitOnce runs submit() at most once concurrently per key: if key is
// already cached, submit() is skipped and the cached id returned; if a
// submission for key is already in flight, the caller waits for it instead
// of issuing a second REST call.
func (m *IdempotencyMap) SubmitOnce(ctx context.Context, key string, submit func(ctx context.Context) (string, error)) (string, error) {
	if id, ok := m.Lookup(key); ok {
		return id, nil
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		if id, ok := m.Lookup(key); ok {
			return id, nil
		}
		id, err := submit(ctx)
		if err != nil {
			return "", err
		}
		m.Record(key, id)
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
