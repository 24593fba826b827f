package cache

import (
	"context"
	"sync"
	"time"

	"github.com/meteoagent/weather-tool-service/internal/meteoblue"
)

// Cache defines the interface for forecast payload caching backends.
// Get returns the cached payload if present and not expired; Set stores a
// payload with a TTL, replacing any prior entry wholesale.
type Cache interface {
	Get(ctx context.Context, key string) (meteoblue.ForecastPayload, bool, error)
	Set(ctx context.Context, key string, payload meteoblue.ForecastPayload, ttl time.Duration) error
}

// InMemoryCache implements Cache with a mutex-guarded map. Expired entries
// are removed lazily on access; there is no background sweep and no capacity
// bound. Safe for concurrent use.
type InMemoryCache struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time
}

type entry struct {
	payload   meteoblue.ForecastPayload
	createdAt time.Time
	expiresAt time.Time
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]entry),
		now:  time.Now,
	}
}

// Get retrieves the cached payload for key if present and fresh. An entry is
// fresh strictly less than its TTL after creation; an entry found at or past
// expiry is deleted and reported as a miss.
func (c *InMemoryCache) Get(ctx context.Context, key string) (meteoblue.ForecastPayload, bool, error) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return meteoblue.ForecastPayload{}, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		// re-check: another goroutine may have replaced the entry
		if cur, ok := c.data[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return meteoblue.ForecastPayload{}, false, nil
	}
	return e.payload, true, nil
}

// Set stores payload under key with the given TTL, overwriting any existing
// entry whether expired or not.
func (c *InMemoryCache) Set(ctx context.Context, key string, payload meteoblue.ForecastPayload, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.data[key] = entry{
		payload:   payload,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Clear empties the cache. Intended for tests that need isolation between cases.
func (c *InMemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]entry)
}

// Len reports the number of entries, including any not yet lazily expired.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
