package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/meteoagent/weather-tool-service/internal/meteoblue"
)

// MemcachedCache implements Cache using memcached. Payloads are JSON-encoded
// on the wire; memcached handles expiry and bounds memory by its own eviction.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Get retrieves the cached payload for key. A cache miss is (zero, false, nil);
// transport failures are returned as errors.
func (c *MemcachedCache) Get(ctx context.Context, key string) (meteoblue.ForecastPayload, bool, error) {
	item, err := c.client.Get(key)
	if err == memcache.ErrCacheMiss {
		return meteoblue.ForecastPayload{}, false, nil
	}
	if err != nil {
		return meteoblue.ForecastPayload{}, false, fmt.Errorf("memcached get: %w", err)
	}
	var payload meteoblue.ForecastPayload
	if err := json.Unmarshal(item.Value, &payload); err != nil {
		return meteoblue.ForecastPayload{}, false, fmt.Errorf("memcached decode: %w", err)
	}
	return payload, true, nil
}

// Set stores payload under key. TTLs of a day or more would flip memcached
// into absolute-timestamp mode, but forecast TTLs are hours, so seconds are
// passed directly.
func (c *MemcachedCache) Set(ctx context.Context, key string, payload meteoblue.ForecastPayload, ttl time.Duration) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("memcached encode: %w", err)
	}
	item := &memcache.Item{
		Key:        key,
		Value:      encoded,
		Expiration: int32(ttl.Seconds()),
	}
	if err := c.client.Set(item); err != nil {
		return fmt.Errorf("memcached set: %w", err)
	}
	return nil
}

// Ping checks memcached reachability for health reporting.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}
