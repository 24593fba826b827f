// Package forecast implements the cached forecast retrieval path: normalize
// a request into a fingerprint, serve fresh cached payloads, and collapse
// concurrent misses for the same fingerprint into one upstream fetch.
package forecast

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/meteoagent/weather-tool-service/internal/cache"
	"github.com/meteoagent/weather-tool-service/internal/meteoblue"
	"github.com/meteoagent/weather-tool-service/internal/observability"
)

// TTL is the fixed validity window for cached forecasts. Not configurable
// per request.
const TTL = 2 * time.Hour

// Service orchestrates forecast retrieval using a cache-aside pattern over
// the meteoblue client.
type Service struct {
	client meteoblue.Client
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

// NewService creates a forecast Service with the fixed 2-hour TTL.
func NewService(client meteoblue.Client, c cache.Cache, logger *zap.Logger) *Service {
	return &Service{
		client: client,
		cache:  c,
		ttl:    TTL,
		logger: logger,
	}
}

// GetOrFetch returns the forecast for req, serving a fresh cache entry when
// one exists. With bypass set it always fetches upstream, and the fresh
// result still overwrites the cache entry so later lookups benefit. Fetch
// failures propagate without touching cache state.
func (s *Service) GetOrFetch(ctx context.Context, req meteoblue.ForecastRequest, bypass bool) (meteoblue.ForecastPayload, error) {
	key := cache.Key(req)

	if bypass {
		observability.CacheBypassTotal.Inc()
		if s.logger != nil {
			s.logger.Debug("cache bypass requested", zap.String("key", key))
		}
		return s.fetchAndStore(ctx, key, req)
	}

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		// Backend trouble degrades to a miss rather than failing the request.
		if s.logger != nil {
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
	} else if ok {
		observability.CacheHitsTotal.Inc()
		if s.logger != nil {
			s.logger.Debug("forecast cache hit", zap.String("key", key))
		}
		return cached, nil
	}
	observability.CacheMissesTotal.Inc()

	// Concurrent misses for the same fingerprint share one upstream fetch.
	// Bypassed fetches never join this group; they must reach upstream.
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.fetchAndStore(ctx, key, req)
	})
	if err != nil {
		return meteoblue.ForecastPayload{}, err
	}
	return v.(meteoblue.ForecastPayload), nil
}

func (s *Service) fetchAndStore(ctx context.Context, key string, req meteoblue.ForecastRequest) (meteoblue.ForecastPayload, error) {
	start := time.Now()
	payload, err := s.client.Forecast(ctx, req)
	if err != nil {
		return meteoblue.ForecastPayload{}, fmt.Errorf("fetch forecast: %w", err)
	}

	if setErr := s.cache.Set(ctx, key, payload, s.ttl); setErr != nil {
		if s.logger != nil {
			s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
		}
	}
	if s.logger != nil {
		s.logger.Debug("forecast fetched",
			zap.String("key", key),
			zap.Duration("duration", time.Since(start)))
	}
	return payload, nil
}
