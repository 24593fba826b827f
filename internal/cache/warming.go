package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meteoagent/weather-tool-service/internal/meteoblue"
	"github.com/meteoagent/weather-tool-service/internal/observability"
)

// ForecastFetcher is implemented by the forecast service. Declared here so
// the warmer can go through the service (and thus prime real fingerprints)
// without a circular dependency on the forecast package.
type ForecastFetcher interface {
	GetOrFetch(ctx context.Context, req meteoblue.ForecastRequest, bypass bool) (meteoblue.ForecastPayload, error)
}

// WarmLocation is one coordinate to prefetch during cache warming.
type WarmLocation struct {
	Name string
	Lat  float64
	Lon  float64
}

// Warmer prefetches the daily forecast for a list of locations so the first
// real tool call finds a fresh entry.
type Warmer struct {
	fetcher ForecastFetcher
	logger  *zap.Logger
}

// NewWarmer creates a Warmer that uses the given fetcher and logger.
func NewWarmer(fetcher ForecastFetcher, logger *zap.Logger) *Warmer {
	return &Warmer{fetcher: fetcher, logger: logger}
}

// Warm fetches each location concurrently through the forecast service.
// Returns an aggregated error if any location failed.
func (w *Warmer) Warm(ctx context.Context, locations []WarmLocation) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming forecast cache", zap.Int("locations", len(locations)))
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(locations))
	for _, loc := range locations {
		loc := loc
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := meteoblue.ForecastRequest{
				Lat:      loc.Lat,
				Lon:      loc.Lon,
				Packages: []meteoblue.ForecastPackage{meteoblue.PackageBasicDay},
				Format:   meteoblue.FormatJSON,
			}
			if _, err := w.fetcher.GetOrFetch(ctx, req, false); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", loc.Name, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("forecast cache warming complete",
			zap.Int("locations", len(locations)),
			zap.Int("errors", len(errs)),
			zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %v", errs)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval
// until ctx is done.
func (w *Warmer) WarmPeriodic(ctx context.Context, locations []WarmLocation, interval time.Duration) error {
	if err := w.Warm(ctx, locations); err != nil && w.logger != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, locations); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
