package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meteoagent/weather-tool-service/internal/cache"
	"github.com/meteoagent/weather-tool-service/internal/config"
	"github.com/meteoagent/weather-tool-service/internal/forecast"
	httphandler "github.com/meteoagent/weather-tool-service/internal/http"
	"github.com/meteoagent/weather-tool-service/internal/meteoblue"
	"github.com/meteoagent/weather-tool-service/internal/observability"
	"github.com/meteoagent/weather-tool-service/internal/tools"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	mbClient, err := meteoblue.NewHTTPClient(meteoblue.Config{
		APIKey:          cfg.MeteoblueAPIKey,
		ForecastBaseURL: cfg.ForecastBaseURL,
		ImageBaseURL:    cfg.ImageBaseURL,
		SearchBaseURL:   cfg.SearchBaseURL,
		Timeout:         cfg.UpstreamTimeout,
		RetryAttempts:   cfg.RetryAttempts,
		RetryBaseDelay:  cfg.RetryBaseDelay,
		RetryMaxDelay:   cfg.RetryMaxDelay,
	})
	if err != nil {
		logger.Fatal("meteoblue client", zap.Error(err))
	}

	var forecastCache cache.Cache
	var cachePing func() error
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		forecastCache = mc
		cachePing = mc.Ping
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		forecastCache = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	forecastService := forecast.NewService(mbClient, forecastCache, logger)

	if err := os.MkdirAll(cfg.ArtifactDir, 0o755); err != nil {
		logger.Fatal("artifact dir", zap.String("dir", cfg.ArtifactDir), zap.Error(err))
	}
	toolset := tools.NewToolset(forecastService, mbClient, cfg.ArtifactDir, logger)

	if cfg.WarmCache && len(cfg.WarmLocations) > 0 {
		locations := make([]cache.WarmLocation, len(cfg.WarmLocations))
		for i, l := range cfg.WarmLocations {
			locations[i] = cache.WarmLocation{Name: l.Name, Lat: l.Lat, Lon: l.Lon}
		}
		warmer := cache.NewWarmer(forecastService, logger)
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := warmer.Warm(warmCtx, locations); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(context.Background(), locations, cfg.WarmInterval); err != nil && err != context.Canceled {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	apiCheck := func(ctx context.Context) error {
		_, err := mbClient.SearchLocations(ctx, "Basel")
		return err
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(toolset, logger, cachePing, apiCheck)

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	toolRouter := router.PathPrefix("/tools").Subrouter()
	toolRouter.Use(httphandler.RateLimitMiddleware(limiter))
	toolRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	toolRouter.HandleFunc("/forecast", handler.PostForecast).Methods("POST")
	toolRouter.HandleFunc("/climate-image", handler.PostClimateImage).Methods("POST")
	toolRouter.HandleFunc("/search-location", handler.PostSearchLocation).Methods("POST")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	if err := observability.FlushTelemetry(shutdownCtx, logger); err != nil {
		logger.Error("flush telemetry", zap.Error(err))
	}
}
