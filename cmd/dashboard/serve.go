package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nycdash/nyc-dashboard/internal/cache"
	"github.com/nycdash/nyc-dashboard/internal/config"
	"github.com/nycdash/nyc-dashboard/internal/health"
	httphandler "github.com/nycdash/nyc-dashboard/internal/http"
	"github.com/nycdash/nyc-dashboard/internal/models"
	"github.com/nycdash/nyc-dashboard/internal/observability"
	"github.com/nycdash/nyc-dashboard/internal/service"
	"github.com/nycdash/nyc-dashboard/internal/transit"
	"github.com/nycdash/nyc-dashboard/internal/weather"
	"github.com/nycdash/nyc-dashboard/internal/web"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

// cacheSet groups the typed cache instances sharing one backend.
type cacheSet struct {
	weather  cache.Cache[models.WeatherSnapshot]
	forecast cache.Cache[models.Forecast]
	arrivals cache.Cache[models.StationArrivals]
	static   cache.Cache[transit.StaticBundle]
	ping     func() error
	close    func() error
}

func buildCaches(cfg *config.Config, logger *zap.Logger) (*cacheSet, error) {
	switch cfg.CacheBackend {
	case "memory":
		logger.Info("cache backend: memory")
		return &cacheSet{
			weather:  cache.NewMemoryCache[models.WeatherSnapshot](),
			forecast: cache.NewMemoryCache[models.Forecast](),
			arrivals: cache.NewMemoryCache[models.StationArrivals](),
			static:   cache.NewMemoryCache[transit.StaticBundle](),
		}, nil

	case "memcached":
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		weatherC, err := cache.NewMemcachedCache[models.WeatherSnapshot](cfg.MemcachedAddrs, "weather", cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.StaleMaxAge)
		if err != nil {
			return nil, err
		}
		forecastC, err := cache.NewMemcachedCache[models.Forecast](cfg.MemcachedAddrs, "forecast", cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.StaleMaxAge)
		if err != nil {
			return nil, err
		}
		arrivalsC, err := cache.NewMemcachedCache[models.StationArrivals](cfg.MemcachedAddrs, "arrivals", cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.StaleMaxAge)
		if err != nil {
			return nil, err
		}
		staticC, err := cache.NewMemcachedCache[transit.StaticBundle](cfg.MemcachedAddrs, "gtfs", cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, 30*24*time.Hour)
		if err != nil {
			return nil, err
		}
		return &cacheSet{
			weather:  weatherC,
			forecast: forecastC,
			arrivals: arrivalsC,
			static:   staticC,
			ping:     weatherC.Ping,
			close: func() error {
				weatherC.Close()
				forecastC.Close()
				arrivalsC.Close()
				return staticC.Close()
			},
		}, nil

	default: // file
		logger.Info("cache backend: file", zap.String("dir", cfg.CacheDir))
		weatherC, err := cache.NewFileCache[models.WeatherSnapshot](filepath.Join(cfg.CacheDir, "weather"))
		if err != nil {
			return nil, err
		}
		forecastC, err := cache.NewFileCache[models.Forecast](filepath.Join(cfg.CacheDir, "forecast"))
		if err != nil {
			return nil, err
		}
		arrivalsC, err := cache.NewFileCache[models.StationArrivals](filepath.Join(cfg.CacheDir, "arrivals"))
		if err != nil {
			return nil, err
		}
		staticC, err := cache.NewFileCache[transit.StaticBundle](filepath.Join(cfg.CacheDir, "gtfs"))
		if err != nil {
			return nil, err
		}
		return &cacheSet{weather: weatherC, forecast: forecastC, arrivals: arrivalsC, static: staticC}, nil
	}
}

func runServe() error {
	logger, err := observability.NewLogger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(".")
	if err != nil {
		logger.Error("config", zap.Error(err))
		return err
	}

	weatherClient, err := weather.NewClient(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.ZIPCode,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Error("weather client", zap.Error(err))
		return err
	}

	realtime, err := transit.NewRealtimeClient(cfg.TransitFeedBaseURL, cfg.TransitTimeout)
	if err != nil {
		logger.Error("transit client", zap.Error(err))
		return err
	}

	caches, err := buildCaches(cfg, logger)
	if err != nil {
		logger.Error("cache backend", zap.Error(err))
		return err
	}

	stationIndex := transit.NewStationIndex(cfg.StaticGTFSURL, cfg.TransitTimeout, caches.static, cfg.StaticGTFSMaxAge, logger)

	weatherSvc := service.NewWeatherService(weatherClient, caches.weather, caches.forecast,
		cfg.ZIPCode, cfg.WeatherTTL, cfg.ForecastTTL, cfg.StaleMaxAge, logger)
	transitSvc := service.NewTransitService(realtime, caches.arrivals,
		cfg.TransitTTL, cfg.StaleMaxAge, cfg.ArrivalsPerDirection, logger)

	store := config.NewStationStore(filepath.Join(cfg.CacheDir, "stations.json"), cfg.DefaultStations)

	renderer, err := web.NewRenderer()
	if err != nil {
		logger.Error("templates", zap.Error(err))
		return err
	}

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		CachePing:        caches.ping,
		KeyCheck:         weatherClient.ValidateAPIKey,
	}

	handler := httphandler.NewHandler(weatherSvc, transitSvc, stationIndex, store, renderer,
		healthConfig, cfg.RefreshInterval, cfg.ForecastDays, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	tracker := &httphandler.InFlightTracker{}
	router := httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout, tracker)

	// Warm the station index so the first page load does not pay for the
	// static GTFS download.
	go func() {
		warmCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := stationIndex.Load(warmCtx); err != nil {
			logger.Warn("station index warmup failed", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	health.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", tracker.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := tracker.WaitForZero(waitCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", tracker.Count()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if caches.close != nil {
		if err := caches.close(); err != nil {
			logger.Error("cache close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
	return nil
}
