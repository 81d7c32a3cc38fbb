package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nycdash/nyc-dashboard/internal/cache"
	"github.com/nycdash/nyc-dashboard/internal/health"
	"github.com/nycdash/nyc-dashboard/internal/models"
	"github.com/nycdash/nyc-dashboard/internal/observability"
	"github.com/nycdash/nyc-dashboard/internal/weather"
)

// WeatherService serves current conditions and the forecast using a
// cache-aside pattern. A fresh cache entry short-circuits the upstream call;
// an upstream failure falls back to a stale entry when one exists within
// staleMax, marked Stale for the UI.
type WeatherService struct {
	client      weather.Client
	current     cache.Cache[models.WeatherSnapshot]
	forecast    cache.Cache[models.Forecast]
	zip         string
	ttl         time.Duration
	forecastTTL time.Duration
	staleMax    time.Duration
	logger      *zap.Logger

	coalesceCurrent  *coalescer[models.WeatherSnapshot]
	coalesceForecast *coalescer[models.Forecast]
}

// NewWeatherService creates a WeatherService. ttl is how long a fetched
// snapshot stays fresh, forecastTTL the same for forecasts; staleMax bounds
// the stale fallback window (0 disables the fallback).
func NewWeatherService(client weather.Client, current cache.Cache[models.WeatherSnapshot], forecast cache.Cache[models.Forecast], zip string, ttl, forecastTTL, staleMax time.Duration, logger *zap.Logger) *WeatherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if forecastTTL <= 0 {
		forecastTTL = ttl
	}
	return &WeatherService{
		client:           client,
		current:          current,
		forecast:         forecast,
		zip:              zip,
		ttl:              ttl,
		forecastTTL:      forecastTTL,
		staleMax:         staleMax,
		logger:           logger,
		coalesceCurrent:  newCoalescer[models.WeatherSnapshot](10 * time.Second),
		coalesceForecast: newCoalescer[models.Forecast](10 * time.Second),
	}
}

// Current returns the current conditions for the configured ZIP code.
func (s *WeatherService) Current(ctx context.Context) (models.WeatherSnapshot, error) {
	key := "current:" + s.zip

	if cached, ok, err := s.current.Get(ctx, key); err == nil && ok {
		observability.CacheHitsTotal.WithLabelValues("weather").Inc()
		return cached, nil
	}

	snapshot, err := s.coalesceCurrent.Do(ctx, key, func() (models.WeatherSnapshot, error) {
		return s.client.Current(ctx)
	})
	if err != nil {
		health.RecordError(health.SourceWeather)
		if stale, ok := s.staleCurrent(ctx, key); ok {
			s.logger.Warn("weather fetch failed, serving stale snapshot",
				zap.Error(err), zap.Duration("age", time.Since(stale.Timestamp)))
			return stale, nil
		}
		return models.WeatherSnapshot{}, fmt.Errorf("fetch current weather: %w", err)
	}

	health.RecordSuccess(health.SourceWeather)
	if setErr := s.current.Set(ctx, key, snapshot, s.ttl); setErr != nil {
		s.logger.Warn("weather cache write failed", zap.Error(setErr))
	}
	return snapshot, nil
}

// Forecast returns the hourly and daily forecast for the configured ZIP code.
func (s *WeatherService) Forecast(ctx context.Context, days int) (models.Forecast, error) {
	key := fmt.Sprintf("forecast:%s:%d", s.zip, days)

	if cached, ok, err := s.forecast.Get(ctx, key); err == nil && ok {
		observability.CacheHitsTotal.WithLabelValues("forecast").Inc()
		return cached, nil
	}

	forecast, err := s.coalesceForecast.Do(ctx, key, func() (models.Forecast, error) {
		return s.client.Forecast(ctx, days)
	})
	if err != nil {
		health.RecordError(health.SourceWeather)
		if s.staleMax > 0 {
			if stale, ok, staleErr := s.forecast.GetStale(ctx, key, s.staleMax); staleErr == nil && ok {
				observability.StaleServesTotal.WithLabelValues("forecast").Inc()
				stale.Stale = true
				s.logger.Warn("forecast fetch failed, serving stale forecast", zap.Error(err))
				return stale, nil
			}
		}
		return models.Forecast{}, fmt.Errorf("fetch forecast: %w", err)
	}

	health.RecordSuccess(health.SourceWeather)
	if setErr := s.forecast.Set(ctx, key, forecast, s.forecastTTL); setErr != nil {
		s.logger.Warn("forecast cache write failed", zap.Error(setErr))
	}
	return forecast, nil
}

func (s *WeatherService) staleCurrent(ctx context.Context, key string) (models.WeatherSnapshot, bool) {
	if s.staleMax <= 0 {
		return models.WeatherSnapshot{}, false
	}
	stale, ok, err := s.current.GetStale(ctx, key, s.staleMax)
	if err != nil || !ok {
		return models.WeatherSnapshot{}, false
	}
	observability.StaleServesTotal.WithLabelValues("weather").Inc()
	stale.Stale = true
	return stale, true
}
