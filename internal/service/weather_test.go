package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nycdash/nyc-dashboard/internal/cache"
	"github.com/nycdash/nyc-dashboard/internal/health"
	"github.com/nycdash/nyc-dashboard/internal/models"
)

type mockWeatherClient struct {
	currentFn     func(ctx context.Context) (models.WeatherSnapshot, error)
	forecastFn    func(ctx context.Context, days int) (models.Forecast, error)
	currentCalls  int
	forecastCalls int
}

func (m *mockWeatherClient) Current(ctx context.Context) (models.WeatherSnapshot, error) {
	m.currentCalls++
	return m.currentFn(ctx)
}

func (m *mockWeatherClient) Forecast(ctx context.Context, days int) (models.Forecast, error) {
	m.forecastCalls++
	return m.forecastFn(ctx, days)
}

func (m *mockWeatherClient) ValidateAPIKey(ctx context.Context) error { return nil }

func newWeatherService(client *mockWeatherClient, ttl, staleMax time.Duration) *WeatherService {
	return NewWeatherService(client,
		cache.NewMemoryCache[models.WeatherSnapshot](),
		cache.NewMemoryCache[models.Forecast](),
		"10022", ttl, ttl, staleMax, nil)
}

// TestWeatherService_Current_FetchesOnceThenServesCached verifies the
// cache-aside path: first call hits upstream, second is served from cache.
func TestWeatherService_Current_FetchesOnceThenServesCached(t *testing.T) {
	defer health.Reset()
	client := &mockWeatherClient{
		currentFn: func(ctx context.Context) (models.WeatherSnapshot, error) {
			return models.WeatherSnapshot{Location: "New York", TempC: 21.5, Timestamp: time.Now()}, nil
		},
	}
	svc := newWeatherService(client, time.Minute, time.Hour)

	first, err := svc.Current(context.Background())
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	second, err := svc.Current(context.Background())
	if err != nil {
		t.Fatalf("Current() error = %v on cached call", err)
	}
	if client.currentCalls != 1 {
		t.Errorf("upstream calls = %d, want 1", client.currentCalls)
	}
	if first.TempC != second.TempC || second.Stale {
		t.Errorf("cached snapshot = %+v, want fresh copy of first", second)
	}
}

// TestWeatherService_Current_StaleFallback verifies that an upstream failure
// serves an expired cache entry marked stale.
func TestWeatherService_Current_StaleFallback(t *testing.T) {
	defer health.Reset()
	client := &mockWeatherClient{
		currentFn: func(ctx context.Context) (models.WeatherSnapshot, error) {
			return models.WeatherSnapshot{}, errors.New("upstream down")
		},
	}
	svc := newWeatherService(client, time.Minute, time.Hour)

	seeded := models.WeatherSnapshot{Location: "New York", TempC: 18.0, Timestamp: time.Now()}
	if err := svc.current.Set(context.Background(), "current:10022", seeded, time.Nanosecond); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	got, err := svc.Current(context.Background())
	if err != nil {
		t.Fatalf("Current() error = %v, want stale fallback", err)
	}
	if !got.Stale {
		t.Error("snapshot not marked stale")
	}
	if got.TempC != seeded.TempC {
		t.Errorf("TempC = %v, want seeded %v", got.TempC, seeded.TempC)
	}
}

// TestWeatherService_Current_ErrorWithoutStale verifies the error surfaces
// when upstream fails and nothing is cached.
func TestWeatherService_Current_ErrorWithoutStale(t *testing.T) {
	defer health.Reset()
	client := &mockWeatherClient{
		currentFn: func(ctx context.Context) (models.WeatherSnapshot, error) {
			return models.WeatherSnapshot{}, errors.New("upstream down")
		},
	}
	svc := newWeatherService(client, time.Minute, time.Hour)

	if _, err := svc.Current(context.Background()); err == nil {
		t.Fatal("Current() error = nil with failed upstream and empty cache, want error")
	}
}

// TestWeatherService_Current_StaleFallbackDisabled verifies staleMax=0 turns
// the fallback off even when an expired entry exists.
func TestWeatherService_Current_StaleFallbackDisabled(t *testing.T) {
	defer health.Reset()
	client := &mockWeatherClient{
		currentFn: func(ctx context.Context) (models.WeatherSnapshot, error) {
			return models.WeatherSnapshot{}, errors.New("upstream down")
		},
	}
	svc := newWeatherService(client, time.Minute, 0)

	seeded := models.WeatherSnapshot{Location: "New York", Timestamp: time.Now()}
	if err := svc.current.Set(context.Background(), "current:10022", seeded, time.Nanosecond); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := svc.Current(context.Background()); err == nil {
		t.Fatal("Current() error = nil with fallback disabled, want error")
	}
}

// TestWeatherService_Forecast_CachesPerDayCount verifies forecasts for
// different day counts are cached independently.
func TestWeatherService_Forecast_CachesPerDayCount(t *testing.T) {
	defer health.Reset()
	client := &mockWeatherClient{
		forecastFn: func(ctx context.Context, days int) (models.Forecast, error) {
			return models.Forecast{Location: "New York", Timestamp: time.Now()}, nil
		},
	}
	svc := newWeatherService(client, time.Minute, time.Hour)

	ctx := context.Background()
	if _, err := svc.Forecast(ctx, 3); err != nil {
		t.Fatalf("Forecast(3) error = %v", err)
	}
	if _, err := svc.Forecast(ctx, 5); err != nil {
		t.Fatalf("Forecast(5) error = %v", err)
	}
	if _, err := svc.Forecast(ctx, 3); err != nil {
		t.Fatalf("Forecast(3) error = %v on cached call", err)
	}
	if client.forecastCalls != 2 {
		t.Errorf("upstream calls = %d, want 2 (one per day count)", client.forecastCalls)
	}
}

// TestWeatherService_Forecast_StaleFallback verifies the forecast path also
// serves expired entries on upstream failure.
func TestWeatherService_Forecast_StaleFallback(t *testing.T) {
	defer health.Reset()
	client := &mockWeatherClient{
		forecastFn: func(ctx context.Context, days int) (models.Forecast, error) {
			return models.Forecast{}, errors.New("upstream down")
		},
	}
	svc := newWeatherService(client, time.Minute, time.Hour)

	seeded := models.Forecast{Location: "New York", Timestamp: time.Now()}
	if err := svc.forecast.Set(context.Background(), "forecast:10022:3", seeded, time.Nanosecond); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	got, err := svc.Forecast(context.Background(), 3)
	if err != nil {
		t.Fatalf("Forecast() error = %v, want stale fallback", err)
	}
	if !got.Stale {
		t.Error("forecast not marked stale")
	}
}
