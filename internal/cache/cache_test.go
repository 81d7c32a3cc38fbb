package cache

import (
	"context"
	"testing"
	"time"

	"github.com/nycdash/nyc-dashboard/internal/models"
)

// TestEnvelope_FreshBoundary verifies the freshness rule: an entry is fresh
// while age <= TTL and stale exactly when age exceeds it.
func TestEnvelope_FreshBoundary(t *testing.T) {
	now := time.Now()
	fetched := now.Add(-time.Minute)
	e := envelope[int]{FetchedAt: fetched, ExpiresAt: fetched.Add(time.Minute)}

	if !e.fresh(now) {
		t.Error("fresh() = false at age == TTL, want true")
	}
	if e.fresh(now.Add(time.Nanosecond)) {
		t.Error("fresh() = true at age > TTL, want false")
	}
}

// TestEnvelope_StaleWindow verifies GetStale age accounting against FetchedAt.
func TestEnvelope_StaleWindow(t *testing.T) {
	now := time.Now()
	e := envelope[int]{FetchedAt: now.Add(-10 * time.Minute), ExpiresAt: now.Add(-5 * time.Minute)}

	if !e.withinStaleWindow(now, 15*time.Minute) {
		t.Error("withinStaleWindow(15m) = false for 10m-old entry, want true")
	}
	if e.withinStaleWindow(now, 5*time.Minute) {
		t.Error("withinStaleWindow(5m) = true for 10m-old entry, want false")
	}
}

// TestMemoryCache_GetSet verifies that Set stores values and Get retrieves
// them correctly with the expected data.
func TestMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[models.WeatherSnapshot]()

	val := models.WeatherSnapshot{Location: "New York", TempC: 12.5}
	if err := c.Set(ctx, "current:10022", val, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "current:10022")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Location != val.Location || got.TempC != val.TempC {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
}

// TestMemoryCache_Get_Miss verifies that Get returns ok=false when
// the requested key does not exist in cache.
func TestMemoryCache_Get_Miss(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[models.WeatherSnapshot]()

	_, ok, err := c.Get(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestMemoryCache_Get_Expired verifies that Get reports a miss for expired
// entries while GetStale still serves them within the stale window.
func TestMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[models.WeatherSnapshot]()

	val := models.WeatherSnapshot{Location: "New York"}
	if err := c.Set(ctx, "current:10022", val, time.Nanosecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(ctx, "current:10022")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true for expired entry, want false")
	}

	stale, ok, err := c.GetStale(ctx, "current:10022", time.Minute)
	if err != nil {
		t.Fatalf("GetStale() error = %v", err)
	}
	if !ok {
		t.Fatal("GetStale() ok = false within stale window, want true")
	}
	if stale.Location != val.Location {
		t.Errorf("GetStale() = %+v, want %+v", stale, val)
	}
}

// TestMemoryCache_GetStale_BeyondWindow verifies that entries older than
// maxStaleAge are not served and are dropped.
func TestMemoryCache_GetStale_BeyondWindow(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[models.WeatherSnapshot]()

	if err := c.Set(ctx, "current:10022", models.WeatherSnapshot{}, time.Nanosecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.GetStale(ctx, "current:10022", time.Nanosecond)
	if err != nil {
		t.Fatalf("GetStale() error = %v", err)
	}
	if ok {
		t.Error("GetStale() ok = true beyond stale window, want false")
	}
}

// TestMemoryCache_Set_Overwrite verifies that Set replaces the previous entry.
func TestMemoryCache_Set_Overwrite(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[models.WeatherSnapshot]()

	if err := c.Set(ctx, "k", models.WeatherSnapshot{TempC: 1}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := c.Set(ctx, "k", models.WeatherSnapshot{TempC: 2}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, _ := c.Get(ctx, "k")
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.TempC != 2 {
		t.Errorf("Get().TempC = %v after overwrite, want 2", got.TempC)
	}
}
