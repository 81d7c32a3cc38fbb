package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nycdash/nyc-dashboard/internal/models"
)

// TestFileCache_GetSet verifies the round trip through the on-disk entry file.
func TestFileCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache[models.Arrival](t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache() error = %v", err)
	}

	arrival := models.Arrival{RouteID: "6", TripID: "t1", StopID: "630N"}
	if err := c.Set(ctx, "arrivals:630:N", arrival, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "arrivals:630:N")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.RouteID != arrival.RouteID || got.StopID != arrival.StopID {
		t.Errorf("Get() = %+v, want %+v", got, arrival)
	}
}

// TestFileCache_SurvivesReopen verifies that a fresh entry written by one
// cache instance is readable by a new instance over the same directory.
func TestFileCache_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c1, err := NewFileCache[models.WeatherSnapshot](dir)
	if err != nil {
		t.Fatalf("NewFileCache() error = %v", err)
	}
	if err := c1.Set(ctx, "current:10022", models.WeatherSnapshot{Location: "New York"}, time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	c2, err := NewFileCache[models.WeatherSnapshot](dir)
	if err != nil {
		t.Fatalf("NewFileCache() error = %v", err)
	}
	got, ok, err := c2.Get(ctx, "current:10022")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false after reopen, want true")
	}
	if got.Location != "New York" {
		t.Errorf("Get().Location = %q, want %q", got.Location, "New York")
	}
}

// TestFileCache_CorruptFile verifies that an unparseable entry file is
// treated as a miss rather than an error.
func TestFileCache_CorruptFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, err := NewFileCache[models.WeatherSnapshot](dir)
	if err != nil {
		t.Fatalf("NewFileCache() error = %v", err)
	}

	path := filepath.Join(dir, sanitizeKey("current:10022")+".json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, ok, err := c.Get(ctx, "current:10022")
	if err != nil {
		t.Fatalf("Get() error = %v, want nil for corrupt file", err)
	}
	if ok {
		t.Error("Get() ok = true for corrupt file, want false")
	}
}

// TestFileCache_ExpiredServedStale verifies the expired-but-within-window path.
func TestFileCache_ExpiredServedStale(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache[models.WeatherSnapshot](t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache() error = %v", err)
	}

	if err := c.Set(ctx, "current:10022", models.WeatherSnapshot{Location: "New York"}, time.Nanosecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok, _ := c.Get(ctx, "current:10022"); ok {
		t.Error("Get() ok = true for expired entry, want false")
	}
	got, ok, err := c.GetStale(ctx, "current:10022", time.Minute)
	if err != nil {
		t.Fatalf("GetStale() error = %v", err)
	}
	if !ok {
		t.Fatal("GetStale() ok = false within window, want true")
	}
	if got.Location != "New York" {
		t.Errorf("GetStale().Location = %q, want %q", got.Location, "New York")
	}
}

// TestSanitizeKey verifies file-name mapping for typical cache keys.
func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"current:10022", "current_10022"},
		{"forecast:10022:3", "forecast_10022_3"},
		{"arrivals/630 N", "arrivals_630_N"},
		{"plain-key_1.v2", "plain-key_1.v2"},
	}
	for _, tc := range tests {
		if got := sanitizeKey(tc.in); got != tc.want {
			t.Errorf("sanitizeKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
