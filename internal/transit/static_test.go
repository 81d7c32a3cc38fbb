package transit

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nycdash/nyc-dashboard/internal/cache"
)

func buildStaticZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

const stopsCSV = `stop_id,stop_name,stop_lat,stop_lon
630,51 St,40.757107,-73.97192
630N,51 St,40.757107,-73.97192
630S,51 St,40.757107,-73.97192
`

const routesCSV = `route_id,route_long_name,route_color
6,Lexington Av Local,00933C
E,8 Av Local,0039A6
`

// TestParseStaticZip verifies stops and routes extraction from the bundle.
func TestParseStaticZip(t *testing.T) {
	data := buildStaticZip(t, map[string]string{
		"stops.txt":  stopsCSV,
		"routes.txt": routesCSV,
		"other.txt":  "ignored",
	})

	bundle, err := parseStaticZip(data)
	if err != nil {
		t.Fatalf("parseStaticZip() error = %v", err)
	}
	if len(bundle.Stations) != 3 {
		t.Fatalf("stations = %d, want 3", len(bundle.Stations))
	}
	if len(bundle.Routes) != 2 {
		t.Fatalf("routes = %d, want 2", len(bundle.Routes))
	}

	north := bundle.Stations[1]
	if north.StopID != "630N" || north.CoreID != "630" || north.Direction != "Northbound" {
		t.Errorf("station = %+v, want 630N/630/Northbound", north)
	}
	if north.Lat == 0 || north.Lon == 0 {
		t.Error("station coordinates not parsed")
	}
	if bundle.Routes[0].Color != "00933C" {
		t.Errorf("route color = %q, want 00933C", bundle.Routes[0].Color)
	}
}

// TestParseStaticZip_MissingFiles verifies that a bundle without the needed
// CSVs is rejected.
func TestParseStaticZip_MissingFiles(t *testing.T) {
	data := buildStaticZip(t, map[string]string{"stops.txt": stopsCSV})
	if _, err := parseStaticZip(data); err == nil {
		t.Fatal("parseStaticZip() error = nil for bundle without routes.txt, want error")
	}
}

// TestStationIndex_Load_DownloadsAndCaches verifies the download path and
// that a second Load is served without another download.
func TestStationIndex_Load_DownloadsAndCaches(t *testing.T) {
	data := buildStaticZip(t, map[string]string{
		"stops.txt":  stopsCSV,
		"routes.txt": routesCSV,
	})
	downloads := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downloads++
		_, _ = w.Write(data)
	}))
	defer server.Close()

	c := cache.NewMemoryCache[StaticBundle]()
	idx := NewStationIndex(server.URL, 2*time.Second, c, time.Hour, nil)

	bundle, err := idx.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(bundle.Stations) != 3 {
		t.Fatalf("stations = %d, want 3", len(bundle.Stations))
	}

	// New index over the same cache: must hit the cache, not the server.
	idx2 := NewStationIndex(server.URL, 2*time.Second, c, time.Hour, nil)
	if _, err := idx2.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v on cached bundle", err)
	}
	if downloads != 1 {
		t.Errorf("downloads = %d, want 1", downloads)
	}
}

// TestStationIndex_Load_RefreshesAfterMaxAge verifies that a long-lived index
// re-downloads the bundle once the in-memory copy exceeds maxAge instead of
// serving the first download forever.
func TestStationIndex_Load_RefreshesAfterMaxAge(t *testing.T) {
	data := buildStaticZip(t, map[string]string{
		"stops.txt":  stopsCSV,
		"routes.txt": routesCSV,
	})
	downloads := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downloads++
		_, _ = w.Write(data)
	}))
	defer server.Close()

	idx := NewStationIndex(server.URL, 2*time.Second, cache.NewMemoryCache[StaticBundle](), 20*time.Millisecond, nil)

	if _, err := idx.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := idx.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v on fresh bundle", err)
	}
	if downloads != 1 {
		t.Fatalf("downloads = %d before expiry, want 1", downloads)
	}

	time.Sleep(50 * time.Millisecond)
	if _, err := idx.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v after expiry", err)
	}
	if downloads != 2 {
		t.Errorf("downloads = %d after expiry, want 2", downloads)
	}
}

// TestStationIndex_Load_RefreshFailureKeepsBundle verifies that an expired
// index whose refresh download fails keeps serving the previous bundle.
func TestStationIndex_Load_RefreshFailureKeepsBundle(t *testing.T) {
	data := buildStaticZip(t, map[string]string{
		"stops.txt":  stopsCSV,
		"routes.txt": routesCSV,
	})
	downloads := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downloads++
		if downloads > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(data)
	}))
	defer server.Close()

	idx := NewStationIndex(server.URL, 2*time.Second, cache.NewMemoryCache[StaticBundle](), 20*time.Millisecond, nil)

	if _, err := idx.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	bundle, err := idx.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v, want previous bundle after failed refresh", err)
	}
	if len(bundle.Stations) != 3 {
		t.Errorf("stations = %d after failed refresh, want 3", len(bundle.Stations))
	}
	if downloads < 2 {
		t.Errorf("downloads = %d, want a refresh attempt after expiry", downloads)
	}
}

// TestStationIndex_Load_StaleFallback verifies that a failed download falls
// back to an expired cached bundle.
func TestStationIndex_Load_StaleFallback(t *testing.T) {
	c := cache.NewMemoryCache[StaticBundle]()
	if err := c.Set(context.Background(), staticBundleKey, testBundle(), time.Nanosecond); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	idx := NewStationIndex(server.URL, 2*time.Second, c, time.Hour, nil)
	bundle, err := idx.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v, want stale fallback", err)
	}
	if len(bundle.Stations) == 0 {
		t.Error("stale bundle has no stations")
	}
}

// TestStationIndex_Load_FailsWithoutCache verifies the error path when the
// download fails and nothing is cached.
func TestStationIndex_Load_FailsWithoutCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	idx := NewStationIndex(server.URL, 2*time.Second, cache.NewMemoryCache[StaticBundle](), time.Hour, nil)
	if _, err := idx.Load(context.Background()); err == nil {
		t.Fatal("Load() error = nil with failed download and empty cache, want error")
	}
}
