package transit

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nycdash/nyc-dashboard/internal/cache"
	"github.com/nycdash/nyc-dashboard/internal/models"
	"github.com/nycdash/nyc-dashboard/internal/observability"
)

// StaticBundle is the parsed subset of the static GTFS zip the dashboard
// needs: station platforms and subway routes.
type StaticBundle struct {
	Stations []models.Station `json:"stations"`
	Routes   []models.Route   `json:"routes"`
}

const staticBundleKey = "gtfs-static"

// staticStaleMax bounds how old a cached bundle may be when the download
// fails. Station names change rarely, so a month-old copy beats no stations.
const staticStaleMax = 30 * 24 * time.Hour

// StationIndex loads the static GTFS bundle on first use, serves it from the
// cache while younger than maxAge, and refreshes it by re-downloading the zip.
type StationIndex struct {
	url    string
	client *http.Client
	cache  cache.Cache[StaticBundle]
	maxAge time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	bundle   *StaticBundle
	loadedAt time.Time
}

// NewStationIndex creates a StationIndex backed by the given cache. url
// defaults to the MTA bundle when empty.
func NewStationIndex(url string, timeout time.Duration, c cache.Cache[StaticBundle], maxAge time.Duration, logger *zap.Logger) *StationIndex {
	if url == "" {
		url = DefaultStaticGTFSURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StationIndex{
		url:    url,
		client: &http.Client{Timeout: timeout},
		cache:  c,
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
	}
}

// Load returns the station bundle, downloading it if the cached copy is
// missing or older than maxAge. The in-memory copy expires on the same
// schedule, so a long-running process re-downloads roughly once per maxAge.
// A failed refresh falls back to a stale cached copy, or to the previous
// in-memory bundle, rather than erroring.
func (i *StationIndex) Load(ctx context.Context) (*StaticBundle, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.bundle != nil && i.now().Sub(i.loadedAt) < i.maxAge {
		return i.bundle, nil
	}

	if cached, ok, err := i.cache.Get(ctx, staticBundleKey); err == nil && ok {
		observability.CacheHitsTotal.WithLabelValues("gtfs-static").Inc()
		i.bundle = &cached
		i.loadedAt = i.now()
		return i.bundle, nil
	}

	bundle, err := i.download(ctx)
	if err != nil {
		if stale, ok, staleErr := i.cache.GetStale(ctx, staticBundleKey, staticStaleMax); staleErr == nil && ok {
			observability.StaleServesTotal.WithLabelValues("gtfs-static").Inc()
			i.logger.Warn("static GTFS download failed, using stale bundle", zap.Error(err))
			i.bundle = &stale
			i.loadedAt = i.now()
			return i.bundle, nil
		}
		if i.bundle != nil {
			i.logger.Warn("static GTFS refresh failed, keeping previous bundle", zap.Error(err))
			i.loadedAt = i.now()
			return i.bundle, nil
		}
		return nil, err
	}

	if err := i.cache.Set(ctx, staticBundleKey, *bundle, i.maxAge); err != nil {
		i.logger.Warn("static GTFS cache write failed", zap.Error(err))
	}
	i.bundle = bundle
	i.loadedAt = i.now()
	return i.bundle, nil
}

func (i *StationIndex) download(ctx context.Context) (*StaticBundle, error) {
	i.logger.Info("downloading static GTFS bundle", zap.String("url", i.url))

	req, err := http.NewRequestWithContext(ctx, "GET", i.url, nil)
	if err != nil {
		observability.TransitStaticDownloadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		observability.TransitStaticDownloadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("download static GTFS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		observability.TransitStaticDownloadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("download static GTFS: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.TransitStaticDownloadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read static GTFS: %w", err)
	}

	bundle, err := parseStaticZip(body)
	if err != nil {
		observability.TransitStaticDownloadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	observability.TransitStaticDownloadsTotal.WithLabelValues("success").Inc()
	i.logger.Info("static GTFS bundle loaded",
		zap.Int("stations", len(bundle.Stations)),
		zap.Int("routes", len(bundle.Routes)))
	return bundle, nil
}

func parseStaticZip(data []byte) (*StaticBundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open static GTFS zip: %w", err)
	}

	bundle := &StaticBundle{}
	stopsFound, routesFound := false, false
	for _, f := range zr.File {
		switch f.Name {
		case "stops.txt":
			rows, err := readCSVFile(f)
			if err != nil {
				return nil, fmt.Errorf("parse stops.txt: %w", err)
			}
			bundle.Stations = parseStops(rows)
			stopsFound = true
		case "routes.txt":
			rows, err := readCSVFile(f)
			if err != nil {
				return nil, fmt.Errorf("parse routes.txt: %w", err)
			}
			bundle.Routes = parseRoutes(rows)
			routesFound = true
		}
	}
	if !stopsFound {
		return nil, fmt.Errorf("static GTFS zip missing stops.txt")
	}
	if !routesFound {
		return nil, fmt.Errorf("static GTFS zip missing routes.txt")
	}
	return bundle, nil
}

func readCSVFile(f *zip.File) ([]map[string]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	r.FieldsPerRecord = -1 // agencies pad rows inconsistently
	header, err := r.Read()
	if err != nil {
		return nil, err
	}
	var rows []map[string]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseStops(rows []map[string]string) []models.Station {
	stations := make([]models.Station, 0, len(rows))
	for _, row := range rows {
		stopID := row["stop_id"]
		if stopID == "" {
			continue
		}
		lat, _ := strconv.ParseFloat(row["stop_lat"], 64)
		lon, _ := strconv.ParseFloat(row["stop_lon"], 64)
		name := row["stop_name"]
		stations = append(stations, models.Station{
			StopID:    stopID,
			CoreID:    CoreStationID(stopID),
			Name:      name,
			CleanName: CleanStationName(name),
			Direction: DirectionFromStopID(stopID),
			Lat:       lat,
			Lon:       lon,
		})
	}
	return stations
}

func parseRoutes(rows []map[string]string) []models.Route {
	routes := make([]models.Route, 0, len(rows))
	for _, row := range rows {
		if row["route_id"] == "" {
			continue
		}
		routes = append(routes, models.Route{
			ID:       row["route_id"],
			LongName: row["route_long_name"],
			Color:    row["route_color"],
		})
	}
	return routes
}
