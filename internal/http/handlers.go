package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nycdash/nyc-dashboard/internal/config"
	"github.com/nycdash/nyc-dashboard/internal/health"
	"github.com/nycdash/nyc-dashboard/internal/models"
	"github.com/nycdash/nyc-dashboard/internal/service"
	"github.com/nycdash/nyc-dashboard/internal/transit"
	"github.com/nycdash/nyc-dashboard/internal/validation"
	"github.com/nycdash/nyc-dashboard/internal/web"
)

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// CachePing, when set, is called to check cache reachability. Used when
	// the backend is memcached.
	CachePing func() error
	// KeyCheck, when set, validates the weather API key against the upstream.
	// Only run for deep health checks since it costs a live API call.
	KeyCheck func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather      *service.WeatherService
	transit      *service.TransitService
	stations     *transit.StationIndex
	store        *config.StationStore
	renderer     *web.Renderer
	healthConfig *HealthConfig
	logger       *zap.Logger

	refreshInterval time.Duration
	forecastDays    int

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	weather *service.WeatherService,
	transitSvc *service.TransitService,
	stations *transit.StationIndex,
	store *config.StationStore,
	renderer *web.Renderer,
	healthConfig *HealthConfig,
	refreshInterval time.Duration,
	forecastDays int,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weather:         weather,
		transit:         transitSvc,
		stations:        stations,
		store:           store,
		renderer:        renderer,
		healthConfig:    healthConfig,
		refreshInterval: refreshInterval,
		forecastDays:    forecastDays,
		logger:          logger,
	}
}

// GetWeather handles GET /api/weather.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.weather.Current(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// GetForecast handles GET /api/forecast?days=.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	days := h.forecastDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 10 {
			writeError(w, r, http.StatusBadRequest, "INVALID_DAYS", "days must be an integer between 1 and 10")
			return
		}
		days = n
	}
	forecast, err := h.weather.Forecast(r.Context(), days)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}

// GetArrivals handles GET /api/arrivals?station=&direction=&limit=&lines=.
// station names a pinned station by core id; lines overrides the pinned line
// list for ad-hoc queries.
func (h *Handler) GetArrivals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stationID := strings.TrimSpace(q.Get("station"))
	if stationID == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_STATION", "station is required")
		return
	}

	station, ok := h.pinnedStation(stationID)
	if lines := strings.TrimSpace(q.Get("lines")); lines != "" {
		station = models.StationConfig{ID: stationID, Name: stationID, Lines: splitLines(lines)}
		ok = true
	}
	if !ok {
		writeError(w, r, http.StatusNotFound, "UNKNOWN_STATION",
			"station is not pinned; pass lines= to query an arbitrary station")
		return
	}

	direction := strings.ToUpper(strings.TrimSpace(q.Get("direction")))
	if direction != "" && direction != "N" && direction != "S" {
		writeError(w, r, http.StatusBadRequest, "INVALID_DIRECTION", "direction must be N or S")
		return
	}

	board, err := h.transit.Arrivals(r.Context(), station)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if limit := parseLimit(q.Get("limit")); limit > 0 {
		board.Northbound = truncate(board.Northbound, limit)
		board.Southbound = truncate(board.Southbound, limit)
	}
	switch direction {
	case "N":
		board.Southbound = nil
	case "S":
		board.Northbound = nil
	}
	writeJSON(w, http.StatusOK, board)
}

// SearchStations handles GET /api/stations/search?q=.
func (h *Handler) SearchStations(w http.ResponseWriter, r *http.Request) {
	query, err := validation.StationQuery(r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	results, err := h.searchStations(r, query)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// GetStationConfig handles GET /api/config/stations.
func (h *Handler) GetStationConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.List())
}

// PutStationConfig handles PUT /api/config/stations. The body replaces the
// pinned station list wholesale.
func (h *Handler) PutStationConfig(w http.ResponseWriter, r *http.Request) {
	var stations []models.StationConfig
	if err := json.NewDecoder(r.Body).Decode(&stations); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "body must be a JSON array of stations")
		return
	}
	if err := h.store.Replace(stations); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}
	h.logger.Info("pinned stations replaced", zap.Int("count", len(stations)))
	writeJSON(w, http.StatusOK, stations)
}

// healthResult holds the computed health status for logging and response.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health. Passing deep=1 additionally validates the
// weather API key against the upstream.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	deep := r.URL.Query().Get("deep") != ""
	result, checks := h.computeHealthStatus(r.Context(), deep)

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "nyc-dashboard",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates shutdown state, per-source error windows,
// cache reachability, and (for deep checks) API key validity. Shutting-down
// wins over degraded; degraded means the key is invalid, an upstream source
// is unhealthy, or the cache is unreachable.
func (h *Handler) computeHealthStatus(ctx context.Context, deep bool) (healthResult, map[string]string) {
	checks := make(map[string]string)

	window := 60 * time.Second
	pct := 50
	if h.healthConfig != nil {
		if h.healthConfig.DegradedWindow > 0 {
			window = h.healthConfig.DegradedWindow
		}
		if h.healthConfig.DegradedErrorPct > 0 {
			pct = h.healthConfig.DegradedErrorPct
		}
	}

	unhealthy := false
	for _, source := range []string{health.SourceWeather, health.SourceTransit} {
		if health.Degraded(source, window, pct) {
			checks[source] = "unhealthy"
			unhealthy = true
		} else {
			checks[source] = "healthy"
		}
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
			unhealthy = true
		}
	}
	keyInvalid := false
	if deep && h.healthConfig != nil && h.healthConfig.KeyCheck != nil {
		if err := h.healthConfig.KeyCheck(ctx); err != nil {
			checks["weatherApiKey"] = "unhealthy"
			keyInvalid = true
		} else {
			checks["weatherApiKey"] = "healthy"
		}
	}

	if health.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}, checks
	}
	if keyInvalid {
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}, checks
	}
	if unhealthy {
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}, checks
	}
	return healthResult{"healthy", http.StatusOK, ""}, checks
}

func (h *Handler) pinnedStation(coreID string) (models.StationConfig, bool) {
	for _, s := range h.store.List() {
		if strings.EqualFold(s.ID, coreID) {
			return s, true
		}
	}
	return models.StationConfig{}, false
}

// searchStations matches by name first, then by stop id when the name search
// comes up empty and the query looks like an id fragment.
func (h *Handler) searchStations(r *http.Request, query string) ([]models.Station, error) {
	results, err := h.stations.SearchByName(r.Context(), query)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && len(query) <= 4 {
		return h.stations.SearchByID(r.Context(), query)
	}
	return results, nil
}

func splitLines(raw string) []string {
	parts := strings.Split(raw, ",")
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			lines = append(lines, p)
		}
	}
	return lines
}

func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0
	}
	return n
}

func truncate(arrivals []models.Arrival, limit int) []models.Arrival {
	if len(arrivals) > limit {
		return arrivals[:limit]
	}
	return arrivals
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error shape with code,
// message, and requestId (correlation ID) when present in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError writes a 503 for upstream failures.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch upstream data")
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
}
