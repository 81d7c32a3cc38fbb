package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nycdash/nyc-dashboard/internal/observability"
	"github.com/nycdash/nyc-dashboard/internal/web"
)

// NewRouter wires the pages, the JSON API, and the operational endpoints.
// The rate limit and request timeout apply to pages and API only; /health and
// /metrics stay reachable under load.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration, tracker *InFlightTracker) *mux.Router {
	r := mux.NewRouter()
	r.Use(CorrelationIDMiddleware(logger))
	r.Use(MetricsMiddleware(tracker))

	r.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(web.StaticHandler()).Methods(http.MethodGet)

	app := r.NewRoute().Subrouter()
	app.Use(RateLimitMiddleware(limiter))
	if requestTimeout > 0 {
		app.Use(TimeoutMiddleware(requestTimeout))
	}

	app.HandleFunc("/", h.Dashboard).Methods(http.MethodGet)
	app.HandleFunc("/weather", h.WeatherPage).Methods(http.MethodGet)
	app.HandleFunc("/subway", h.SubwayPage).Methods(http.MethodGet)

	app.HandleFunc("/api/weather", h.GetWeather).Methods(http.MethodGet)
	app.HandleFunc("/api/forecast", h.GetForecast).Methods(http.MethodGet)
	app.HandleFunc("/api/arrivals", h.GetArrivals).Methods(http.MethodGet)
	app.HandleFunc("/api/stations/search", h.SearchStations).Methods(http.MethodGet)
	app.HandleFunc("/api/config/stations", h.GetStationConfig).Methods(http.MethodGet)
	app.HandleFunc("/api/config/stations", h.PutStationConfig).Methods(http.MethodPut)

	return r
}
