package http

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nycdash/nyc-dashboard/internal/models"
	"github.com/nycdash/nyc-dashboard/internal/validation"
)

// pageBase carries the fields every page template expects.
type pageBase struct {
	Title          string
	Active         string
	RefreshSeconds int
	Now            time.Time
}

type dashboardPage struct {
	pageBase
	Weather    models.WeatherSnapshot
	WeatherErr string
	Hours      []models.HourForecast
	Boards     []models.StationArrivals
	TransitErr string
}

type weatherPage struct {
	pageBase
	Weather     models.WeatherSnapshot
	WeatherErr  string
	Forecast    models.Forecast
	ForecastErr string
}

type subwayPage struct {
	pageBase
	Pinned    []models.StationConfig
	Query     string
	Results   []models.Station
	SearchErr string
}

// dashboardHours caps the hourly strip on the main page.
const dashboardHours = 5

func (h *Handler) base(title, active string) pageBase {
	return pageBase{
		Title:          title,
		Active:         active,
		RefreshSeconds: int(h.refreshInterval.Seconds()),
		Now:            time.Now(),
	}
}

// Dashboard handles GET /. Upstream failures render as inline errors; the
// page itself always comes back 200.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	page := dashboardPage{pageBase: h.base("Home", "dashboard")}

	if snapshot, err := h.weather.Current(r.Context()); err != nil {
		page.WeatherErr = "Weather is unavailable right now."
	} else {
		page.Weather = snapshot
	}
	if forecast, err := h.weather.Forecast(r.Context(), 2); err == nil {
		page.Hours = forecast.Hourly
		if len(page.Hours) > dashboardHours {
			page.Hours = page.Hours[:dashboardHours]
		}
	}

	page.Boards = h.transit.Board(r.Context(), h.store.List())
	allFailed := len(page.Boards) > 0
	for _, b := range page.Boards {
		if len(b.Northbound) > 0 || len(b.Southbound) > 0 || len(b.FailedLines) < len(b.Station.Lines) {
			allFailed = false
			break
		}
	}
	if allFailed {
		page.TransitErr = "Train arrivals are unavailable right now."
	}

	h.render(w, "dashboard", page)
}

// WeatherPage handles GET /weather.
func (h *Handler) WeatherPage(w http.ResponseWriter, r *http.Request) {
	page := weatherPage{pageBase: h.base("Weather", "weather")}

	if snapshot, err := h.weather.Current(r.Context()); err != nil {
		page.WeatherErr = "Weather is unavailable right now."
	} else {
		page.Weather = snapshot
	}
	if forecast, err := h.weather.Forecast(r.Context(), h.forecastDays); err != nil {
		page.ForecastErr = "Forecast is unavailable right now."
	} else {
		page.Forecast = forecast
	}

	h.render(w, "weather", page)
}

// SubwayPage handles GET /subway.
func (h *Handler) SubwayPage(w http.ResponseWriter, r *http.Request) {
	page := subwayPage{
		pageBase: h.base("Subway", "subway"),
		Pinned:   h.store.List(),
	}

	if raw := r.URL.Query().Get("q"); strings.TrimSpace(raw) != "" {
		query, err := validation.StationQuery(raw)
		if err != nil {
			page.Query = strings.TrimSpace(raw)
			page.SearchErr = "That search has characters station names never use."
		} else {
			page.Query = query
			results, err := h.searchStations(r, query)
			if err != nil {
				page.SearchErr = "Station data is unavailable right now."
			} else {
				page.Results = results
			}
		}
	}

	h.render(w, "subway", page)
}

// render buffers the template output so a render failure can still produce a
// clean 500 instead of a half-written page.
func (h *Handler) render(w http.ResponseWriter, page string, data any) {
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, page, data); err != nil {
		h.logger.Error("page render failed", zap.String("page", page), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
