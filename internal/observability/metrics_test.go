package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies that all Prometheus metrics can be used without
// panic, ensuring label dimensions match usage across the weather, transit,
// http, and service packages.
func TestMetrics_Usable(t *testing.T) {
	// Route uses path template to avoid cardinality (e.g. /api/arrivals not /api/arrivals?station=630)
	HTTPRequestsTotal.WithLabelValues("GET", "/api/weather", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/api/weather").Observe(0.01)
	HTTPRequestsInFlight.Inc()
	HTTPRequestsInFlight.Dec()
	WeatherAPICallsTotal.WithLabelValues("current", "success").Inc()
	WeatherAPICallsTotal.WithLabelValues("forecast", "error").Inc()
	WeatherAPIDuration.WithLabelValues("current", "success").Observe(0.1)
	WeatherAPIRetriesTotal.Inc()
	TransitFeedFetchesTotal.WithLabelValues("gtfs-ace", "success").Inc()
	TransitFeedDuration.WithLabelValues("gtfs-ace").Observe(0.2)
	TransitFeedDecodeErrorsTotal.Inc()
	TransitStaticDownloadsTotal.WithLabelValues("success").Inc()
	CacheHitsTotal.WithLabelValues("weather").Inc()
	CacheHitsTotal.WithLabelValues("transit").Inc()
	StaleServesTotal.WithLabelValues("weather").Inc()
	RateLimitDeniedTotal.Inc()
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, name := range []string{"httpRequestsTotal", "weatherApiCallsTotal", "transitFeedFetchesTotal", "cacheHitsTotal"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}
