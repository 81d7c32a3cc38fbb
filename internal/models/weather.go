package models

import "time"

// WeatherSnapshot is the current conditions for the configured ZIP code.
// Immutable once fetched; a refresh replaces the whole value.
type WeatherSnapshot struct {
	Location      string      `json:"location"`
	Region        string      `json:"region"`
	LastUpdated   string      `json:"lastUpdated"`
	TempC         float64     `json:"tempC"`
	TempF         float64     `json:"tempF"`
	FeelsLikeC    float64     `json:"feelsLikeC"`
	Condition     string      `json:"condition"`
	ConditionIcon string      `json:"conditionIcon,omitempty"`
	WindKph       float64     `json:"windKph"`
	WindDir       string      `json:"windDir"`
	PressureMb    float64     `json:"pressureMb"`
	Humidity      int         `json:"humidity"`
	Cloud         int         `json:"cloud"`
	VisibilityKm  float64     `json:"visibilityKm"`
	UV            float64     `json:"uv"`
	AirQuality    *AirQuality `json:"airQuality,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
	Stale         bool        `json:"stale,omitempty"` // Indicates data served from stale cache
}

// AirQuality holds the pollutant readings returned when aqi=yes is requested.
type AirQuality struct {
	EPAIndex int     `json:"epaIndex"`
	PM25     float64 `json:"pm25"`
	PM10     float64 `json:"pm10"`
	O3       float64 `json:"o3,omitempty"`
	NO2      float64 `json:"no2,omitempty"`
}

// EPADescription maps a US EPA air quality index (1-6) to its descriptive text.
func EPADescription(index int) string {
	switch index {
	case 1:
		return "Good"
	case 2:
		return "Moderate"
	case 3:
		return "Unhealthy for sensitive groups"
	case 4:
		return "Unhealthy"
	case 5:
		return "Very Unhealthy"
	case 6:
		return "Hazardous"
	default:
		return "Unknown"
	}
}

// HourForecast is one hourly entry in the short-range forecast.
type HourForecast struct {
	Time       time.Time `json:"time"`
	TempC      float64   `json:"tempC"`
	TempF      float64   `json:"tempF"`
	Condition  string    `json:"condition"`
	RainChance int       `json:"rainChance"`
	WindKph    float64   `json:"windKph"`
	WindDir    string    `json:"windDir"`
	Humidity   int       `json:"humidity"`
}

// DayForecast is one daily entry in the multi-day forecast.
type DayForecast struct {
	Date       string  `json:"date"`
	MaxTempC   float64 `json:"maxTempC"`
	MinTempC   float64 `json:"minTempC"`
	AvgTempC   float64 `json:"avgTempC"`
	Condition  string  `json:"condition"`
	ConditionIcon string `json:"conditionIcon,omitempty"`
	RainChance int     `json:"rainChance"`
	MaxWindKph float64 `json:"maxWindKph"`
	PrecipMm   float64 `json:"precipMm"`
	Humidity   int     `json:"humidity"`
	UV         float64 `json:"uv"`
}

// Forecast holds ordered hourly and daily entries for the configured location.
// Hourly starts at the current hour and runs forward across day boundaries.
type Forecast struct {
	Location  string         `json:"location"`
	Region    string         `json:"region"`
	Hourly    []HourForecast `json:"hourly"`
	Daily     []DayForecast  `json:"daily"`
	Timestamp time.Time      `json:"timestamp"`
	Stale     bool           `json:"stale,omitempty"`
}
