package weather

import (
	"time"

	"github.com/nycdash/nyc-dashboard/internal/models"
)

// apiResponse covers both current.json and forecast.json; forecast.json is a
// superset carrying the forecastday array.
type apiResponse struct {
	Location struct {
		Name   string `json:"name"`
		Region string `json:"region"`
	} `json:"location"`
	Current struct {
		LastUpdated string       `json:"last_updated"`
		TempC       float64      `json:"temp_c"`
		TempF       float64      `json:"temp_f"`
		FeelsLikeC  float64      `json:"feelslike_c"`
		Condition   apiCondition `json:"condition"`
		WindKph     float64      `json:"wind_kph"`
		WindDir     string       `json:"wind_dir"`
		PressureMb  float64      `json:"pressure_mb"`
		Humidity    int          `json:"humidity"`
		Cloud       int          `json:"cloud"`
		VisKm       float64      `json:"vis_km"`
		UV          float64      `json:"uv"`
		AirQuality  *struct {
			EPAIndex int     `json:"us-epa-index"`
			PM25     float64 `json:"pm2_5"`
			PM10     float64 `json:"pm10"`
			O3       float64 `json:"o3"`
			NO2      float64 `json:"no2"`
		} `json:"air_quality"`
	} `json:"current"`
	Forecast struct {
		ForecastDay []apiForecastDay `json:"forecastday"`
	} `json:"forecast"`
}

type apiCondition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
}

type apiForecastDay struct {
	Date string `json:"date"`
	Day  struct {
		MaxTempC   float64      `json:"maxtemp_c"`
		MinTempC   float64      `json:"mintemp_c"`
		AvgTempC   float64      `json:"avgtemp_c"`
		Condition  apiCondition `json:"condition"`
		RainChance int          `json:"daily_chance_of_rain"`
		MaxWindKph float64      `json:"maxwind_kph"`
		PrecipMm   float64      `json:"totalprecip_mm"`
		Humidity   int          `json:"avghumidity"`
		UV         float64      `json:"uv"`
	} `json:"day"`
	Hour []apiHour `json:"hour"`
}

type apiHour struct {
	Time       string       `json:"time"` // "2006-01-02 15:04" local to the location
	TempC      float64      `json:"temp_c"`
	TempF      float64      `json:"temp_f"`
	Condition  apiCondition `json:"condition"`
	RainChance int          `json:"chance_of_rain"`
	WindKph    float64      `json:"wind_kph"`
	WindDir    string       `json:"wind_dir"`
	Humidity   int          `json:"humidity"`
}

const hourTimeLayout = "2006-01-02 15:04"

func (c *APIClient) mapCurrent(resp *apiResponse) models.WeatherSnapshot {
	snap := models.WeatherSnapshot{
		Location:      resp.Location.Name,
		Region:        resp.Location.Region,
		LastUpdated:   resp.Current.LastUpdated,
		TempC:         resp.Current.TempC,
		TempF:         resp.Current.TempF,
		FeelsLikeC:    resp.Current.FeelsLikeC,
		Condition:     resp.Current.Condition.Text,
		ConditionIcon: resp.Current.Condition.Icon,
		WindKph:       resp.Current.WindKph,
		WindDir:       resp.Current.WindDir,
		PressureMb:    resp.Current.PressureMb,
		Humidity:      resp.Current.Humidity,
		Cloud:         resp.Current.Cloud,
		VisibilityKm:  resp.Current.VisKm,
		UV:            resp.Current.UV,
		Timestamp:     time.Now(),
	}
	if aq := resp.Current.AirQuality; aq != nil {
		snap.AirQuality = &models.AirQuality{
			EPAIndex: aq.EPAIndex,
			PM25:     aq.PM25,
			PM10:     aq.PM10,
			O3:       aq.O3,
			NO2:      aq.NO2,
		}
	}
	return snap
}

func (c *APIClient) mapForecast(resp *apiResponse, now time.Time) models.Forecast {
	fc := models.Forecast{
		Location:  resp.Location.Name,
		Region:    resp.Location.Region,
		Hourly:    selectHours(resp.Forecast.ForecastDay, now, c.loc),
		Timestamp: time.Now(),
	}
	for _, day := range resp.Forecast.ForecastDay {
		fc.Daily = append(fc.Daily, models.DayForecast{
			Date:          day.Date,
			MaxTempC:      day.Day.MaxTempC,
			MinTempC:      day.Day.MinTempC,
			AvgTempC:      day.Day.AvgTempC,
			Condition:     day.Day.Condition.Text,
			ConditionIcon: day.Day.Condition.Icon,
			RainChance:    day.Day.RainChance,
			MaxWindKph:    day.Day.MaxWindKph,
			PrecipMm:      day.Day.PrecipMm,
			Humidity:      day.Day.Humidity,
			UV:            day.Day.UV,
		})
	}
	return fc
}

// selectHours flattens forecast days into an ordered hourly sequence starting
// at the current hour: today's remaining hours first, then every hour of the
// following days. Unparseable hour timestamps are skipped.
func selectHours(days []apiForecastDay, now time.Time, loc *time.Location) []models.HourForecast {
	var out []models.HourForecast
	for i, day := range days {
		for _, h := range day.Hour {
			ts, err := time.ParseInLocation(hourTimeLayout, h.Time, loc)
			if err != nil {
				continue
			}
			if i == 0 && ts.Hour() < now.Hour() {
				continue
			}
			out = append(out, models.HourForecast{
				Time:       ts,
				TempC:      h.TempC,
				TempF:      h.TempF,
				Condition:  h.Condition.Text,
				RainChance: h.RainChance,
				WindKph:    h.WindKph,
				WindDir:    h.WindDir,
				Humidity:   h.Humidity,
			})
		}
	}
	return out
}
