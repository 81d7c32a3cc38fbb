package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nycdash/nyc-dashboard/internal/models"
)

// Config holds dashboard configuration loaded from YAML and env.
type Config struct {
	ServerPort string `validate:"required"`

	ZIPCode         string        `validate:"required,len=5,numeric"`
	RefreshInterval time.Duration `validate:"min=5s"`
	ForecastDays    int           `validate:"min=1,max=10"`

	WeatherAPIKey     string
	WeatherAPIURL     string `validate:"required,url"`
	WeatherAPITimeout time.Duration

	TransitFeedBaseURL string `validate:"required,url"`
	TransitTimeout     time.Duration
	StaticGTFSURL      string `validate:"required,url"`
	StaticGTFSMaxAge   time.Duration

	CacheBackend string `validate:"oneof=file memory memcached"`
	CacheDir     string
	WeatherTTL   time.Duration
	ForecastTTL  time.Duration
	TransitTTL   time.Duration
	StaleMaxAge  time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	ArrivalsPerDirection int `validate:"min=1,max=20"`

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int
	RequestTimeout time.Duration

	ShutdownTimeout time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int

	DefaultStations []models.StationConfig `validate:"required,min=1,dive"`
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Dashboard struct {
		ZIPCode         string `yaml:"zip_code"`
		RefreshInterval string `yaml:"refresh_interval"`
		ForecastDays    int    `yaml:"forecast_days"`
	} `yaml:"dashboard"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Transit struct {
		FeedBaseURL      string `yaml:"feed_base_url"`
		Timeout          string `yaml:"timeout"`
		StaticGTFSURL    string `yaml:"static_gtfs_url"`
		StaticGTFSMaxAge string `yaml:"static_gtfs_max_age"`
		ArrivalsPerDir   int    `yaml:"arrivals_per_direction"`
	} `yaml:"transit"`

	Cache struct {
		Backend     string `yaml:"backend"`
		Dir         string `yaml:"dir"`
		WeatherTTL  string `yaml:"weather_ttl"`
		ForecastTTL string `yaml:"forecast_ttl"`
		TransitTTL  string `yaml:"transit_ttl"`
		StaleMaxAge string `yaml:"stale_max_age"`
		Memcached   struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		RequestTimeout   string `yaml:"request_timeout"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Stations []struct {
		ID    string   `yaml:"id"`
		Name  string   `yaml:"name"`
		Lines []string `yaml:"lines"`
	} `yaml:"stations"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// defaultStations are the stations pinned when neither the YAML config nor
// the persisted station file names any.
func defaultStations() []models.StationConfig {
	return []models.StationConfig{
		{ID: "630", Name: "51 St", Lines: []string{"6"}},
		{ID: "F12", Name: "5 Av/53 St", Lines: []string{"E", "M"}},
		{ID: "F11", Name: "Lexington Av/53 St", Lines: []string{"E", "M"}},
	}
}

// ErrMissingAPIKey is returned by Load, alongside an otherwise valid Config,
// when no weather API key is configured. Commands that never call the
// weather API may ignore it; the server treats it as fatal.
var ErrMissingAPIKey = errors.New("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")

// Load reads configuration from dir/config/{ENV_NAME}.yaml (default dev),
// dir/config/secrets.yaml, and the environment. A .env file in dir is loaded
// first when present. The API key comes from WEATHER_API_KEY env or the
// secrets file.
func Load(dir string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = envOr("PORT", fc.Server.Port, "8080")

	cfg.ZIPCode = envOr("ZIP_CODE", fc.Dashboard.ZIPCode, "10022")
	cfg.RefreshInterval = parseDuration(fc.Dashboard.RefreshInterval, 60*time.Second)
	cfg.ForecastDays = fc.Dashboard.ForecastDays
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = 3
	}

	cfg.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")
	if cfg.WeatherAPIKey == "" {
		key, err := readSecretKey(filepath.Join(dir, "config", "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.WeatherAPIKey = key
	}

	cfg.WeatherAPIURL = fc.WeatherAPI.URL
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://api.weatherapi.com/v1"
	}
	cfg.WeatherAPITimeout = parseDuration(fc.WeatherAPI.Timeout, 5*time.Second)

	cfg.TransitFeedBaseURL = fc.Transit.FeedBaseURL
	if cfg.TransitFeedBaseURL == "" {
		cfg.TransitFeedBaseURL = "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2F"
	}
	cfg.TransitTimeout = parseDuration(fc.Transit.Timeout, 10*time.Second)
	cfg.StaticGTFSURL = fc.Transit.StaticGTFSURL
	if cfg.StaticGTFSURL == "" {
		cfg.StaticGTFSURL = "http://web.mta.info/developers/data/nyct/subway/google_transit.zip"
	}
	cfg.StaticGTFSMaxAge = parseDuration(fc.Transit.StaticGTFSMaxAge, 24*time.Hour)
	cfg.ArrivalsPerDirection = fc.Transit.ArrivalsPerDir
	if cfg.ArrivalsPerDirection <= 0 {
		cfg.ArrivalsPerDirection = 5
	}

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(envOr("CACHE_BACKEND", fc.Cache.Backend, "file")))
	cfg.CacheDir = envOr("CACHE_DIR", fc.Cache.Dir, ".cache")
	cfg.WeatherTTL = parseDuration(fc.Cache.WeatherTTL, 5*time.Minute)
	cfg.ForecastTTL = parseDuration(fc.Cache.ForecastTTL, 30*time.Minute)
	cfg.TransitTTL = parseDuration(fc.Cache.TransitTTL, 30*time.Second)
	cfg.StaleMaxAge = parseDuration(fc.Cache.StaleMaxAge, 6*time.Hour)

	cfg.MemcachedAddrs = strings.TrimSpace(envOr("MEMCACHED_ADDRS", fc.Cache.Memcached.Addrs, "localhost:11211"))
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
	cfg.RequestTimeout = parseDuration(fc.Reliability.RequestTimeout, 15*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	for _, s := range fc.Stations {
		cfg.DefaultStations = append(cfg.DefaultStations, models.StationConfig{
			ID:    s.ID,
			Name:  s.Name,
			Lines: s.Lines,
		})
	}
	if len(cfg.DefaultStations) == 0 {
		cfg.DefaultStations = defaultStations()
	}

	if cfg.RequestTimeout <= cfg.TransitTimeout {
		cfg.RequestTimeout = cfg.TransitTimeout + time.Second
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if cfg.WeatherAPIKey == "" {
		return cfg, ErrMissingAPIKey
	}
	return cfg, nil
}

func readSecretKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return sec.WeatherAPIKey, nil
}

func envOr(envKey, fileVal, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		return v
	}
	if fileVal != "" {
		return fileVal
	}
	return defaultVal
}

// parseDuration parses a duration string and returns defaultVal when the
// string is empty, unparseable, or not positive.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
