package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	WeatherAPIKey       string
	WeatherHistoryURL   string
	WeatherForecastURL  string
	WeatherAPITimeout   time.Duration
	WeatherCity         string
	HistoryEarliestDate time.Time
	ForecastHorizonDays int

	CacheFilePath string
	CacheBackend  string // "file" or "memcached"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	MemcachedTTL          time.Duration

	DatasetPath string
	ModelLambda float64
	PrimeCache  bool

	RequestTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		HistoryURL          string `yaml:"history_url"`
		ForecastURL         string `yaml:"forecast_url"`
		Timeout             string `yaml:"timeout"`
		City                string `yaml:"city"`
		HistoryEarliestDate string `yaml:"history_earliest_date"`
		ForecastHorizonDays int    `yaml:"forecast_horizon_days"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		FilePath  string `yaml:"file_path"`
		Backend   string `yaml:"backend"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
			TTL          string `yaml:"ttl"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Model struct {
		DatasetPath string   `yaml:"dataset_path"`
		Lambda      *float64 `yaml:"lambda"`
		PrimeCache  *bool    `yaml:"prime_cache"`
	} `yaml:"model"`

	Reliability struct {
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// API key comes from WEATHER_API_KEY env or secrets file. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
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

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")
	if cfg.WeatherAPIKey == "" {
		secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
		secretsData, err := os.ReadFile(secretsPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read secrets file: %w", err)
			}
		} else {
			var sec secretsFile
			if err := yaml.Unmarshal(secretsData, &sec); err != nil {
				return nil, fmt.Errorf("parse secrets file: %w", err)
			}
			cfg.WeatherAPIKey = sec.WeatherAPIKey
		}
	}
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}

	cfg.WeatherHistoryURL = fc.WeatherAPI.HistoryURL
	if cfg.WeatherHistoryURL == "" {
		cfg.WeatherHistoryURL = "https://api.worldweatheronline.com/premium/v1/past-weather.ashx"
	}
	cfg.WeatherForecastURL = fc.WeatherAPI.ForecastURL
	if cfg.WeatherForecastURL == "" {
		cfg.WeatherForecastURL = "https://api.worldweatheronline.com/premium/v1/weather.ashx"
	}
	cfg.WeatherAPITimeout = parseDuration(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.WeatherCity = fc.WeatherAPI.City
	if cfg.WeatherCity == "" {
		cfg.WeatherCity = "Seoul"
	}
	cfg.HistoryEarliestDate = time.Date(2008, 7, 1, 0, 0, 0, 0, time.UTC)
	if s := strings.TrimSpace(fc.WeatherAPI.HistoryEarliestDate); s != "" {
		d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("weather_api.history_earliest_date %q: %w", s, err)
		}
		cfg.HistoryEarliestDate = d
	}
	cfg.ForecastHorizonDays = fc.WeatherAPI.ForecastHorizonDays
	if cfg.ForecastHorizonDays <= 0 {
		cfg.ForecastHorizonDays = 14
	}

	cfg.CacheFilePath = fc.Cache.FilePath
	if cfg.CacheFilePath == "" {
		cfg.CacheFilePath = "data/cache.csv"
	}
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "file"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.MemcachedTTL = parseDuration(fc.Cache.Memcached.TTL, 24*time.Hour)

	cfg.DatasetPath = fc.Model.DatasetPath
	if cfg.DatasetPath == "" {
		cfg.DatasetPath = "data/SeoulBikeData.csv"
	}
	cfg.ModelLambda = 1.0
	if fc.Model.Lambda != nil && *fc.Model.Lambda > 0 {
		cfg.ModelLambda = *fc.Model.Lambda
	}
	cfg.PrimeCache = true
	if fc.Model.PrimeCache != nil {
		cfg.PrimeCache = *fc.Model.PrimeCache
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 30*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
	cfg.DegradedWindow = parseDuration(fc.Reliability.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Reliability.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
// Used for parsing duration fields from YAML config with safe fallback to defaults.
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

// validate performs post-load validation of configuration values.
// The request timeout must leave room for at least one provider call plus
// handler work, so it is raised above the provider timeout when needed.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "file", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be file or memcached, got %q", cfg.CacheBackend)
	}
	return nil
}
