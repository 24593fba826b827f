package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// WarmLocation is one coordinate prefetched at startup when warming is on.
type WarmLocation struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

// Config holds service configuration loaded from .env, environment, and YAML.
type Config struct {
	ServerPort string

	MeteoblueAPIKey string
	ForecastBaseURL string
	ImageBaseURL    string
	SearchBaseURL   string

	UpstreamTimeout time.Duration
	RetryAttempts   int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration

	RequestTimeout time.Duration

	CacheBackend          string // "in_memory" or "memcached"
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	ArtifactDir string

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration

	WarmCache     bool
	WarmInterval  time.Duration
	WarmLocations []WarmLocation
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Meteoblue struct {
		ForecastURL string `yaml:"forecast_url"`
		ImageURL    string `yaml:"image_url"`
		SearchURL   string `yaml:"search_url"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"meteoblue"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Artifacts struct {
		Dir string `yaml:"dir"`
	} `yaml:"artifacts"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Warming struct {
		Enabled   bool           `yaml:"enabled"`
		Interval  string         `yaml:"interval"`
		Locations []WarmLocation `yaml:"locations"`
	} `yaml:"warming"`
}

type secretsFile struct {
	MeteoblueAPIKey string `yaml:"meteoblue_api_key"`
}

// Load reads configuration. Order: .env file (if any), then environment,
// then config/{ENV_NAME}.yaml (default dev) with config/secrets.yaml for the
// credential. The API key comes from METEOBLUE_API_KEY or the secrets file;
// its absence is a hard configuration error, never a silent failure.
func Load() (*Config, error) {
	_ = godotenv.Load() // absence of a .env file is fine

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}

	var fc fileConfig
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case os.IsNotExist(err):
		// env-only configuration is supported
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if v := os.Getenv("PORT"); v != "" {
		cfg.ServerPort = v
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.MeteoblueAPIKey = os.Getenv("METEOBLUE_API_KEY")
	if cfg.MeteoblueAPIKey == "" {
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
			cfg.MeteoblueAPIKey = sec.MeteoblueAPIKey
		}
	}
	if cfg.MeteoblueAPIKey == "" {
		return nil, fmt.Errorf("METEOBLUE_API_KEY required (set env, .env, or config/secrets.yaml meteoblue_api_key)")
	}

	cfg.ForecastBaseURL = fc.Meteoblue.ForecastURL
	cfg.ImageBaseURL = fc.Meteoblue.ImageURL
	cfg.SearchBaseURL = fc.Meteoblue.SearchURL
	cfg.UpstreamTimeout = parseDuration(fc.Meteoblue.Timeout, 10*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 30*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
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

	cfg.ArtifactDir = os.Getenv("ARTIFACT_DIR")
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = fc.Artifacts.Dir
	}
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = os.TempDir()
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

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.WarmCache = fc.Warming.Enabled
	cfg.WarmInterval = parseDuration(fc.Warming.Interval, 0)
	cfg.WarmLocations = fc.Warming.Locations

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if the
// string is empty, unparseable, or non-positive.
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

func validate(cfg *Config) error {
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.WarmCache && len(cfg.WarmLocations) == 0 {
		return fmt.Errorf("warming.enabled requires warming.locations")
	}
	if cfg.RequestTimeout <= cfg.UpstreamTimeout {
		cfg.RequestTimeout = cfg.UpstreamTimeout + time.Second
	}
	return nil
}
