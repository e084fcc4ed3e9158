package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Search     SearchConfig     `yaml:"search"`
	Cache      CacheConfig      `yaml:"cache"`
	Occupancy  OccupancyConfig  `yaml:"occupancy"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Ingest     IngestConfig     `yaml:"ingest"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	QueryTimeoutSeconds    int    `yaml:"query_timeout_seconds"`
}

// SearchConfig holds the knobs of the nearby-spot search.
type SearchConfig struct {
	MaxRadiusMeters   float64 `yaml:"max_radius_meters"`
	DefaultRadius     float64 `yaml:"default_radius_meters"`
	MaxResults        int     `yaml:"max_results"`
	WalkPaceMetersMin float64 `yaml:"walk_pace_meters_per_min"`
	QueryTimeoutSecs  int     `yaml:"query_timeout_seconds"`
}

// CacheConfig holds the server-side cache settings.
type CacheConfig struct {
	TTLSeconds           int `yaml:"ttl_seconds"`
	PredictionTTLSeconds int `yaml:"prediction_ttl_seconds"`
}

// OccupancyConfig holds the occupancy estimator settings.
type OccupancyConfig struct {
	Step float64 `yaml:"step"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// IngestConfig holds the settings for the open-data catalog loader.
type IngestConfig struct {
	Enabled         bool          `yaml:"enabled"`
	URL             string        `yaml:"url"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields with sane defaults.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}

	if cfg.Database.QueryTimeoutSeconds <= 0 {
		cfg.Database.QueryTimeoutSeconds = 5
	}

	if cfg.Search.MaxRadiusMeters <= 0 {
		cfg.Search.MaxRadiusMeters = 5000
	}
	if cfg.Search.DefaultRadius <= 0 {
		cfg.Search.DefaultRadius = 500
	}
	if cfg.Search.MaxResults <= 0 {
		cfg.Search.MaxResults = 50
	}
	if cfg.Search.WalkPaceMetersMin <= 0 {
		cfg.Search.WalkPaceMetersMin = 80
	}
	if cfg.Search.QueryTimeoutSecs <= 0 {
		cfg.Search.QueryTimeoutSecs = 5
	}

	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = 120
	}
	if cfg.Cache.PredictionTTLSeconds <= 0 {
		cfg.Cache.PredictionTTLSeconds = 600
	}

	if cfg.Occupancy.Step <= 0 {
		cfg.Occupancy.Step = 0.1
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Ingest.IntervalSeconds <= 0 {
		cfg.Ingest.IntervalSeconds = 900
	}
	cfg.Ingest.Interval = time.Duration(cfg.Ingest.IntervalSeconds) * time.Second
}
