package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the MatchIntel server.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Engine    EngineConfig
	Video     VideoConfig
	Jobs      JobsConfig
	Artifacts ArtifactsConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

// StoreConfig selects the job store backend.
type StoreConfig struct {
	Backend    string
	SQLitePath string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL                string
	ResultTTL          time.Duration
	RateLimitPerMinute int
}

type EngineConfig struct {
	Provider       string
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	Mock           MockEngineConfig
}

// MockEngineConfig drives the simulated engine used in development.
type MockEngineConfig struct {
	StepDelay time.Duration
}

type VideoConfig struct {
	Backend     string
	BaseURL     string
	DatabaseURL string
	Timeout     time.Duration
}

type JobsConfig struct {
	AnalysisMaxDuration time.Duration
	ExportMaxDuration   time.Duration
	TransientRetryLimit int
	WorkerPoolSize      int
	WorkerQueueSize     int
}

type ArtifactsConfig struct {
	Dir string
}

var (
	validStoreBackends = map[string]bool{"postgres": true, "sqlite": true, "memory": true}
	validEngines       = map[string]bool{"http": true, "mock": true}
	validVideoBackends = map[string]bool{"http": true, "postgres": true}
)

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("MATCHINTEL_PORT", 8080),
			Env:  envString("MATCHINTEL_ENV", "development"),
		},
		Store: StoreConfig{
			Backend:    envString("STORE_BACKEND", "postgres"),
			SQLitePath: envString("SQLITE_PATH", "matchintel.db"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:                os.Getenv("REDIS_URL"),
			ResultTTL:          envDuration("RESULT_CACHE_TTL", 24*time.Hour),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Engine: EngineConfig{
			Provider:       os.Getenv("ENGINE_PROVIDER"),
			BaseURL:        os.Getenv("ENGINE_BASE_URL"),
			APIKey:         os.Getenv("ENGINE_API_KEY"),
			RequestTimeout: envDuration("ENGINE_REQUEST_TIMEOUT", 30*time.Second),
			Mock: MockEngineConfig{
				StepDelay: envDuration("ENGINE_MOCK_STEP_DELAY", 2*time.Second),
			},
		},
		Video: VideoConfig{
			Backend:     envString("VIDEO_BACKEND", "http"),
			BaseURL:     os.Getenv("VIDEO_BASE_URL"),
			DatabaseURL: os.Getenv("VIDEO_DATABASE_URL"),
			Timeout:     envDuration("VIDEO_TIMEOUT", 10*time.Second),
		},
		Jobs: JobsConfig{
			AnalysisMaxDuration: envDuration("ANALYSIS_MAX_DURATION", 15*time.Minute),
			ExportMaxDuration:   envDuration("EXPORT_MAX_DURATION", 2*time.Minute),
			TransientRetryLimit: envInt("TRANSIENT_RETRY_LIMIT", 1),
			WorkerPoolSize:      envInt("WORKER_POOL_SIZE", 4),
			WorkerQueueSize:     envInt("WORKER_QUEUE_SIZE", 64),
		},
		Artifacts: ArtifactsConfig{
			Dir: envString("ARTIFACT_DIR", "artifacts"),
		},
	}

	if cfg.Video.Backend == "postgres" && cfg.Video.DatabaseURL == "" {
		cfg.Video.DatabaseURL = cfg.Database.URL
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !validStoreBackends[c.Store.Backend] {
		return fmt.Errorf("STORE_BACKEND must be one of postgres, sqlite, memory; got %q", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is postgres")
	}
	if c.Store.Backend == "sqlite" && c.Store.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required when STORE_BACKEND is sqlite")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Engine.Provider == "" {
		return fmt.Errorf("ENGINE_PROVIDER is required")
	}
	if !validEngines[c.Engine.Provider] {
		return fmt.Errorf("ENGINE_PROVIDER must be one of http, mock; got %q", c.Engine.Provider)
	}
	if c.Engine.Provider == "http" {
		if err := requireHTTPURL("ENGINE_BASE_URL", c.Engine.BaseURL); err != nil {
			return err
		}
	}

	if !validVideoBackends[c.Video.Backend] {
		return fmt.Errorf("VIDEO_BACKEND must be one of http, postgres; got %q", c.Video.Backend)
	}
	if c.Video.Backend == "http" {
		if err := requireHTTPURL("VIDEO_BASE_URL", c.Video.BaseURL); err != nil {
			return err
		}
	}
	if c.Video.Backend == "postgres" && c.Video.DatabaseURL == "" {
		return fmt.Errorf("VIDEO_DATABASE_URL (or DATABASE_URL) is required when VIDEO_BACKEND is postgres")
	}

	if c.Jobs.AnalysisMaxDuration <= 0 {
		return fmt.Errorf("ANALYSIS_MAX_DURATION must be positive")
	}
	if c.Jobs.ExportMaxDuration <= 0 {
		return fmt.Errorf("EXPORT_MAX_DURATION must be positive")
	}
	if c.Jobs.TransientRetryLimit < 0 {
		return fmt.Errorf("TRANSIENT_RETRY_LIMIT must not be negative")
	}
	if c.Jobs.WorkerPoolSize < 1 {
		return fmt.Errorf("WORKER_POOL_SIZE must be at least 1, got %d", c.Jobs.WorkerPoolSize)
	}
	if c.Jobs.WorkerQueueSize < 0 {
		return fmt.Errorf("WORKER_QUEUE_SIZE must not be negative")
	}

	if c.Artifacts.Dir == "" {
		return fmt.Errorf("ARTIFACT_DIR is required")
	}

	return nil
}

func requireHTTPURL(key, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", key)
	}
	if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
		return fmt.Errorf("%s must start with http:// or https://, got %q", key, v)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// envDuration accepts Go duration syntax ("90s", "15m") or a bare number of seconds.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
