package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the coordinator server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Dispatch  DispatchConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// SchedulerConfig tunes partitioning, claim reclamation, and liveness. The
// reclaim threshold (stale chunk claims) and the runner liveness window are
// independent knobs; neither derives from the other.
type SchedulerConfig struct {
	ChunkSize        int
	ReclaimThreshold time.Duration
	RunnerLiveness   time.Duration
	ReaperInterval   time.Duration
	QueueWarnDepth   int
}

// DispatchConfig selects how work reaches the fleet. In push mode the
// coordinator triggers remote workflow runs; in pull mode runners poll and the
// coordinator performs no outbound calls.
type DispatchConfig struct {
	Mode        string
	BaseURL     string
	Token       string
	Repository  string
	WorkflowRef string
	MaxRunners  int
	Timeout     time.Duration
}

const (
	DispatchModePush = "push"
	DispatchModePull = "pull"
)

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value is
// missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("COORDINATOR_PORT", 8080),
			Env:  envString("COORDINATOR_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Scheduler: SchedulerConfig{
			ChunkSize:        envInt("SCRAPE_CHUNK_SIZE", 50),
			ReclaimThreshold: envDuration("CHUNK_RECLAIM_THRESHOLD", 10*time.Minute),
			RunnerLiveness:   envDuration("RUNNER_LIVENESS_WINDOW", 5*time.Minute),
			ReaperInterval:   envDuration("REAPER_INTERVAL", time.Minute),
			QueueWarnDepth:   envInt("QUEUE_WARN_DEPTH", 100),
		},
		Dispatch: DispatchConfig{
			Mode:        envString("DISPATCH_MODE", DispatchModePull),
			BaseURL:     envString("DISPATCH_BASE_URL", "https://api.github.com"),
			Token:       os.Getenv("DISPATCH_TOKEN"),
			Repository:  os.Getenv("DISPATCH_REPOSITORY"),
			WorkflowRef: envString("DISPATCH_WORKFLOW_REF", "scrape.yml"),
			MaxRunners:  envInt("DISPATCH_MAX_RUNNERS", 3),
			Timeout:     envDuration("DISPATCH_TIMEOUT", 30*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Scheduler.ChunkSize <= 0 {
		return fmt.Errorf("SCRAPE_CHUNK_SIZE must be positive, got %d", c.Scheduler.ChunkSize)
	}

	switch c.Dispatch.Mode {
	case DispatchModePush:
		if c.Dispatch.Token == "" {
			return fmt.Errorf("DISPATCH_TOKEN is required when DISPATCH_MODE is push")
		}
		if c.Dispatch.Repository == "" {
			return fmt.Errorf("DISPATCH_REPOSITORY is required when DISPATCH_MODE is push")
		}
		if !strings.Contains(c.Dispatch.Repository, "/") {
			return fmt.Errorf("DISPATCH_REPOSITORY must be owner/name, got %q", c.Dispatch.Repository)
		}
	case DispatchModePull:
		// Nothing outbound to configure.
	default:
		return fmt.Errorf("DISPATCH_MODE must be push or pull, got %q", c.Dispatch.Mode)
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

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
