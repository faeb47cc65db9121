// Package config loads runtime configuration: coded defaults, overlaid by
// an optional YAML file, overridden by environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/fetch"
	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/poll"
	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/worker"
)

// minOverallTimeoutMs is the deployment floor for a job's processing
// budget: hosting platforms with request-duration ceilings must still
// leave jobs at least this long.
const minOverallTimeoutMs = 60_000

// Config is the full runtime configuration of the service and worker.
type Config struct {
	Env        string `yaml:"env" env:"APP_ENV"`
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`

	Metrics struct {
		Enabled bool `yaml:"enabled" env:"METRICS_ENABLED"`
		Port    int  `yaml:"port" env:"METRICS_PORT"`
	} `yaml:"metrics"`

	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Username string `yaml:"username" env:"REDIS_USERNAME"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
	} `yaml:"redis"`

	QueryService struct {
		BaseURL string `yaml:"base_url" env:"QUERY_SERVICE_URL"`
		APIKey  string `yaml:"api_key" env:"QUERY_SERVICE_API_KEY"`
	} `yaml:"query_service"`

	Fetch struct {
		CategoryTimeoutMs int `yaml:"category_timeout_ms" env:"CATEGORY_TIMEOUT_MS"`
		OverallTimeoutMs  int `yaml:"overall_timeout_ms" env:"OVERALL_TIMEOUT_MS"`
		MaxAttempts       int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
		Concurrency       int `yaml:"category_concurrency" env:"CATEGORY_CONCURRENCY"`
	} `yaml:"fetch"`

	Worker struct {
		LockTTLMs          int  `yaml:"lock_ttl_ms" env:"LOCK_TTL_MS"`
		MaxJobsPerRun      int  `yaml:"max_jobs_per_run" env:"MAX_JOBS_PER_RUN"`
		MaxRunMs           int  `yaml:"max_run_ms" env:"MAX_RUN_MS"`
		ExtendLockEveryMs  int  `yaml:"extend_lock_every_ms" env:"EXTEND_LOCK_EVERY_MS"`
		SkipAlreadyRunning bool `yaml:"skip_already_running" env:"SKIP_ALREADY_RUNNING"`
	} `yaml:"worker"`

	Poll struct {
		IntervalMs          int `yaml:"interval_ms" env:"POLL_INTERVAL_MS"`
		MaxPolls            int `yaml:"max_polls" env:"MAX_POLLS"`
		StagnationThreshold int `yaml:"stagnation_threshold" env:"STAGNATION_THRESHOLD"`
	} `yaml:"poll"`

	Cache struct {
		MaxEntries int `yaml:"max_entries" env:"CACHE_MAX_ENTRIES"`
	} `yaml:"cache"`

	// InternalSecret gates the diagnostics surface in production.
	InternalSecret string `yaml:"internal_secret" env:"INTERNAL_SECRET"`
}

// Default returns the coded defaults.
func Default() Config {
	var cfg Config
	cfg.Env = "development"
	cfg.ListenAddr = ":8080"
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 9090
	cfg.Fetch.CategoryTimeoutMs = 30_000
	cfg.Fetch.OverallTimeoutMs = 180_000
	cfg.Fetch.MaxAttempts = 3
	cfg.Fetch.Concurrency = 3
	cfg.Worker.LockTTLMs = 120_000
	cfg.Worker.MaxJobsPerRun = 10
	cfg.Worker.MaxRunMs = 300_000
	cfg.Worker.ExtendLockEveryMs = 30_000
	cfg.Worker.SkipAlreadyRunning = true
	cfg.Poll.IntervalMs = 2_000
	cfg.Poll.MaxPolls = 30
	cfg.Poll.StagnationThreshold = 12
	cfg.Cache.MaxEntries = 4096
	return cfg
}

// Load builds the effective configuration: defaults, then the YAML file
// (when path is non-empty), then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	cfg.clamp()
	return cfg, nil
}

// clamp enforces hard floors regardless of where a value came from.
func (c *Config) clamp() {
	if c.Fetch.OverallTimeoutMs < minOverallTimeoutMs {
		c.Fetch.OverallTimeoutMs = minOverallTimeoutMs
	}
	if c.Fetch.MaxAttempts < 1 {
		c.Fetch.MaxAttempts = 1
	}
	if c.Fetch.Concurrency < 1 {
		c.Fetch.Concurrency = 1
	}
	if c.Worker.MaxJobsPerRun < 1 {
		c.Worker.MaxJobsPerRun = 1
	}
}

// Production reports whether the diagnostics surface requires the shared
// secret.
func (c Config) Production() bool {
	return c.Env == "production"
}

// RetryPolicy derives the category retry policy.
func (c Config) RetryPolicy() fetch.Policy {
	p := fetch.DefaultPolicy()
	p.PerAttemptTimeout = time.Duration(c.Fetch.CategoryTimeoutMs) * time.Millisecond
	p.MaxAttempts = c.Fetch.MaxAttempts
	return p
}

// WorkerOptions derives the batch runner options.
func (c Config) WorkerOptions() worker.Options {
	opts := worker.DefaultOptions()
	opts.LockTTL = time.Duration(c.Worker.LockTTLMs) * time.Millisecond
	opts.MaxJobsPerRun = c.Worker.MaxJobsPerRun
	opts.MaxRunTime = time.Duration(c.Worker.MaxRunMs) * time.Millisecond
	opts.ExtendLockEvery = time.Duration(c.Worker.ExtendLockEveryMs) * time.Millisecond
	opts.SkipAlreadyRunning = c.Worker.SkipAlreadyRunning
	opts.CategoryConcurrency = c.Fetch.Concurrency
	opts.OverallTimeout = time.Duration(c.Fetch.OverallTimeoutMs) * time.Millisecond
	return opts
}

// Poller derives the client poll loop parameters.
func (c Config) Poller() poll.Poller {
	return poll.Poller{
		Interval:            time.Duration(c.Poll.IntervalMs) * time.Millisecond,
		MaxPolls:            c.Poll.MaxPolls,
		StagnationThreshold: c.Poll.StagnationThreshold,
	}
}
