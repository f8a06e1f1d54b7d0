// Package config loads agentcore's runtime configuration from a YAML file,
// environment variable overrides, and built-in defaults.
package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// CORSConfig controls the gateway's CORS middleware.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// OTelConfig controls trace/metric export for the Executor, Watcher, and Gateway.
type OTelConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ServiceName   string `yaml:"service_name"`
	OTLPEndpoint  string `yaml:"otlp_endpoint"`  // empty: export to stdout instead
	UseStdout     bool   `yaml:"use_stdout"`
}

// Config is the resolved runtime configuration for one agentcore process.
type Config struct {
	HomeDir string `yaml:"-"`

	BindAddr string `yaml:"bind_addr"`
	LogLevel string `yaml:"log_level"`

	DBPath string `yaml:"db_path"`

	// PollIntervalMS is the Stream Watcher's baseline poll cadence.
	PollIntervalMS int `yaml:"poll_interval_ms"`

	// HeartbeatIntervalS is the Executor's idle heartbeat cadence (HEARTBEAT_INTERVAL_S).
	HeartbeatIntervalS int `yaml:"heartbeat_interval_s"`

	// WatcherMaxWaitS bounds a single watch() call's lifetime (WATCHER_MAX_WAIT_S).
	WatcherMaxWaitS int `yaml:"watcher_max_wait_s"`

	// WriterRetryScheduleMS is the Robust Writer's backoff schedule in milliseconds.
	WriterRetryScheduleMS []int `yaml:"writer_retry_schedule_ms"`

	// WriterFallbackCapacity bounds the Writer's in-memory fallback queue.
	WriterFallbackCapacity int `yaml:"writer_fallback_capacity"`

	// RegistryGCMaxAgeH is how long a completed RunningTask survives for late joiners.
	RegistryGCMaxAgeH int `yaml:"registry_gc_max_age_h"`

	// MessageEventsTTLS is the Event Store TTL in seconds; 0 disables pruning.
	MessageEventsTTLS int `yaml:"message_events_ttl_s"`

	// DrainTimeoutSeconds bounds graceful shutdown.
	DrainTimeoutSeconds int `yaml:"drain_timeout_seconds"`

	CORS  CORSConfig `yaml:"cors"`
	OTel  OTelConfig `yaml:"otel"`
}

// Fingerprint returns a short hash of the settings that affect observable
// behavior, exposed by the gateway's status endpoint so operators can tell
// two processes apart without diffing the whole config file.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "bind=%s|poll=%d|hb=%d|wait=%d|fallback=%d|gc=%d|ttl=%d",
		c.BindAddr, c.PollIntervalMS, c.HeartbeatIntervalS, c.WatcherMaxWaitS,
		c.WriterFallbackCapacity, c.RegistryGCMaxAgeH, c.MessageEventsTTLS)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}

func defaultConfig() Config {
	return Config{
		BindAddr:               "127.0.0.1:8789",
		LogLevel:               "info",
		DBPath:                 "agentcore.db",
		PollIntervalMS:         500,
		HeartbeatIntervalS:     15,
		WatcherMaxWaitS:        3600,
		WriterRetryScheduleMS:  []int{100, 200, 400},
		WriterFallbackCapacity: 1024,
		RegistryGCMaxAgeH:      24,
		MessageEventsTTLS:      0,
		DrainTimeoutSeconds:    10,
		CORS: CORSConfig{
			Enabled:        false,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Last-Event-ID"},
			MaxAge:         3600,
		},
		OTel: OTelConfig{
			ServiceName: "agentcore",
			UseStdout:   true,
		},
	}
}

// HomeDir resolves the process's data directory, honoring AGENTCORE_HOME.
func HomeDir() string {
	if override := os.Getenv("AGENTCORE_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".agentcore")
}

// ConfigPath returns the path to config.yaml under homeDir.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Load reads config.yaml from the resolved home directory, falling back to
// defaults when the file is absent, then applies environment overrides.
func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	path := ConfigPath(cfg.HomeDir)
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.HomeDir = HomeDir() // yaml has no home_dir field, but guard against zeroing
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.PollIntervalMS <= 0 {
		cfg.PollIntervalMS = 500
	}
	if cfg.HeartbeatIntervalS <= 0 {
		cfg.HeartbeatIntervalS = 15
	}
	if cfg.WatcherMaxWaitS <= 0 {
		cfg.WatcherMaxWaitS = 3600
	}
	if len(cfg.WriterRetryScheduleMS) == 0 {
		cfg.WriterRetryScheduleMS = []int{100, 200, 400}
	}
	if cfg.WriterFallbackCapacity <= 0 {
		cfg.WriterFallbackCapacity = 1024
	}
	if cfg.RegistryGCMaxAgeH <= 0 {
		cfg.RegistryGCMaxAgeH = 24
	}
	if cfg.DrainTimeoutSeconds <= 0 {
		cfg.DrainTimeoutSeconds = 10
	}
}

// RetrySchedule returns the Writer's backoff schedule as time.Durations.
func (c Config) RetrySchedule() []time.Duration {
	out := make([]time.Duration, len(c.WriterRetryScheduleMS))
	for i, ms := range c.WriterRetryScheduleMS {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("AGENTCORE_BIND_ADDR"); raw != "" {
		cfg.BindAddr = raw
	}
	if raw := os.Getenv("AGENTCORE_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("AGENTCORE_DB_PATH"); raw != "" {
		cfg.DBPath = raw
	}
	if raw := os.Getenv("AGENTCORE_POLL_INTERVAL_MS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.PollIntervalMS = v
		}
	}
	if raw := os.Getenv("AGENTCORE_HEARTBEAT_INTERVAL_S"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.HeartbeatIntervalS = v
		}
	}
	if raw := os.Getenv("AGENTCORE_WATCHER_MAX_WAIT_S"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.WatcherMaxWaitS = v
		}
	}
	if raw := os.Getenv("AGENTCORE_REGISTRY_GC_MAX_AGE_H"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.RegistryGCMaxAgeH = v
		}
	}
	if raw := os.Getenv("AGENTCORE_MESSAGE_EVENTS_TTL_S"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.MessageEventsTTLS = v
		}
	}
}
