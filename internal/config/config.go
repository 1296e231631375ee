// Package config provides configuration loading for analyzerd.
// Configuration sources (in priority order): env vars > config file > defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all analyzerd configuration.
type Config struct {
	// Listen address for the HTTP façade (default ":8080").
	ListenAddr string `json:"listen_addr"`
	// DataDir holds the SQLite store and the filesystem attachment store.
	DataDir string `json:"data_dir"`

	// AnalyzerPoolSize bounds simultaneous Process Runner invocations
	// (spec §5) — a deployment parameter the core treats as external.
	AnalyzerPoolSize int `json:"analyzer_pool_size"`

	// JobCache is the similar-job cache TTL (spec §6's one recognised
	// option, `job.cache`); zero disables the cache.
	JobCache time.Duration `json:"job_cache"`

	// AnalyzerFixture optionally points at a YAML file seeding the
	// in-memory analyzer registry test double (internal/analyzer.LoadMemRegistry).
	AnalyzerFixture string `json:"analyzer_fixture,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level"`
}

// Default returns configuration with sensible defaults.
func Default() Config {
	return Config{
		ListenAddr:       ":8080",
		DataDir:          "/var/lib/analyzerd",
		AnalyzerPoolSize: 4,
		JobCache:         0,
		LogLevel:         "info",
	}
}

// Load reads configuration from a file, then overlays environment
// variables (ANALYZERD_*).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("ANALYZERD_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("ANALYZERD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ANALYZERD_ANALYZER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AnalyzerPoolSize = n
		}
	}
	if v := os.Getenv("ANALYZERD_JOB_CACHE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.JobCache = d
		}
	}
	if v := os.Getenv("ANALYZERD_ANALYZER_FIXTURE"); v != "" {
		cfg.AnalyzerFixture = v
	}
	if v := os.Getenv("ANALYZERD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() Config {
	cfg, _ := Load("")
	return cfg
}

// Save writes configuration to a file.
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o640)
}
