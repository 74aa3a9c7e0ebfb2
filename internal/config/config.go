// Package config loads lineage service settings from an optional YAML file
// with environment overrides on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// #region types
// Config is the merged process configuration.
type Config struct {
	// DBPath is the SQLite archive holding iterations, edges and runs.
	DBPath string `yaml:"db_path"`

	// ListenAddr is the gRPC listen address of lineage-server.
	ListenAddr string `yaml:"listen_addr"`

	// MetricsAddr serves /metrics. Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogMode is "dev" or "prod".
	LogMode string `yaml:"log_mode"`

	// Lags are the ancestor depths resolved by each run.
	Lags []int `yaml:"lags"`

	// IterationCount bounds the genealogy to iterations 1..IterationCount.
	// 0 uses every iteration stored in the archive.
	IterationCount int `yaml:"iteration_count"`
}

// #endregion types

// #region defaults
// Default returns the configuration used when no file or env var overrides it.
func Default() Config {
	return Config{
		DBPath:      "lineage.db",
		ListenAddr:  "localhost:50061",
		MetricsAddr: ":9102",
		LogMode:     "dev",
		Lags:        []int{1},
	}
}

// #endregion defaults

// #region load
// Load merges defaults, the YAML file at path and the environment, then
// validates the result. An empty or missing path keeps the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// #endregion load

// #region env
// ApplyEnv overrides fields from LINEAGE_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("LINEAGE_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("LINEAGE_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v, ok := os.LookupEnv("LINEAGE_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	if v := os.Getenv("LINEAGE_LOG_MODE"); v != "" {
		c.LogMode = v
	}
	if v := os.Getenv("LINEAGE_LAGS"); v != "" {
		lags, err := ParseLags(v)
		if err != nil {
			return fmt.Errorf("LINEAGE_LAGS: %w", err)
		}
		c.Lags = lags
	}
	if v := os.Getenv("LINEAGE_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LINEAGE_ITERATIONS: %w", err)
		}
		c.IterationCount = n
	}
	return nil
}

// ParseLags parses a comma separated list such as "1,2,5".
func ParseLags(s string) ([]int, error) {
	var lags []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lag, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("lag %q: %w", part, err)
		}
		lags = append(lags, lag)
	}
	return lags, nil
}

// #endregion env

// #region validate
// Validate checks field ranges.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path must be set")
	}
	if len(c.Lags) == 0 {
		return errors.New("at least one lag is required")
	}
	for _, lag := range c.Lags {
		if lag <= 0 {
			return fmt.Errorf("lag must be positive, got %d", lag)
		}
	}
	if c.IterationCount < 0 {
		return fmt.Errorf("iteration_count must be >= 0, got %d", c.IterationCount)
	}
	switch c.LogMode {
	case "dev", "prod":
	default:
		return fmt.Errorf("log_mode must be dev or prod, got %q", c.LogMode)
	}
	return nil
}

// #endregion validate
