package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified
// path. It applies default values, validates the configuration, and
// returns any errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Variables follow the naming
// convention NYDUS_SECTION_FIELD (e.g. NYDUS_PROXY_LISTEN_ADDRESS) and
// always take precedence over file-based configuration.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies NYDUS_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("NYDUS_PROXY_LISTEN_ADDRESS"); val != "" {
		cfg.Proxy.ListenAddress = val
	}
	if val := os.Getenv("NYDUS_CONTROL_LISTEN_ADDRESS"); val != "" {
		cfg.Control.ListenAddress = val
	}
	if val := os.Getenv("NYDUS_CONTROL_STATS_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Control.StatsInterval = d
		}
	}
	if val := os.Getenv("NYDUS_PROCESS_BINARY_PATH"); val != "" {
		cfg.Process.BinaryPath = val
	}
	if val := os.Getenv("NYDUS_PROCESS_READY_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Process.ReadyTimeout = d
		}
	}
	if val := os.Getenv("NYDUS_PORTS_MIN"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Ports.Min = n
		}
	}
	if val := os.Getenv("NYDUS_PORTS_MAX"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Ports.Max = n
		}
	}
	if val := os.Getenv("NYDUS_TELEMETRY_LOG_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("NYDUS_RESULTS_BACKEND"); val != "" {
		cfg.Results.Backend = val
	}
	if val := os.Getenv("NYDUS_RESULTS_PATH"); val != "" {
		cfg.Results.Path = val
	}
}
