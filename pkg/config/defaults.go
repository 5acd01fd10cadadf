package config

import "time"

// ApplyDefaults fills in zero-valued fields with sensible defaults.
// Explicitly configured values are never overwritten.
func ApplyDefaults(cfg *Config) {
	if cfg.Proxy.ListenAddress == "" {
		cfg.Proxy.ListenAddress = "127.0.0.1:5000"
	}
	if cfg.Proxy.ReapSchedule == "" {
		cfg.Proxy.ReapSchedule = "@every 30s"
	}
	if cfg.Proxy.SendBuffer <= 0 {
		cfg.Proxy.SendBuffer = 64
	}

	if cfg.Control.ListenAddress == "" {
		cfg.Control.ListenAddress = "127.0.0.1:5500"
	}
	if cfg.Control.StatsInterval <= 0 {
		cfg.Control.StatsInterval = 5 * time.Second
	}

	if cfg.Process.ReadyTimeout <= 0 {
		cfg.Process.ReadyTimeout = 60 * time.Second
	}
	if cfg.Process.GracePeriod <= 0 {
		cfg.Process.GracePeriod = 5 * time.Second
	}

	if cfg.Ports.Min == 0 && cfg.Ports.Max == 0 {
		cfg.Ports.Min = 8100
		cfg.Ports.Max = 8199
	}

	if cfg.MatchDefaults.Participants <= 0 {
		cfg.MatchDefaults.Participants = 2
	}
	applyPolicyDefaults(&cfg.MatchDefaults.Policy)

	if cfg.Results.Backend == "" {
		cfg.Results.Backend = "memory"
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = "127.0.0.1:9290"
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = "nydus"
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = "proxy"
	}
}

func applyPolicyDefaults(p *PolicyConfig) {
	if p.APMWindow <= 0 {
		p.APMWindow = time.Minute
	}
	if p.APMWindowMode == "" {
		p.APMWindowMode = "sliding"
	}
}
