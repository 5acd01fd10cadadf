package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for internal consistency. It is
// called after defaults and after environment overrides.
func Validate(cfg *Config) error {
	if cfg.Proxy.ListenAddress == "" {
		return fmt.Errorf("proxy.listen_address must not be empty")
	}
	if cfg.Control.ListenAddress == "" {
		return fmt.Errorf("control.listen_address must not be empty")
	}
	if cfg.Proxy.ListenAddress == cfg.Control.ListenAddress {
		return fmt.Errorf("proxy and control listeners must not share an address")
	}

	if cfg.Ports.Min <= 0 || cfg.Ports.Max <= 0 {
		return fmt.Errorf("ports.min and ports.max must be positive")
	}
	if cfg.Ports.Min > cfg.Ports.Max {
		return fmt.Errorf("ports.min (%d) must not exceed ports.max (%d)", cfg.Ports.Min, cfg.Ports.Max)
	}

	if cfg.MatchDefaults.Participants < 1 {
		return fmt.Errorf("match_defaults.participants must be at least 1")
	}

	if err := ValidatePolicy(&cfg.MatchDefaults.Policy); err != nil {
		return fmt.Errorf("match_defaults.policy: %w", err)
	}

	switch cfg.Results.Backend {
	case "memory":
	case "sqlite":
		if cfg.Results.Path == "" {
			return fmt.Errorf("results.path required for sqlite backend")
		}
	default:
		return fmt.Errorf("unknown results backend %q", cfg.Results.Backend)
	}

	return nil
}

// ValidatePolicy checks a policy rule set. It is also used by the
// control plane when policies are replaced at runtime.
func ValidatePolicy(p *PolicyConfig) error {
	if p.MaxCalls < 0 || p.MaxAPM < 0 {
		return fmt.Errorf("ceilings must not be negative")
	}
	if p.APMWindow < 0 || p.TimeBudget < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	switch strings.ToLower(p.APMWindowMode) {
	case "", "sliding", "fixed":
	default:
		return fmt.Errorf("unknown apm_window_mode %q (want sliding or fixed)", p.APMWindowMode)
	}
	return nil
}
