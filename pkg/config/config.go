package config

import "time"

// Config is the root configuration for the proxy.
type Config struct {
	// Proxy configures the game traffic listener.
	Proxy ProxyConfig `yaml:"proxy"`

	// Control configures the control plane listener.
	Control ControlConfig `yaml:"control"`

	// Process configures how engine processes are launched.
	Process ProcessConfig `yaml:"process"`

	// Ports configures the engine port pool.
	Ports PortsConfig `yaml:"ports"`

	// MatchDefaults supplies defaults for new matches.
	MatchDefaults MatchDefaults `yaml:"match_defaults"`

	// Results configures match result recording.
	Results ResultsConfig `yaml:"results"`

	// Telemetry configures logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProxyConfig configures the bot-facing game listener.
type ProxyConfig struct {
	// ListenAddress is the host:port bots connect to.
	ListenAddress string `yaml:"listen_address"`

	// ReapSchedule is the cron expression for sweeping finished
	// matches out of the registry (e.g. "@every 30s").
	ReapSchedule string `yaml:"reap_schedule"`

	// SendBuffer is the per-direction frame buffer size. A full
	// buffer pauses reads from the corresponding source side only.
	SendBuffer int `yaml:"send_buffer"`
}

// ControlConfig configures the administrative listener.
type ControlConfig struct {
	// ListenAddress is the host:port for control connections.
	ListenAddress string `yaml:"listen_address"`

	// StatsInterval is the period between pushed statistics
	// snapshots for subscribed control sessions.
	StatsInterval time.Duration `yaml:"stats_interval"`
}

// ProcessConfig configures engine process launching.
type ProcessConfig struct {
	// BinaryPath is the engine executable.
	BinaryPath string `yaml:"binary_path"`

	// MapDir is the directory map names are resolved against.
	MapDir string `yaml:"map_dir"`

	// ExtraArgs are appended to the derived launch arguments.
	ExtraArgs []string `yaml:"extra_args"`

	// ReadyTimeout bounds the wait for the engine to open its port.
	ReadyTimeout time.Duration `yaml:"ready_timeout"`

	// GracePeriod is how long a graceful terminate may take before
	// escalating to a kill.
	GracePeriod time.Duration `yaml:"grace_period"`
}

// PortsConfig configures the port allocator range.
type PortsConfig struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// MatchDefaults supplies per-match defaults, overridable on
// create_match requests.
type MatchDefaults struct {
	// MapName is the default map for new matches.
	MapName string `yaml:"map_name"`

	// Participants is the number of bot seats per match.
	Participants int `yaml:"participants"`

	// EndOnDisconnect ends the whole match when any seat
	// disconnects. When false only that seat is released.
	EndOnDisconnect bool `yaml:"end_on_disconnect"`

	// Realtime launches the engine in realtime mode.
	Realtime bool `yaml:"realtime"`

	// Policy is the default rule set for new matches.
	Policy PolicyConfig `yaml:"policy"`
}

// PolicyConfig is the configured rule set applied to a match or
// participant. Zero-valued ceilings mean unlimited.
type PolicyConfig struct {
	// DisabledCategories lists frame categories that are always
	// rejected (e.g. "debug").
	DisabledCategories []string `yaml:"disabled_categories"`

	// MaxCalls caps the total number of policed API calls.
	MaxCalls int64 `yaml:"max_calls"`

	// MaxAPM caps actions within the APM window.
	MaxAPM int64 `yaml:"max_apm"`

	// APMWindow is the APM accounting window.
	APMWindow time.Duration `yaml:"apm_window"`

	// APMWindowMode selects "sliding" or "fixed" window accounting.
	APMWindowMode string `yaml:"apm_window_mode"`

	// TimeBudget caps a participant's cumulative wall time in the
	// match. Action and query frames are rejected afterwards;
	// observation frames still pass.
	TimeBudget time.Duration `yaml:"time_budget"`
}

// ResultsConfig configures match result recording.
type ResultsConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the sqlite database file (sqlite backend only).
	Path string `yaml:"path"`
}

// TelemetryConfig configures logging and metrics.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
	Namespace     string `yaml:"namespace"`
	Subsystem     string `yaml:"subsystem"`
}
