// Package config loads and validates the proxy's YAML configuration.
//
// Loading follows a fixed sequence: read file, unmarshal, apply
// defaults, apply NYDUS_* environment overrides, validate. A Watcher
// can additionally hot-reload the file; reloaded defaults affect new
// matches only, never live ones.
package config
