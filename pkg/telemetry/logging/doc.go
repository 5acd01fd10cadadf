// Package logging configures structured logging for the proxy.
//
// All components log through log/slog. New installs the configured
// handler as the process default so libraries that log via
// slog.Default pick up the same output.
package logging
