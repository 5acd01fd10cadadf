// Package metrics exposes the proxy's Prometheus instrumentation:
// frame forwarding and rejection counters, match lifecycle gauges,
// engine process exits and control plane request counts.
package metrics
