// Nydus is a session proxy between game-playing bots and headless
// game engine processes.
//
// It owns the engine lifecycle and sits on the wire between every bot
// and its engine, providing:
//   - Per-match engine process launching on pooled ports
//   - Byte-exact frame bridging with policy enforcement
//   - Per-participant call, action-rate and time budgets
//   - A JSON-line control plane with a live statistics feed
//   - Durable match result records
//
// Usage:
//
//	# Start the proxy with default configuration
//	nydus run
//
//	# Start with a custom configuration file
//	nydus run --config /path/to/config.yaml
//
//	# Validate a configuration file without starting
//	nydus validate --config /path/to/config.yaml
//
//	# Show version information
//	nydus version
package main

func main() {
	Execute()
}
