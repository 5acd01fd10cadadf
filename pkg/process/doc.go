// Package process supervises engine OS processes.
//
// The supervisor spawns the engine bound to an allocated port,
// observes readiness (the engine opening its listening port) and exit,
// and terminates processes gracefully with escalation. Readiness and
// exit are awaitable outcomes rather than callbacks, which keeps the
// session proxy's state machine transitions explicit.
package process
