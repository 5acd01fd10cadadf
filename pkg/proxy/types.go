package proxy

import (
	"context"
	"time"

	"nydus-hq/nydus/pkg/policy"
	"nydus-hq/nydus/pkg/process"
	"nydus-hq/nydus/pkg/results"
)

// MatchState is the lifecycle state of a match.
type MatchState int

const (
	// StatePending means no engine process has been requested yet.
	StatePending MatchState = iota
	// StateLaunching means the process is requested and readiness is
	// awaited.
	StateLaunching
	// StateReady means the engine is reachable and seats may attach.
	StateReady
	// StateInProgress means all seats are connected and frames flow.
	StateInProgress
	// StateFinished is terminal for traffic; teardown is pending.
	StateFinished
	// StateTornDown means the process and port are released.
	StateTornDown
)

// String returns the state name used in status payloads.
func (s MatchState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLaunching:
		return "launching"
	case StateReady:
		return "ready"
	case StateInProgress:
		return "in_progress"
	case StateFinished:
		return "finished"
	case StateTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

// MatchConfig is the per-match configuration resolved from defaults
// and create_match parameters.
type MatchConfig struct {
	// MapName is the map the engine loads.
	MapName string

	// Participants is the number of bot seats.
	Participants int

	// EndOnDisconnect ends the whole match when any seat
	// disconnects; otherwise only the seat is released.
	EndOnDisconnect bool

	// Realtime launches the engine in realtime mode.
	Realtime bool

	// Policy is the initial match rule set.
	Policy policy.Configuration

	// SendBuffer is the per-direction frame buffer size.
	SendBuffer int
}

// EngineLauncher starts engine processes. The process supervisor is
// the production implementation; tests inject in-process fakes.
type EngineLauncher interface {
	Launch(ctx context.Context, spec process.LaunchSpec, port int) (EngineProc, error)
}

// EngineProc is the part of a spawned engine the session proxy needs.
type EngineProc interface {
	// WaitReady blocks until the engine's port is open or fails
	// with ErrProcessUnready / ErrProcessCrashed.
	WaitReady(ctx context.Context) error

	// Exited is closed when the process has exited.
	Exited() <-chan struct{}

	// Status is valid after Exited is closed.
	Status() process.ExitStatus

	// Terminate requests shutdown, escalating after a grace period.
	Terminate(ctx context.Context) error
}

// SupervisorLauncher adapts process.Supervisor to EngineLauncher.
type SupervisorLauncher struct {
	Supervisor *process.Supervisor
}

// Launch spawns a real engine process.
func (l SupervisorLauncher) Launch(ctx context.Context, spec process.LaunchSpec, port int) (EngineProc, error) {
	return l.Supervisor.Spawn(ctx, spec, port)
}

// MatchStatus is a point-in-time description of a match for the
// control plane.
type MatchStatus struct {
	ID           string              `json:"id"`
	State        string              `json:"state"`
	MapName      string              `json:"map_name"`
	Port         int                 `json:"port,omitempty"`
	EndReason    results.EndReason   `json:"end_reason,omitempty"`
	Abnormal     bool                `json:"abnormal,omitempty"`
	StartedAt    time.Time           `json:"started_at,omitempty"`
	FinishedAt   time.Time           `json:"finished_at,omitempty"`
	Participants []ParticipantStatus `json:"participants"`
}

// ParticipantStatus describes one seat.
type ParticipantStatus struct {
	Slot      int             `json:"slot"`
	ID        string          `json:"id,omitempty"`
	Connected bool            `json:"connected"`
	Budget    policy.Snapshot `json:"budget"`
}
