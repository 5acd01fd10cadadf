package process

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"nydus-hq/nydus/pkg/config"
	"nydus-hq/nydus/pkg/telemetry/logging"
)

// Supervisor launches engine processes and tracks their lifecycle.
// It owns no protocol knowledge: it observes only liveness, exit
// status and whether the engine's listening port opens.
type Supervisor struct {
	cfg    config.ProcessConfig
	logger *slog.Logger
}

// NewSupervisor creates a supervisor from process configuration.
func NewSupervisor(cfg config.ProcessConfig) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		logger: logging.Component("process"),
	}
}

// LaunchSpec carries the per-match parameters an engine launch is
// derived from.
type LaunchSpec struct {
	// MapName is resolved against the configured map directory.
	MapName string

	// Realtime launches the engine in realtime mode.
	Realtime bool
}

// Spawn launches the engine binary bound to the given port and begins
// watching for its exit in the background. The returned handle is in
// Starting state; call WaitReady to await the engine opening its
// listening port.
//
// A launch failure (missing binary, exec error) surfaces immediately
// as ErrSpawnFailed.
func (s *Supervisor) Spawn(ctx context.Context, spec LaunchSpec, port int) (*Handle, error) {
	args := s.buildArgs(spec, port)

	cmd := exec.Command(s.cfg.BinaryPath, args...)
	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Binary: s.cfg.BinaryPath, Err: err}
	}

	h := &Handle{
		supervisor: s,
		cmd:        cmd,
		port:       port,
		state:      StateStarting,
		exited:     make(chan struct{}),
	}

	s.logger.Info("engine process spawned",
		"pid", cmd.Process.Pid,
		"port", port,
		"map", spec.MapName,
	)

	go h.watchExit()
	return h, nil
}

// buildArgs derives engine launch arguments from configuration and
// spec. Configured extra arguments come first so wrappers can inject
// their own flags ahead of the derived ones.
func (s *Supervisor) buildArgs(spec LaunchSpec, port int) []string {
	args := append([]string(nil), s.cfg.ExtraArgs...)
	args = append(args,
		"--listen", "127.0.0.1",
		"--port", strconv.Itoa(port),
		"--headless",
	)
	if spec.MapName != "" {
		args = append(args, "--map", spec.MapName)
	}
	if spec.Realtime {
		args = append(args, "--realtime")
	}
	return args
}

// Handle is a spawned engine instance. All methods are safe for
// concurrent use.
type Handle struct {
	supervisor *Supervisor
	cmd        *exec.Cmd
	port       int

	mu     sync.Mutex
	state  State
	status ExitStatus

	exited chan struct{}
}

// State is the health state of an engine process.
type State int

const (
	// StateStarting means the process is launched but its port has
	// not been observed open yet.
	StateStarting State = iota
	// StateReady means the engine's listening port has opened.
	StateReady
	// StateExited means the process has terminated.
	StateExited
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// ExitStatus describes how a process ended.
type ExitStatus struct {
	// Code is the process exit code, -1 if killed by signal.
	Code int

	// Err is the wait error, if any, beyond a nonzero exit.
	Err error
}

// Port returns the port the engine was told to listen on.
func (h *Handle) Port() int {
	return h.port
}

// Pid returns the OS process id.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// State returns the current health state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Exited returns a channel closed when the process has exited. After
// it is closed, Status returns the exit status.
func (h *Handle) Exited() <-chan struct{} {
	return h.exited
}

// Status returns the exit status. Valid only after Exited is closed.
func (h *Handle) Status() ExitStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// WaitReady blocks until the engine's listening port accepts a TCP
// connection, the configured readiness timeout elapses, the process
// exits, or ctx is cancelled.
//
// On timeout the process is terminated and ErrProcessUnready is
// returned. An exit before readiness returns ErrProcessCrashed.
func (h *Handle) WaitReady(ctx context.Context) error {
	deadline := time.Now().Add(h.supervisor.cfg.ReadyTimeout)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(h.port))

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			conn.Close()
			h.mu.Lock()
			if h.state == StateStarting {
				h.state = StateReady
			}
			h.mu.Unlock()
			h.supervisor.logger.Debug("engine ready", "port", h.port)
			return nil
		}

		if time.Now().After(deadline) {
			h.supervisor.logger.Warn("engine readiness timeout, terminating",
				"port", h.port,
				"timeout", h.supervisor.cfg.ReadyTimeout,
			)
			_ = h.Terminate(ctx)
			return fmt.Errorf("%w: port %d not open after %v",
				ErrProcessUnready, h.port, h.supervisor.cfg.ReadyTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.exited:
			return fmt.Errorf("%w: exited before opening port %d (code %d)",
				ErrProcessCrashed, h.port, h.Status().Code)
		case <-ticker.C:
		}
	}
}

// Terminate requests graceful shutdown via SIGTERM and escalates to
// SIGKILL after the configured grace period. It returns once the
// process has exited or ctx is cancelled.
func (h *Handle) Terminate(ctx context.Context) error {
	select {
	case <-h.exited:
		return nil
	default:
	}

	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Process may have exited between the check and the signal.
		select {
		case <-h.exited:
			return nil
		default:
			return fmt.Errorf("terminate signal: %w", err)
		}
	}

	grace := time.NewTimer(h.supervisor.cfg.GracePeriod)
	defer grace.Stop()

	select {
	case <-h.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-grace.C:
		h.supervisor.logger.Warn("grace period elapsed, killing engine", "pid", h.Pid())
		_ = h.cmd.Process.Kill()
	}

	select {
	case <-h.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// watchExit waits for the process and records its exit status.
func (h *Handle) watchExit() {
	err := h.cmd.Wait()

	status := ExitStatus{Code: h.cmd.ProcessState.ExitCode()}
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			status.Err = err
		}
	}

	h.mu.Lock()
	h.state = StateExited
	h.status = status
	h.mu.Unlock()
	close(h.exited)

	h.supervisor.logger.Info("engine process exited",
		"pid", h.cmd.ProcessState.Pid(),
		"code", status.Code,
	)
}
