package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"nydus-hq/nydus/pkg/config"
	"nydus-hq/nydus/pkg/policy"
	"nydus-hq/nydus/pkg/ports"
	"nydus-hq/nydus/pkg/protocol"
	"nydus-hq/nydus/pkg/results"
	"nydus-hq/nydus/pkg/telemetry/logging"
	"nydus-hq/nydus/pkg/telemetry/metrics"
)

// ErrMatchNotFound is returned for lookups of unknown match ids.
var ErrMatchNotFound = errors.New("match not found")

// Registry owns every live match. It hands out match ids, routes
// joining bots to matches with free seats, and periodically sweeps
// torn-down matches out of the table.
type Registry struct {
	defaults config.MatchDefaults
	buffer   int

	launcher EngineLauncher
	ports    *ports.Allocator
	storage  results.Storage
	metrics  *metrics.Collector
	logger   *slog.Logger

	mu      sync.RWMutex
	matches map[string]*Match
	sink    EventSink

	cron *cron.Cron
}

// RegistryOptions wires the registry's collaborators.
type RegistryOptions struct {
	Defaults config.MatchDefaults
	// SendBuffer is the per-direction frame buffer for new matches.
	SendBuffer int
	Launcher   EngineLauncher
	Ports      *ports.Allocator
	Storage    results.Storage
	Metrics    *metrics.Collector
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	buffer := opts.SendBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Registry{
		defaults: opts.Defaults,
		buffer:   buffer,
		launcher: opts.Launcher,
		ports:    opts.Ports,
		storage:  opts.Storage,
		metrics:  opts.Metrics,
		logger:   logging.Component("registry"),
		matches:  make(map[string]*Match),
		sink:     nopSink{},
	}
}

// SetEventSink routes match events to the control plane's statistics
// broadcaster. Call before serving traffic.
func (r *Registry) SetEventSink(sink EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sink != nil {
		r.sink = sink
	}
}

func (r *Registry) eventSink() EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sink
}

// SetDefaults replaces the match defaults used for future matches.
// Live matches keep their configuration.
func (r *Registry) SetDefaults(defaults config.MatchDefaults) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = defaults
}

func (r *Registry) matchDefaults() config.MatchDefaults {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults
}

// CreateMatch registers a new match and launches its engine in the
// background. Zero-valued fields fall back to the configured match
// defaults.
func (r *Registry) CreateMatch(cfg MatchConfig) *Match {
	defaults := r.matchDefaults()
	if cfg.MapName == "" {
		cfg.MapName = defaults.MapName
	}
	if cfg.Participants <= 0 {
		cfg.Participants = defaults.Participants
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = r.buffer
	}

	id := uuid.NewString()
	m := newMatch(id, cfg, matchDeps{
		launcher: r.launcher,
		ports:    r.ports,
		storage:  r.storage,
		metrics:  r.metrics,
		sink:     r.eventSink(),
		logger:   r.logger,
	})

	r.mu.Lock()
	r.matches[id] = m
	r.mu.Unlock()

	r.metrics.MatchStarted()
	r.logger.Info("match created",
		"match_id", id,
		"map", cfg.MapName,
		"participants", cfg.Participants,
	)

	go m.launch()
	return m
}

// DefaultMatchConfig resolves the configured defaults into a
// ready-to-use match configuration.
func (r *Registry) DefaultMatchConfig() MatchConfig {
	defaults := r.matchDefaults()
	return MatchConfig{
		MapName:         defaults.MapName,
		Participants:    defaults.Participants,
		EndOnDisconnect: defaults.EndOnDisconnect,
		Realtime:        defaults.Realtime,
		Policy:          policy.FromConfig(defaults.Policy),
		SendBuffer:      r.buffer,
	}
}

// Get returns the match with the given id.
func (r *Registry) Get(id string) (*Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return m, nil
}

// List returns all registered matches.
func (r *Registry) List() []*Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Match, 0, len(r.matches))
	for _, m := range r.matches {
		out = append(out, m)
	}
	return out
}

// Assign seats a joining bot. The first match with a free seat wins;
// when none exists a new match is created from the defaults, so two
// bots that connect back to back end up paired in one match.
func (r *Registry) Assign(conn net.Conn, join protocol.Frame) (*Match, int, error) {
	id := uuid.NewString()

	for _, m := range r.List() {
		slot, err := m.Attach(conn, join, id)
		if err == nil {
			return m, slot, nil
		}
		if !errors.Is(err, ErrMatchNotJoinable) {
			return nil, 0, err
		}
	}

	m := r.CreateMatch(r.DefaultMatchConfig())
	slot, err := m.Attach(conn, join, id)
	if err != nil {
		return nil, 0, err
	}
	return m, slot, nil
}

// StartReaper schedules the registry sweep on the given cron
// expression.
func (r *Registry) StartReaper(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, r.reap); err != nil {
		return err
	}
	c.Start()

	r.mu.Lock()
	r.cron = c
	r.mu.Unlock()
	r.logger.Info("reaper scheduled", "schedule", schedule)
	return nil
}

// reap removes torn-down matches from the table. A match is only ever
// torn down after every seat has drained, so the reaper never touches
// a match with connected participants.
func (r *Registry) reap() {
	r.mu.Lock()
	var reaped int
	for id, m := range r.matches {
		if m.State() == StateTornDown {
			delete(r.matches, id)
			reaped++
		}
	}
	r.mu.Unlock()

	if reaped > 0 {
		r.logger.Debug("reaped matches", "count", reaped)
	}
}

// Shutdown stops the reaper and terminates every live match, waiting
// for teardown up to ctx's deadline.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.cron != nil {
		r.cron.Stop()
	}
	r.mu.Unlock()

	matches := r.List()
	for _, m := range matches {
		m.Terminate()
	}
	for _, m := range matches {
		select {
		case <-m.TornDown():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.reap()
	r.logger.Info("registry shut down", "terminated", len(matches))
	return nil
}

// StatsSnapshot builds the periodic statistics payload for the
// control plane feed: the current status of every registered match.
func (r *Registry) StatsSnapshot(now time.Time) []MatchStatus {
	matches := r.List()
	out := make([]MatchStatus, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Status(now))
	}
	return out
}
