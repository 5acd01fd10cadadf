package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"nydus-hq/nydus/pkg/policy"
	"nydus-hq/nydus/pkg/ports"
	"nydus-hq/nydus/pkg/process"
	"nydus-hq/nydus/pkg/protocol"
	"nydus-hq/nydus/pkg/results"
	"nydus-hq/nydus/pkg/telemetry/metrics"
)

// ErrMatchNotJoinable is returned when a bot tries to join a match
// that has no free seat or has already finished.
var ErrMatchNotJoinable = errors.New("match not joinable")

// ErrNoSuchSlot is returned for participant policy updates aimed at a
// slot the match does not have.
var ErrNoSuchSlot = errors.New("no such participant slot")

// teardownTimeout bounds process termination during teardown.
const teardownTimeout = 30 * time.Second

// Match is one proxied game session: an engine process, a reserved
// port, and a fixed set of participant seats. All mutable state is
// guarded by the match's own lock, so contention never crosses match
// boundaries.
type Match struct {
	// ID is the registry-assigned match id.
	ID string

	cfg      MatchConfig
	launcher EngineLauncher
	ports    *ports.Allocator
	storage  results.Storage
	metrics  *metrics.Collector
	sink     EventSink
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       MatchState
	matchPolicy policy.Configuration
	seats       []*seat
	proc        EngineProc
	port        int
	starting    bool
	endReason   results.EndReason
	createdAt   time.Time
	startedAt   time.Time
	finishedAt  time.Time

	tornDown chan struct{}
}

// seat is one participant slot. Connections and queues are set when a
// bot attaches and the match starts.
type seat struct {
	slot int
	id   string

	conn       net.Conn
	engineConn net.Conn
	joinFrame  protocol.Frame

	budget   *policy.ResourceBudget
	override *policy.Configuration

	toEngine chan protocol.Frame
	toBot    chan protocol.Frame

	connected       bool
	resultDelivered bool
	outcome         string
}

func newMatch(id string, cfg MatchConfig, deps matchDeps) *Match {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Match{
		ID:          id,
		cfg:         cfg,
		launcher:    deps.launcher,
		ports:       deps.ports,
		storage:     deps.storage,
		metrics:     deps.metrics,
		sink:        deps.sink,
		logger:      deps.logger.With("match_id", id),
		ctx:         ctx,
		cancel:      cancel,
		state:       StatePending,
		matchPolicy: cfg.Policy,
		seats:       make([]*seat, cfg.Participants),
		createdAt:   time.Now(),
		tornDown:    make(chan struct{}),
	}
	for i := range m.seats {
		m.seats[i] = &seat{slot: i}
	}
	return m
}

type matchDeps struct {
	launcher EngineLauncher
	ports    *ports.Allocator
	storage  results.Storage
	metrics  *metrics.Collector
	sink     EventSink
	logger   *slog.Logger
}

// launch reserves a port, spawns the engine and awaits readiness.
// Runs in its own goroutine; failures end the match as a crash.
func (m *Match) launch() {
	m.transition(StateLaunching)

	port, err := m.ports.Reserve()
	if err != nil {
		m.logger.Error("port reservation failed", "error", err)
		m.finish(results.EndCrash, time.Now())
		return
	}

	spec := process.LaunchSpec{MapName: m.cfg.MapName, Realtime: m.cfg.Realtime}
	proc, err := m.launcher.Launch(m.ctx, spec, port)
	if err != nil {
		m.logger.Error("engine launch failed", "error", err, "port", port)
		m.ports.Release(port)
		m.finish(results.EndCrash, time.Now())
		return
	}

	m.mu.Lock()
	m.proc = proc
	m.port = port
	m.mu.Unlock()

	go m.watchProcess(proc, port)

	if err := proc.WaitReady(m.ctx); err != nil {
		m.logger.Error("engine never became ready", "error", err, "port", port)
		tctx, tcancel := context.WithTimeout(context.Background(), teardownTimeout)
		_ = proc.Terminate(tctx)
		tcancel()
		m.finish(results.EndCrash, time.Now())
		return
	}

	// A terminate may have landed while the engine was coming up, in
	// which case teardown never saw the process handle.
	if m.finished() {
		tctx, tcancel := context.WithTimeout(context.Background(), teardownTimeout)
		_ = proc.Terminate(tctx)
		tcancel()
		return
	}

	m.logger.Info("engine ready", "port", port)
	m.transition(StateReady)
	m.maybeStart()
}

// watchProcess observes the engine exit, releases the port and ends
// the match if traffic was still flowing.
func (m *Match) watchProcess(proc EngineProc, port int) {
	<-proc.Exited()
	status := proc.Status()
	m.ports.Release(port)

	outcome := "clean"
	if status.Code != 0 || status.Err != nil {
		outcome = "crash"
	}
	m.metrics.RecordProcessExit(outcome)
	m.sink.Publish(Event{
		Type:    EventProcessExit,
		MatchID: m.ID,
		Time:    time.Now(),
		Fields:  map[string]interface{}{"code": status.Code, "outcome": outcome},
	})

	m.mu.Lock()
	finished := m.state >= StateFinished
	m.mu.Unlock()
	if finished {
		return
	}

	// A clean exit without a reported result still ends the match,
	// but only a nonzero exit counts as a crash.
	reason := results.EndCrash
	if outcome == "clean" {
		reason = results.EndNormal
	}
	m.logger.Warn("engine exited mid-match", "code", status.Code, "reason", reason)
	m.finish(reason, time.Now())
}

// Attach claims a free seat for a bot connection. The join frame is
// held back and replayed to the engine once the match starts.
func (m *Match) Attach(conn net.Conn, join protocol.Frame, id string) (int, error) {
	m.mu.Lock()
	if m.state > StateReady {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: match %s is %s", ErrMatchNotJoinable, m.ID, m.state)
	}

	var s *seat
	for _, cand := range m.seats {
		if !cand.connected {
			s = cand
			break
		}
	}
	if s == nil {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: match %s is full", ErrMatchNotJoinable, m.ID)
	}

	s.id = id
	s.conn = conn
	s.joinFrame = join
	s.budget = policy.NewResourceBudget(m.matchPolicy)
	s.toEngine = make(chan protocol.Frame, m.cfg.SendBuffer)
	s.toBot = make(chan protocol.Frame, m.cfg.SendBuffer)
	s.connected = true
	slot := s.slot
	m.mu.Unlock()

	m.logger.Info("participant attached", "slot", slot, "participant_id", id)
	m.maybeStart()
	return slot, nil
}

// maybeStart moves a fully seated, engine-ready match into play.
func (m *Match) maybeStart() {
	m.mu.Lock()
	if m.state != StateReady || m.starting {
		m.mu.Unlock()
		return
	}
	for _, s := range m.seats {
		if !s.connected {
			m.mu.Unlock()
			return
		}
	}
	m.starting = true
	m.mu.Unlock()

	go m.start()
}

// start opens one engine connection per seat, replays the held join
// frames, and begins forwarding. On any failure the match ends as a
// crash.
func (m *Match) start() {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(m.enginePort()))

	m.mu.Lock()
	seats := append([]*seat(nil), m.seats...)
	m.mu.Unlock()

	for _, s := range seats {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			m.logger.Error("engine dial failed", "error", err, "slot", s.slot)
			m.finish(results.EndCrash, time.Now())
			return
		}
		m.mu.Lock()
		s.engineConn = conn
		m.mu.Unlock()
	}

	now := time.Now()
	m.mu.Lock()
	if m.state >= StateFinished {
		m.mu.Unlock()
		return
	}
	m.state = StateInProgress
	m.startedAt = now
	for _, s := range seats {
		s.budget.StartClock(now)
	}
	m.mu.Unlock()
	m.publishState(StateInProgress)
	m.logger.Info("match in progress", "seats", len(seats))

	for _, s := range seats {
		if err := protocol.WriteFrame(s.engineConn, s.joinFrame); err != nil {
			m.logger.Error("join replay failed", "error", err, "slot", s.slot)
			m.finish(results.EndCrash, time.Now())
			return
		}
	}

	for _, s := range seats {
		go m.runSeat(s)
	}
}

// enginePort returns the reserved engine port.
func (m *Match) enginePort() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port
}

// finished reports whether the match has stopped accepting traffic.
func (m *Match) finished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state >= StateFinished
}

// finish ends the match exactly once: traffic stops, connections
// close, the result record is written and teardown begins. Later
// callers with a different reason are ignored.
func (m *Match) finish(reason results.EndReason, now time.Time) {
	m.mu.Lock()
	if m.state >= StateFinished {
		m.mu.Unlock()
		return
	}
	m.state = StateFinished
	m.endReason = reason
	m.finishedAt = now

	rec := &results.MatchRecord{
		MatchID:    m.ID,
		MapName:    m.cfg.MapName,
		StartedAt:  m.startedAt,
		FinishedAt: now,
		EndReason:  reason,
	}
	for _, s := range m.seats {
		pr := results.ParticipantResult{Slot: s.slot}
		if !reason.Abnormal() {
			pr.Outcome = s.outcome
		}
		if s.budget != nil {
			pr.Budget = s.budget.Snapshot(now)
		}
		rec.Participants = append(rec.Participants, pr)
	}
	conns := m.connsLocked()
	m.mu.Unlock()

	m.cancel()
	for _, c := range conns {
		c.Close()
	}

	if err := m.storage.Save(context.Background(), rec); err != nil {
		m.logger.Error("result record write failed", "error", err)
	}
	m.metrics.MatchEnded(string(reason))
	m.publishState(StateFinished)
	m.logger.Info("match finished", "reason", reason)

	go m.teardown()
}

// connsLocked collects every live connection. Caller holds m.mu.
func (m *Match) connsLocked() []net.Conn {
	var conns []net.Conn
	for _, s := range m.seats {
		if s.conn != nil {
			conns = append(conns, s.conn)
		}
		if s.engineConn != nil {
			conns = append(conns, s.engineConn)
		}
	}
	return conns
}

// teardown stops the engine process and marks the match reapable.
// The port is released by watchProcess when the exit is observed.
func (m *Match) teardown() {
	m.mu.Lock()
	proc := m.proc
	m.mu.Unlock()

	if proc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		if err := proc.Terminate(ctx); err != nil {
			m.logger.Warn("engine terminate failed", "error", err)
		}
		cancel()
	}

	m.mu.Lock()
	m.state = StateTornDown
	m.mu.Unlock()
	close(m.tornDown)
	m.publishState(StateTornDown)
	m.logger.Debug("match torn down")
}

// TornDown is closed once the match's process and port are released.
func (m *Match) TornDown() <-chan struct{} {
	return m.tornDown
}

// Terminate force-ends the match on behalf of the control plane.
func (m *Match) Terminate() {
	m.finish(results.EndTerminated, time.Now())
}

// seatDisconnected handles a seat whose bot connection ended. With
// end_on_disconnect the whole match ends; otherwise the seat is
// released and the match ends only when no seats remain.
func (m *Match) seatDisconnected(s *seat) {
	m.mu.Lock()
	if m.state >= StateFinished {
		m.mu.Unlock()
		return
	}
	s.connected = false
	anyLeft := false
	for _, other := range m.seats {
		if other.connected {
			anyLeft = true
			break
		}
	}
	m.mu.Unlock()

	m.logger.Info("participant disconnected", "slot", s.slot)
	if m.cfg.EndOnDisconnect || !anyLeft {
		m.finish(results.EndDisconnect, time.Now())
	}
}

// seatResultDelivered marks a seat's game result as written to its
// bot and finishes the match normally once every connected seat has
// its result on the wire. Disconnected seats never hold this up.
func (m *Match) seatResultDelivered(s *seat) {
	m.mu.Lock()
	s.resultDelivered = true
	pending := false
	for _, other := range m.seats {
		if other.connected && !other.resultDelivered {
			pending = true
			break
		}
	}
	m.mu.Unlock()

	if !pending {
		m.finish(results.EndNormal, time.Now())
	}
}

// recordOutcomes stores per-slot outcomes parsed from a GameOver
// frame.
func (m *Match) recordOutcomes(f protocol.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body := f.Body()
	for i, s := range m.seats {
		if i < len(body) {
			s.outcome = outcomeName(body[i])
		}
	}
}

// outcomeName maps a GameOver result byte to its name.
func outcomeName(b byte) string {
	switch b {
	case 1:
		return "victory"
	case 2:
		return "defeat"
	default:
		return "undecided"
	}
}

// SetPolicy replaces the whole-match rule set. It takes effect on the
// next evaluated frame; in-flight frames keep the verdict they got.
func (m *Match) SetPolicy(cfg policy.Configuration) {
	m.mu.Lock()
	m.matchPolicy = cfg
	m.mu.Unlock()
	m.logger.Info("match policy updated")
}

// SetParticipantPolicy overrides the rule set for a single seat.
func (m *Match) SetParticipantPolicy(slot int, cfg policy.Configuration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot < 0 || slot >= len(m.seats) {
		return fmt.Errorf("%w: slot %d of %d", ErrNoSuchSlot, slot, len(m.seats))
	}
	m.seats[slot].override = &cfg
	m.logger.Info("participant policy updated", "slot", slot)
	return nil
}

// Policy returns the current whole-match rule set.
func (m *Match) Policy() policy.Configuration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matchPolicy
}

// effectivePolicyLocked resolves the rule set for a seat. Caller
// holds m.mu.
func (m *Match) effectivePolicyLocked(s *seat) policy.Configuration {
	if s.override != nil {
		return *s.override
	}
	return m.matchPolicy
}

// State returns the current lifecycle state.
func (m *Match) State() MatchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status captures a point-in-time description for the control plane.
func (m *Match) Status(now time.Time) MatchStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := MatchStatus{
		ID:         m.ID,
		State:      m.state.String(),
		MapName:    m.cfg.MapName,
		Port:       m.port,
		StartedAt:  m.startedAt,
		FinishedAt: m.finishedAt,
	}
	if m.state >= StateFinished {
		st.EndReason = m.endReason
		st.Abnormal = m.endReason.Abnormal()
	}
	for _, s := range m.seats {
		ps := ParticipantStatus{Slot: s.slot, ID: s.id, Connected: s.connected}
		if s.budget != nil {
			ps.Budget = s.budget.Snapshot(now)
		}
		st.Participants = append(st.Participants, ps)
	}
	return st
}

// transition moves to a state that needs no extra bookkeeping.
func (m *Match) transition(state MatchState) {
	m.mu.Lock()
	if m.state >= StateFinished || state <= m.state {
		m.mu.Unlock()
		return
	}
	m.state = state
	m.mu.Unlock()
	m.publishState(state)
}

func (m *Match) publishState(state MatchState) {
	m.sink.Publish(Event{
		Type:    EventMatchState,
		MatchID: m.ID,
		Time:    time.Now(),
		Fields:  map[string]interface{}{"state": state.String()},
	})
}
