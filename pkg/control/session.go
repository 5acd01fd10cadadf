package control

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"nydus-hq/nydus/pkg/config"
	"nydus-hq/nydus/pkg/policy"
	"nydus-hq/nydus/pkg/proxy"
	"nydus-hq/nydus/pkg/results"
)

// maxLineSize bounds a single control request line.
const maxLineSize = 1 << 20

// outboundBuffer is the per-session queue of responses and stats
// entries awaiting the writer.
const outboundBuffer = 256

// session is one control connection: a reader dispatching JSON-line
// requests and a writer serializing responses and stats pushes onto
// the same stream.
type session struct {
	srv    *Server
	conn   net.Conn
	logger *slog.Logger

	out chan interface{}

	mu         sync.Mutex
	closed     bool
	subscribed bool
	subToken   int
}

func newSession(srv *Server, conn net.Conn) *session {
	return &session{
		srv:    srv,
		conn:   conn,
		logger: srv.logger.With("remote", conn.RemoteAddr().String()),
		out:    make(chan interface{}, outboundBuffer),
	}
}

// run drives the session until the client disconnects.
func (s *session) run() {
	defer s.close()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		enc := json.NewEncoder(s.conn)
		dead := false
		for msg := range s.out {
			if dead {
				continue
			}
			if err := enc.Encode(msg); err != nil {
				// Keep draining so the reader never blocks on a
				// dead peer's queue.
				dead = true
				s.conn.Close()
			}
		}
	}()

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.respond(errorResponse("", ErrKindInvalidRequest, "request is not valid JSON"))
			continue
		}
		s.respond(s.dispatch(req))
	}

	s.closeOut()
	<-writerDone
}

// respond enqueues a reply. Responses are never dropped; a slow
// client stalls only its own session.
func (s *session) respond(resp Response) {
	s.out <- resp
}

// deliverStats enqueues a stats push, dropping it when the session's
// queue is full or the session is gone.
func (s *session) deliverStats(msg StatsMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- msg:
	default:
	}
}

// closeOut stops the writer after the reader has finished. deliverStats
// holds the same lock, so no push can race the close.
func (s *session) closeOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

func (s *session) close() {
	s.mu.Lock()
	subscribed, token := s.subscribed, s.subToken
	s.subscribed = false
	s.mu.Unlock()

	if subscribed {
		s.srv.broadcaster.Unsubscribe(token)
	}
	s.conn.Close()
}

// dispatch routes one request to its handler and records the outcome.
func (s *session) dispatch(req Request) Response {
	var resp Response
	switch req.Op {
	case OpCreateMatch:
		resp = s.handleCreateMatch(req)
	case OpGetMatchStatus:
		resp = s.handleGetMatchStatus(req)
	case OpListMatches:
		resp = s.handleListMatches(req)
	case OpSetPolicy:
		resp = s.handleSetPolicy(req)
	case OpTerminateMatch:
		resp = s.handleTerminateMatch(req)
	case OpGetResult:
		resp = s.handleGetResult(req)
	case OpListResults:
		resp = s.handleListResults(req)
	case OpSubscribeStats:
		resp = s.handleSubscribeStats(req)
	case OpUnsubscribeStats:
		resp = s.handleUnsubscribeStats(req)
	case OpPing:
		resp = Response{ID: req.ID, Result: map[string]bool{"pong": true}}
	case "":
		resp = errorResponse(req.ID, ErrKindInvalidRequest, "missing op")
	default:
		resp = errorResponse(req.ID, ErrKindInvalidRequest, fmt.Sprintf("unknown op %q", req.Op))
	}

	op := req.Op
	if op == "" {
		op = "unknown"
	}
	status := "ok"
	if resp.Error != nil {
		status = "error"
	}
	s.srv.metrics.RecordControlRequest(op, status)
	return resp
}

func (s *session) handleCreateMatch(req Request) Response {
	var p createMatchParams
	if err := unmarshalParams(req.Params, &p); err != nil {
		return errorResponse(req.ID, ErrKindInvalidParams, err.Error())
	}

	cfg := s.srv.registry.DefaultMatchConfig()
	if p.MapName != "" {
		cfg.MapName = p.MapName
	}
	if p.Participants > 0 {
		cfg.Participants = p.Participants
	}
	if p.EndOnDisconnect != nil {
		cfg.EndOnDisconnect = *p.EndOnDisconnect
	}
	if p.Realtime != nil {
		cfg.Realtime = *p.Realtime
	}
	if p.Policy != nil {
		pc := p.Policy.toConfig()
		if err := config.ValidatePolicy(&pc); err != nil {
			return errorResponse(req.ID, ErrKindInvalidParams, err.Error())
		}
		cfg.Policy = policy.FromConfig(pc)
	}

	m := s.srv.registry.CreateMatch(cfg)
	s.logger.Info("match created via control plane", "match_id", m.ID)
	return Response{ID: req.ID, Result: createMatchResult{
		MatchID: m.ID,
		State:   m.State().String(),
	}}
}

func (s *session) handleGetMatchStatus(req Request) Response {
	m, resp := s.lookupMatch(req)
	if m == nil {
		return resp
	}
	return Response{ID: req.ID, Result: m.Status(time.Now())}
}

func (s *session) handleListMatches(req Request) Response {
	return Response{ID: req.ID, Result: listMatchesResult{
		Matches: s.srv.registry.StatsSnapshot(time.Now()),
	}}
}

func (s *session) handleSetPolicy(req Request) Response {
	var p setPolicyParams
	if err := unmarshalParams(req.Params, &p); err != nil {
		return errorResponse(req.ID, ErrKindInvalidParams, err.Error())
	}

	pc := p.Policy.toConfig()
	if err := config.ValidatePolicy(&pc); err != nil {
		return errorResponse(req.ID, ErrKindInvalidParams, err.Error())
	}

	m, err := s.srv.registry.Get(p.MatchID)
	if err != nil {
		return errorResponse(req.ID, ErrKindNotFound, err.Error())
	}

	cfg := policy.FromConfig(pc)
	if p.Slot != nil {
		if err := m.SetParticipantPolicy(*p.Slot, cfg); err != nil {
			return errorResponse(req.ID, ErrKindInvalidParams, err.Error())
		}
	} else {
		m.SetPolicy(cfg)
	}
	return Response{ID: req.ID, Result: map[string]bool{"updated": true}}
}

func (s *session) handleTerminateMatch(req Request) Response {
	m, resp := s.lookupMatch(req)
	if m == nil {
		return resp
	}
	m.Terminate()
	s.logger.Info("match terminated via control plane", "match_id", m.ID)
	return Response{ID: req.ID, Result: map[string]bool{"terminated": true}}
}

func (s *session) handleGetResult(req Request) Response {
	var p matchIDParams
	if err := unmarshalParams(req.Params, &p); err != nil {
		return errorResponse(req.ID, ErrKindInvalidParams, err.Error())
	}
	if p.MatchID == "" {
		return errorResponse(req.ID, ErrKindInvalidParams, "match_id required")
	}

	rec, err := s.srv.storage.Get(s.srv.ctx, p.MatchID)
	if err != nil {
		if errors.Is(err, results.ErrNotFound) {
			return errorResponse(req.ID, ErrKindNotFound, err.Error())
		}
		return errorResponse(req.ID, ErrKindInternal, err.Error())
	}
	return Response{ID: req.ID, Result: rec}
}

func (s *session) handleListResults(req Request) Response {
	var p listResultsParams
	if err := unmarshalParams(req.Params, &p); err != nil {
		return errorResponse(req.ID, ErrKindInvalidParams, err.Error())
	}

	recs, err := s.srv.storage.List(s.srv.ctx, p.Limit)
	if err != nil {
		return errorResponse(req.ID, ErrKindInternal, err.Error())
	}
	return Response{ID: req.ID, Result: listResultsResult{Results: recs}}
}

func (s *session) handleSubscribeStats(req Request) Response {
	s.mu.Lock()
	already := s.subscribed
	s.mu.Unlock()
	if !already {
		token := s.srv.broadcaster.Subscribe(s.deliverStats)
		s.mu.Lock()
		s.subscribed = true
		s.subToken = token
		s.mu.Unlock()
	}
	return Response{ID: req.ID, Result: map[string]bool{"subscribed": true}}
}

func (s *session) handleUnsubscribeStats(req Request) Response {
	s.mu.Lock()
	subscribed, token := s.subscribed, s.subToken
	s.subscribed = false
	s.mu.Unlock()
	if subscribed {
		s.srv.broadcaster.Unsubscribe(token)
	}
	return Response{ID: req.ID, Result: map[string]bool{"subscribed": false}}
}

// lookupMatch resolves the match_id param shared by several ops. On
// failure it returns a nil match and the error response to send.
func (s *session) lookupMatch(req Request) (*proxy.Match, Response) {
	var p matchIDParams
	if err := unmarshalParams(req.Params, &p); err != nil {
		return nil, errorResponse(req.ID, ErrKindInvalidParams, err.Error())
	}
	if p.MatchID == "" {
		return nil, errorResponse(req.ID, ErrKindInvalidParams, "match_id required")
	}
	m, err := s.srv.registry.Get(p.MatchID)
	if err != nil {
		return nil, errorResponse(req.ID, ErrKindNotFound, err.Error())
	}
	return m, Response{}
}

func unmarshalParams(raw json.RawMessage, into interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func errorResponse(id, kind, message string) Response {
	return Response{ID: id, Error: &ErrorInfo{Kind: kind, Message: message}}
}
