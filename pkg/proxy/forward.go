package proxy

import (
	"errors"
	"net"
	"sync"
	"time"

	"nydus-hq/nydus/pkg/policy"
	"nydus-hq/nydus/pkg/protocol"
)

// runSeat drives one participant's traffic until both directions
// drain. Each direction has a single reader and a single writer with a
// bounded queue between them, so per-direction frame order is
// preserved and a full queue pauses reads from that source side only.
//
// The bot-side writer runs in this goroutine and consumes toBot, which
// is fed by both the engine reader (pass-through) and the bot reader
// (synthesized denials). The writer observes GameOver delivery, so the
// match only finishes normally once every seat has its result on the
// wire.
func (m *Match) runSeat(s *seat) {
	go m.writeLoop(s.engineConn, s.toEngine, nil)

	var producers sync.WaitGroup
	producers.Add(2)

	go func() {
		defer producers.Done()
		defer close(s.toEngine)
		if m.readBot(s) {
			// Bot side is gone or sent garbage. Close both conns so
			// the engine reader unblocks and a misbehaving bot is cut
			// off rather than left hanging.
			s.conn.Close()
			s.engineConn.Close()
			m.seatDisconnected(s)
		}
	}()
	go func() {
		defer producers.Done()
		m.readEngine(s)
	}()
	go func() {
		producers.Wait()
		close(s.toBot)
	}()

	m.writeLoop(s.conn, s.toBot, func(f protocol.Frame) {
		if f.Tag() == protocol.TagGameOver {
			m.seatResultDelivered(s)
		}
	})
}

// writeLoop drains a frame queue onto a connection, calling delivered
// after each successful write. After a write error it keeps draining
// and discards, so producers never block on a dead peer.
func (m *Match) writeLoop(conn net.Conn, frames <-chan protocol.Frame, delivered func(protocol.Frame)) {
	dead := false
	for f := range frames {
		if dead {
			continue
		}
		if err := protocol.WriteFrame(conn, f); err != nil {
			dead = true
			continue
		}
		if delivered != nil {
			delivered(f)
		}
	}
}

// readBot decodes frames from the bot, evaluates each against the
// effective rule set and forwards or denies. Returns true when the
// bot side is gone (disconnect or framing violation).
func (m *Match) readBot(s *seat) bool {
	dec := protocol.NewDecoder(s.conn)
	for {
		f, err := dec.Next()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedFrame) && !m.finished() {
				m.metrics.RecordMalformed()
				m.logger.Warn("malformed frame from bot, tearing down seat",
					"slot", s.slot, "error", err)
			}
			// EOF and framing violations alike mean the bot side is
			// done sending.
			return true
		}

		// Frames that arrive after termination are discarded.
		if m.finished() {
			continue
		}

		start := time.Now()
		m.mu.Lock()
		cfg := m.effectivePolicyLocked(s)
		d := policy.Evaluate(f, s.budget, cfg, start)
		m.mu.Unlock()

		switch d.Action {
		case policy.ActionPass:
			s.toEngine <- f
			m.metrics.RecordForward("bot_to_engine", f.Category().String(), time.Since(start))
		case policy.ActionRewrite:
			s.toEngine <- d.Rewritten
			m.metrics.RecordForward("bot_to_engine", f.Category().String(), time.Since(start))
		case policy.ActionReject:
			s.toBot <- d.Denial
			m.metrics.RecordReject(d.Reason)
			m.sink.Publish(Event{
				Type:    EventPolicyReject,
				MatchID: m.ID,
				Time:    start,
				Fields: map[string]interface{}{
					"slot":     s.slot,
					"category": f.Category().String(),
					"reason":   d.Reason,
				},
			})
			m.logger.Debug("frame rejected",
				"slot", s.slot,
				"category", f.Category().String(),
				"reason", d.Reason,
			)
		}
	}
}

// readEngine passes engine frames through to the bot untouched,
// watching only for the game result. Once a GameOver frame is queued
// the seat's engine side is done.
func (m *Match) readEngine(s *seat) {
	dec := protocol.NewDecoder(s.engineConn)
	for {
		f, err := dec.Next()
		if err != nil {
			return
		}

		if m.finished() {
			continue
		}

		start := time.Now()
		s.toBot <- f
		m.metrics.RecordForward("engine_to_bot", f.Category().String(), time.Since(start))

		if f.Tag() == protocol.TagGameOver {
			m.recordOutcomes(f)
			return
		}
	}
}
