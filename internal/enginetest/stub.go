// Package enginetest provides an in-process stand-in for the game
// engine: a TCP listener speaking the frame protocol with scripted
// responses, plus a launcher that satisfies the session core's engine
// interfaces without spawning real processes.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"nydus-hq/nydus/pkg/process"
	"nydus-hq/nydus/pkg/protocol"
)

// Responder maps a received frame to the frames to send back. A nil
// return sends nothing.
type Responder func(f protocol.Frame) []protocol.Frame

// EchoResponder is the default script: joins are acknowledged, pings
// echoed, and policed requests answered with an observation carrying
// the request body back, so tests can check byte-exact forwarding.
func EchoResponder(f protocol.Frame) []protocol.Frame {
	switch f.Tag() {
	case protocol.TagJoinGame:
		return []protocol.Frame{protocol.NewFrame(protocol.TagJoinGame, []byte("ok"))}
	case protocol.TagPing:
		return []protocol.Frame{protocol.NewFrame(protocol.TagPing, f.Body())}
	case protocol.TagLeaveGame:
		return []protocol.Frame{protocol.NewFrame(protocol.TagLeaveGame, nil)}
	default:
		return []protocol.Frame{protocol.NewFrame(protocol.TagObservation, f.Body())}
	}
}

// Stub is a fake engine listening on a fixed port. It records every
// frame it receives and answers via its responder.
type Stub struct {
	ln        net.Listener
	responder Responder

	mu       sync.Mutex
	received []protocol.Frame
	conns    []net.Conn
	closed   bool
}

// Start launches a stub engine on 127.0.0.1:port. A nil responder
// uses EchoResponder.
func Start(port int, responder Responder) (*Stub, error) {
	if responder == nil {
		responder = EchoResponder
	}
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	s := &Stub{ln: ln, responder: responder}
	go s.acceptLoop()
	return s, nil
}

func (s *Stub) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.serveConn(conn)
	}
}

func (s *Stub) serveConn(conn net.Conn) {
	dec := protocol.NewDecoder(conn)
	for {
		f, err := dec.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				conn.Close()
			}
			return
		}
		s.mu.Lock()
		s.received = append(s.received, f)
		s.mu.Unlock()

		for _, resp := range s.responder(f) {
			if err := protocol.WriteFrame(conn, resp); err != nil {
				return
			}
		}
	}
}

// Received returns a snapshot of all frames received so far, across
// all connections.
func (s *Stub) Received() []protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Frame(nil), s.received...)
}

// ReceivedTags returns the tags of all received frames, in order.
func (s *Stub) ReceivedTags() []protocol.Tag {
	frames := s.Received()
	tags := make([]protocol.Tag, len(frames))
	for i, f := range frames {
		tags[i] = f.Tag()
	}
	return tags
}

// CountTag returns how many received frames carry the given tag.
func (s *Stub) CountTag(tag protocol.Tag) int {
	n := 0
	for _, f := range s.Received() {
		if f.Tag() == tag {
			n++
		}
	}
	return n
}

// SendGameOver pushes a GameOver frame with the given per-slot
// outcome bytes to every live connection.
func (s *Stub) SendGameOver(outcomes ...byte) {
	f := protocol.NewFrame(protocol.TagGameOver, outcomes)
	s.mu.Lock()
	conns := append([]net.Conn(nil), s.conns...)
	s.mu.Unlock()
	for _, c := range conns {
		_ = protocol.WriteFrame(c, f)
	}
}

// Close stops the listener and drops every connection.
func (s *Stub) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := append([]net.Conn(nil), s.conns...)
	s.mu.Unlock()

	s.ln.Close()
	for _, c := range conns {
		c.Close()
	}
}

// Launcher satisfies the session core's engine launcher interface by
// starting stubs instead of processes.
type Launcher struct {
	// Responder is applied to every launched stub; nil means
	// EchoResponder.
	Responder Responder

	// FailLaunch makes Launch return an error, simulating a missing
	// binary.
	FailLaunch bool

	mu    sync.Mutex
	procs []*Proc
}

// Launch starts a stub engine on the given port.
func (l *Launcher) Launch(_ context.Context, _ process.LaunchSpec, port int) (*Proc, error) {
	if l.FailLaunch {
		return nil, fmt.Errorf("launch refused")
	}
	stub, err := Start(port, l.Responder)
	if err != nil {
		return nil, err
	}
	p := &Proc{stub: stub, exited: make(chan struct{})}
	l.mu.Lock()
	l.procs = append(l.procs, p)
	l.mu.Unlock()
	return p, nil
}

// Procs returns every stub process launched so far.
func (l *Launcher) Procs() []*Proc {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Proc(nil), l.procs...)
}

// Proc is a fake engine process backed by a Stub.
type Proc struct {
	stub *Stub

	mu     sync.Mutex
	status process.ExitStatus
	done   bool
	exited chan struct{}
}

// Stub exposes the backing stub for assertions.
func (p *Proc) Stub() *Stub {
	return p.stub
}

// WaitReady returns immediately; the stub listens from birth.
func (p *Proc) WaitReady(_ context.Context) error {
	return nil
}

// Exited is closed when the fake process has been terminated or
// crashed.
func (p *Proc) Exited() <-chan struct{} {
	return p.exited
}

// Status returns the recorded exit status.
func (p *Proc) Status() process.ExitStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Terminate shuts the stub down cleanly with exit code zero.
func (p *Proc) Terminate(_ context.Context) error {
	p.exit(0)
	return nil
}

// Crash simulates an unexpected engine exit with the given code.
func (p *Proc) Crash(code int) {
	p.exit(code)
}

func (p *Proc) exit(code int) {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	p.status = process.ExitStatus{Code: code}
	p.mu.Unlock()

	p.stub.Close()
	close(p.exited)
}
