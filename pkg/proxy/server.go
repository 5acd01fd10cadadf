package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"nydus-hq/nydus/pkg/config"
	"nydus-hq/nydus/pkg/protocol"
	"nydus-hq/nydus/pkg/telemetry/logging"
	"nydus-hq/nydus/pkg/telemetry/metrics"
)

// Server accepts bot connections on the game listener. Until a bot
// joins a match it is in the lobby: pings are answered locally and a
// quit closes the connection without engine involvement. A JoinGame
// frame hands the connection over to a match and ends the server's
// ownership of it.
type Server struct {
	cfg      config.ProxyConfig
	registry *Registry
	metrics  *metrics.Collector
	logger   *slog.Logger

	mu   sync.Mutex
	addr net.Addr
}

// NewServer creates the game listener front end.
func NewServer(cfg config.ProxyConfig, registry *Registry, collector *metrics.Collector) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		metrics:  collector,
		logger:   logging.Component("proxy"),
	}
}

// Serve listens for bot connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	s.logger.Info("game listener started", "address", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}
		go s.handleConn(conn)
	}
}

// Addr returns the bound listener address, nil until Serve has
// started listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// handleConn runs the lobby loop for one bot connection.
func (s *Server) handleConn(conn net.Conn) {
	dec := protocol.NewDecoder(conn)
	for {
		f, err := dec.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && errors.Is(err, protocol.ErrMalformedFrame) {
				s.metrics.RecordMalformed()
				s.logger.Warn("malformed frame in lobby", "error", err,
					"remote", conn.RemoteAddr().String())
			}
			conn.Close()
			return
		}

		switch f.Tag() {
		case protocol.TagPing:
			if err := protocol.WriteFrame(conn, protocol.NewFrame(protocol.TagPing, f.Body())); err != nil {
				conn.Close()
				return
			}

		case protocol.TagQuit:
			_ = protocol.WriteFrame(conn, protocol.NewFrame(protocol.TagQuit, nil))
			conn.Close()
			return

		case protocol.TagJoinGame:
			m, slot, err := s.registry.Assign(conn, f)
			if err != nil {
				s.logger.Warn("join refused", "error", err)
				_ = protocol.WriteFrame(conn, joinRefusal(err))
				conn.Close()
				return
			}
			s.logger.Debug("bot joined",
				"match_id", m.ID,
				"slot", slot,
				"remote", conn.RemoteAddr().String(),
			)
			// The match owns the connection from here on.
			return

		default:
			// Anything else before a join is a protocol misuse; tell
			// the bot and keep the lobby open.
			body := append([]byte{byte(f.Tag())}, "join a game first"...)
			if err := protocol.WriteFrame(conn, protocol.NewFrame(protocol.TagError, body)); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// joinRefusal synthesizes the error frame sent when a join cannot be
// seated.
func joinRefusal(err error) protocol.Frame {
	body := append([]byte{byte(protocol.TagJoinGame)}, err.Error()...)
	return protocol.NewFrame(protocol.TagError, body)
}
