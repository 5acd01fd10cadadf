package control

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"nydus-hq/nydus/pkg/config"
	"nydus-hq/nydus/pkg/proxy"
	"nydus-hq/nydus/pkg/results"
	"nydus-hq/nydus/pkg/telemetry/logging"
	"nydus-hq/nydus/pkg/telemetry/metrics"
)

// Server is the control plane listener. Each connection is an
// independent session speaking newline-delimited JSON.
type Server struct {
	cfg         config.ControlConfig
	registry    *proxy.Registry
	storage     results.Storage
	broadcaster *Broadcaster
	metrics     *metrics.Collector
	logger      *slog.Logger

	ctx context.Context

	mu   sync.Mutex
	addr net.Addr
}

// NewServer creates a control plane server.
func NewServer(cfg config.ControlConfig, registry *proxy.Registry, storage results.Storage,
	broadcaster *Broadcaster, collector *metrics.Collector) *Server {
	return &Server{
		cfg:         cfg,
		registry:    registry,
		storage:     storage,
		broadcaster: broadcaster,
		metrics:     collector,
		logger:      logging.Component("control"),
	}
}

// Serve listens for control connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.ctx = ctx

	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	s.logger.Info("control listener started", "address", ln.Addr().String())

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
		go newSession(s, conn).run()
	}
}

// Addr returns the bound listener address, nil until Serve has
// started listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
