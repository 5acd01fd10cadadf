package proxy

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"

	"nydus-hq/nydus/pkg/config"
	"nydus-hq/nydus/pkg/protocol"
)

func startServer(t *testing.T, rg *rig) *Server {
	t.Helper()
	srv := NewServer(config.ProxyConfig{ListenAddress: "127.0.0.1:0"}, rg.registry, rg.registry.metrics)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = srv.Serve(ctx)
	}()
	waitFor(t, "server listening", func() bool {
		return srv.Addr() != nil
	})
	return srv
}

func dialServer(t *testing.T, srv *Server) (net.Conn, *protocol.Decoder) {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial server: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, protocol.NewDecoder(conn)
}

func TestServer_LobbyPingAndQuit(t *testing.T) {
	rg := newRig(t, config.MatchDefaults{})
	srv := startServer(t, rg)
	conn, dec := dialServer(t, srv)

	// Pings are answered locally, echoing the body.
	body := []byte("still there?")
	if err := protocol.WriteFrame(conn, protocol.NewFrame(protocol.TagPing, body)); err != nil {
		t.Fatalf("Write ping: %v", err)
	}
	f, err := dec.Next()
	if err != nil {
		t.Fatalf("Read ping reply: %v", err)
	}
	if f.Tag() != protocol.TagPing || !bytes.Equal(f.Body(), body) {
		t.Fatalf("Ping reply = %v %q", f.Tag(), f.Body())
	}

	// No engine was launched for lobby traffic.
	if got := len(rg.launcher.Procs()); got != 0 {
		t.Errorf("Lobby ping launched %d engines", got)
	}

	// Quit gets an acknowledgement and a close.
	if err := protocol.WriteFrame(conn, protocol.NewFrame(protocol.TagQuit, nil)); err != nil {
		t.Fatalf("Write quit: %v", err)
	}
	f, err = dec.Next()
	if err != nil {
		t.Fatalf("Read quit reply: %v", err)
	}
	if f.Tag() != protocol.TagQuit {
		t.Fatalf("Quit reply = %v", f.Tag())
	}
	if _, err := dec.Next(); err != io.EOF {
		t.Errorf("Expected close after quit, got %v", err)
	}
}

func TestServer_RequestBeforeJoinRefused(t *testing.T) {
	rg := newRig(t, config.MatchDefaults{})
	srv := startServer(t, rg)
	conn, dec := dialServer(t, srv)

	if err := protocol.WriteFrame(conn, protocol.NewFrame(protocol.TagAction, nil)); err != nil {
		t.Fatalf("Write action: %v", err)
	}
	f, err := dec.Next()
	if err != nil {
		t.Fatalf("Read reply: %v", err)
	}
	if f.Tag() != protocol.TagError {
		t.Fatalf("Pre-join action got %v, want error", f.Tag())
	}

	// The connection survives the misuse; a ping still works.
	if err := protocol.WriteFrame(conn, protocol.NewFrame(protocol.TagPing, nil)); err != nil {
		t.Fatalf("Write ping: %v", err)
	}
	f, err = dec.Next()
	if err != nil {
		t.Fatalf("Ping after misuse: %v", err)
	}
	if f.Tag() != protocol.TagPing {
		t.Fatalf("Ping after misuse got %v", f.Tag())
	}
}

func TestServer_JoinPairsAndPlays(t *testing.T) {
	rg := newRig(t, config.MatchDefaults{Participants: 2})
	srv := startServer(t, rg)

	connA, decA := dialServer(t, srv)
	connB, decB := dialServer(t, srv)

	for _, conn := range []net.Conn{connA, connB} {
		if err := protocol.WriteFrame(conn, protocol.NewFrame(protocol.TagJoinGame, nil)); err != nil {
			t.Fatalf("Write join: %v", err)
		}
	}

	// Both joins land in one match and get engine acknowledgements.
	for i, dec := range []*protocol.Decoder{decA, decB} {
		f, err := dec.Next()
		if err != nil {
			t.Fatalf("Bot %d join reply: %v", i, err)
		}
		if f.Tag() != protocol.TagJoinGame {
			t.Fatalf("Bot %d join reply = %v", i, f.Tag())
		}
	}
	if got := len(rg.registry.List()); got != 1 {
		t.Fatalf("Join created %d matches, want 1", got)
	}
	if got := len(rg.launcher.Procs()); got != 1 {
		t.Fatalf("Join launched %d engines, want 1", got)
	}

	// Post-join traffic flows through the match.
	body := []byte("scout")
	if err := protocol.WriteFrame(connA, protocol.NewFrame(protocol.TagQuery, body)); err != nil {
		t.Fatalf("Write query: %v", err)
	}
	f, err := decA.Next()
	if err != nil {
		t.Fatalf("Query reply: %v", err)
	}
	if f.Tag() != protocol.TagObservation || !bytes.Equal(f.Body(), body) {
		t.Fatalf("Query reply = %v %q", f.Tag(), f.Body())
	}
}
