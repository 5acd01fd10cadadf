package proxy

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"nydus-hq/nydus/internal/enginetest"
	"nydus-hq/nydus/pkg/config"
	"nydus-hq/nydus/pkg/ports"
	"nydus-hq/nydus/pkg/process"
	"nydus-hq/nydus/pkg/protocol"
	"nydus-hq/nydus/pkg/results"
	"nydus-hq/nydus/pkg/telemetry/metrics"
)

// portBase carves a fresh port range per rig so parallel tests never
// collide on engine ports.
var portBase int64 = 23000

func testAllocator(t *testing.T) *ports.Allocator {
	t.Helper()
	base := int(atomic.AddInt64(&portBase, 20)) - 20
	a, err := ports.NewAllocator(base, base+19)
	if err != nil {
		t.Fatalf("NewAllocator: %v", err)
	}
	return a
}

// stubLauncher adapts the enginetest launcher to EngineLauncher.
type stubLauncher struct {
	inner *enginetest.Launcher
}

func (l stubLauncher) Launch(ctx context.Context, spec process.LaunchSpec, port int) (EngineProc, error) {
	p, err := l.inner.Launch(ctx, spec, port)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// rig bundles a registry wired to stub engines and memory storage.
type rig struct {
	registry *Registry
	launcher *enginetest.Launcher
	storage  *results.MemoryStorage
	alloc    *ports.Allocator
}

func newRig(t *testing.T, defaults config.MatchDefaults) *rig {
	t.Helper()
	if defaults.Participants == 0 {
		defaults.Participants = 2
	}
	if defaults.MapName == "" {
		defaults.MapName = "AbyssalReefLE"
	}

	launcher := &enginetest.Launcher{}
	alloc := testAllocator(t)
	storage := results.NewMemoryStorage()
	collector := metrics.NewCollector(&config.MetricsConfig{}, prometheus.NewRegistry())

	r := NewRegistry(RegistryOptions{
		Defaults:   defaults,
		SendBuffer: 16,
		Launcher:   stubLauncher{inner: launcher},
		Ports:      alloc,
		Storage:    storage,
		Metrics:    collector,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})

	return &rig{registry: r, launcher: launcher, storage: storage, alloc: alloc}
}

// stub returns the fake engine behind the only launched process.
func (rg *rig) stub(t *testing.T) *enginetest.Stub {
	t.Helper()
	procs := rg.launcher.Procs()
	if len(procs) == 0 {
		t.Fatal("no engine launched")
	}
	return procs[0].Stub()
}

func (rg *rig) proc(t *testing.T) *enginetest.Proc {
	t.Helper()
	procs := rg.launcher.Procs()
	if len(procs) == 0 {
		t.Fatal("no engine launched")
	}
	return procs[0]
}

// waitFor polls a condition with a test-scoped deadline.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// bot is a test client attached to a match seat over an in-memory
// pipe.
type bot struct {
	conn net.Conn
	dec  *protocol.Decoder
}

func attachBot(t *testing.T, m *Match, id string) *bot {
	t.Helper()
	botSide, proxySide := net.Pipe()
	join := protocol.NewFrame(protocol.TagJoinGame, []byte(id))
	if _, err := m.Attach(proxySide, join, id); err != nil {
		t.Fatalf("Attach(%s): %v", id, err)
	}
	t.Cleanup(func() { botSide.Close() })
	return &bot{conn: botSide, dec: protocol.NewDecoder(botSide)}
}

func (b *bot) send(t *testing.T, f protocol.Frame) {
	t.Helper()
	if err := protocol.WriteFrame(b.conn, f); err != nil {
		t.Fatalf("WriteFrame to proxy: %v", err)
	}
}

func (b *bot) recv(t *testing.T) protocol.Frame {
	t.Helper()
	f, err := b.dec.Next()
	if err != nil {
		t.Fatalf("Reading frame from proxy: %v", err)
	}
	return f
}

// startedMatch creates a match, seats n bots and waits for play to
// begin.
func startedMatch(t *testing.T, rg *rig, cfg MatchConfig) (*Match, []*bot) {
	t.Helper()
	if cfg.Participants == 0 {
		cfg.Participants = 2
	}
	m := rg.registry.CreateMatch(cfg)

	bots := make([]*bot, cfg.Participants)
	for i := range bots {
		bots[i] = attachBot(t, m, "bot-"+string(rune('a'+i)))
	}
	waitFor(t, "match in progress", func() bool {
		return m.State() == StateInProgress
	})
	return m, bots
}
