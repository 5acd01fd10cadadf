package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"nydus-hq/nydus/pkg/config"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector(&config.MetricsConfig{Enabled: true}, prometheus.NewRegistry())
}

func TestCollector_ForwardAndReject(t *testing.T) {
	c := newTestCollector(t)

	c.RecordForward("bot_to_engine", "action", 100*time.Microsecond)
	c.RecordForward("bot_to_engine", "action", 150*time.Microsecond)
	c.RecordForward("engine_to_bot", "observation", 50*time.Microsecond)
	c.RecordReject("apm_limit_exceeded")

	got := testutil.ToFloat64(c.framesForwarded.WithLabelValues("bot_to_engine", "action"))
	if got != 2 {
		t.Errorf("Expected 2 bot-to-engine action frames, got %v", got)
	}
	got = testutil.ToFloat64(c.framesRejected.WithLabelValues("apm_limit_exceeded"))
	if got != 1 {
		t.Errorf("Expected 1 rejection, got %v", got)
	}
}

func TestCollector_MatchLifecycle(t *testing.T) {
	c := newTestCollector(t)

	c.MatchStarted()
	c.MatchStarted()
	if got := testutil.ToFloat64(c.matchesActive); got != 2 {
		t.Errorf("Expected 2 active matches, got %v", got)
	}

	c.MatchEnded("crash")
	if got := testutil.ToFloat64(c.matchesActive); got != 1 {
		t.Errorf("Expected 1 active match after end, got %v", got)
	}
	if got := testutil.ToFloat64(c.matchesEnded.WithLabelValues("crash")); got != 1 {
		t.Errorf("Expected 1 crash-ended match, got %v", got)
	}
}

func TestCollector_DefaultsLeaveConfigUntouched(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	c := NewCollector(cfg, prometheus.NewRegistry())

	if cfg.Namespace != "" || cfg.Subsystem != "" {
		t.Errorf("NewCollector mutated caller config: namespace %q, subsystem %q",
			cfg.Namespace, cfg.Subsystem)
	}

	// The defaults still apply to the registered metrics.
	c.RecordMalformed()
	if got := testutil.ToFloat64(c.malformedFrames); got != 1 {
		t.Errorf("Expected 1 malformed frame, got %v", got)
	}
	if err := testutil.GatherAndCompare(c.registry, strings.NewReader(`
# HELP nydus_proxy_malformed_frames_total Framing violations that tore down a connection.
# TYPE nydus_proxy_malformed_frames_total counter
nydus_proxy_malformed_frames_total 1
`), "nydus_proxy_malformed_frames_total"); err != nil {
		t.Errorf("Default metric names missing: %v", err)
	}
}

func TestCollector_MetricNames(t *testing.T) {
	c := newTestCollector(t)
	c.RecordMalformed()

	expected := `
# HELP nydus_proxy_malformed_frames_total Framing violations that tore down a connection.
# TYPE nydus_proxy_malformed_frames_total counter
nydus_proxy_malformed_frames_total 1
`
	if err := testutil.GatherAndCompare(c.registry, strings.NewReader(expected),
		"nydus_proxy_malformed_frames_total"); err != nil {
		t.Errorf("Metric output mismatch: %v", err)
	}
}
