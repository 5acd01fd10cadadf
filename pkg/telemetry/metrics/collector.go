package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"nydus-hq/nydus/pkg/config"
)

// Collector owns every Prometheus metric the proxy exposes. It is
// designed to sit on the frame hot path, so all instruments are
// pre-registered and label sets kept small.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	framesForwarded *prometheus.CounterVec
	framesRejected  *prometheus.CounterVec
	malformedFrames prometheus.Counter
	forwardLatency  prometheus.Histogram

	matchesActive prometheus.Gauge
	matchesEnded  *prometheus.CounterVec
	processExits  *prometheus.CounterVec

	controlRequests  *prometheus.CounterVec
	statsSubscribers prometheus.Gauge
}

// NewCollector creates a collector registered against the given
// registry. If registry is nil a fresh one is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "nydus"
	}
	subsystem := cfg.Subsystem
	if subsystem == "" {
		subsystem = "proxy"
	}

	c := &Collector{
		config:   cfg,
		registry: registry,

		framesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_forwarded_total",
			Help:      "Frames forwarded, by direction and category.",
		}, []string{"direction", "category"}),

		framesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_rejected_total",
			Help:      "Frames rejected by policy, by reason.",
		}, []string{"reason"}),

		malformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "malformed_frames_total",
			Help:      "Framing violations that tore down a connection.",
		}),

		forwardLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "forward_latency_seconds",
			Help:      "Time from frame decode to forward.",
			// Proxy overhead target is sub-millisecond.
			Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
		}),

		matchesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "matches_active",
			Help:      "Matches not yet torn down.",
		}),

		matchesEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "matches_ended_total",
			Help:      "Finished matches, by end reason.",
		}, []string{"end_reason"}),

		processExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "engine_exits_total",
			Help:      "Engine process exits, by outcome.",
		}, []string{"outcome"}),

		controlRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "control_requests_total",
			Help:      "Control plane requests, by operation and status.",
		}, []string{"op", "status"}),

		statsSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stats_subscribers",
			Help:      "Control sessions subscribed to statistics.",
		}),
	}

	registry.MustRegister(
		c.framesForwarded,
		c.framesRejected,
		c.malformedFrames,
		c.forwardLatency,
		c.matchesActive,
		c.matchesEnded,
		c.processExits,
		c.controlRequests,
		c.statsSubscribers,
	)
	return c
}

// Registry returns the backing registry, for the HTTP handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordForward records a forwarded frame.
func (c *Collector) RecordForward(direction, category string, latency time.Duration) {
	c.framesForwarded.WithLabelValues(direction, category).Inc()
	c.forwardLatency.Observe(latency.Seconds())
}

// RecordReject records a policy rejection.
func (c *Collector) RecordReject(reason string) {
	c.framesRejected.WithLabelValues(reason).Inc()
}

// RecordMalformed records a framing violation.
func (c *Collector) RecordMalformed() {
	c.malformedFrames.Inc()
}

// MatchStarted bumps the active match gauge.
func (c *Collector) MatchStarted() {
	c.matchesActive.Inc()
}

// MatchEnded records a finished match.
func (c *Collector) MatchEnded(endReason string) {
	c.matchesActive.Dec()
	c.matchesEnded.WithLabelValues(endReason).Inc()
}

// RecordProcessExit records an engine exit ("clean" or "crash").
func (c *Collector) RecordProcessExit(outcome string) {
	c.processExits.WithLabelValues(outcome).Inc()
}

// RecordControlRequest records a control plane request outcome.
func (c *Collector) RecordControlRequest(op, status string) {
	c.controlRequests.WithLabelValues(op, status).Inc()
}

// StatsSubscribed adjusts the stats subscriber gauge.
func (c *Collector) StatsSubscribed(delta int) {
	c.statsSubscribers.Add(float64(delta))
}
