package control

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"nydus-hq/nydus/pkg/proxy"
	"nydus-hq/nydus/pkg/telemetry/logging"
	"nydus-hq/nydus/pkg/telemetry/metrics"
)

// Broadcaster fans statistics out to subscribed control sessions. It
// carries two kinds of traffic: event-driven entries published by the
// session core, and a periodic snapshot of every match.
//
// Delivery is best effort. A subscriber that cannot keep up has
// entries dropped rather than stalling the publisher, which may be on
// a match's frame path.
type Broadcaster struct {
	interval time.Duration
	registry *proxy.Registry
	metrics  *metrics.Collector
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[int]func(StatsMessage)
	next int
}

// NewBroadcaster creates a broadcaster pushing periodic snapshots at
// the given interval.
func NewBroadcaster(interval time.Duration, registry *proxy.Registry, collector *metrics.Collector) *Broadcaster {
	return &Broadcaster{
		interval: interval,
		registry: registry,
		metrics:  collector,
		logger:   logging.Component("stats"),
		subs:     make(map[int]func(StatsMessage)),
	}
}

// Publish forwards a session core event to all subscribers. It
// implements the registry's event sink and never blocks.
func (b *Broadcaster) Publish(ev proxy.Event) {
	b.send(StatsMessage{
		Event: string(ev.Type),
		Time:  ev.Time,
		Data: map[string]interface{}{
			"match_id": ev.MatchID,
			"fields":   ev.Fields,
		},
	})
}

// Run pushes periodic snapshots until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if b.subscriberCount() == 0 {
				continue
			}
			b.send(StatsMessage{
				Event: "stats_snapshot",
				Time:  now,
				Data:  b.registry.StatsSnapshot(now),
			})
		}
	}
}

// Subscribe registers a delivery function and returns its token. The
// function must not block; sessions drop into a bounded queue.
func (b *Broadcaster) Subscribe(deliver func(StatsMessage)) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	token := b.next
	b.next++
	b.subs[token] = deliver
	b.metrics.StatsSubscribed(1)
	return token
}

// Unsubscribe removes a subscriber. Unknown tokens are a no-op.
func (b *Broadcaster) Unsubscribe(token int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[token]; ok {
		delete(b.subs, token)
		b.metrics.StatsSubscribed(-1)
	}
}

func (b *Broadcaster) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) send(msg StatsMessage) {
	b.mu.Lock()
	subs := make([]func(StatsMessage), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(msg)
	}
}
