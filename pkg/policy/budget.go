package policy

import (
	"time"

	"nydus-hq/nydus/pkg/policy/ratelimit"
)

// ResourceBudget tracks one participant's consumption against the
// configured ceilings. Calls and actions only grow for the life of a
// match; the APM window is the single decaying counter.
//
// The budget is mutated only by its owning participant's forwarding
// loop under the match lock, so plain fields suffice here; the APM
// window carries its own lock because stats snapshots read it
// concurrently.
type ResourceBudget struct {
	// Calls is the total number of policed API calls evaluated.
	Calls int64

	// Actions is the total number of action frames evaluated.
	Actions int64

	// Rejections is the total number of frames rejected.
	Rejections int64

	apm     ratelimit.Window
	started time.Time
}

// NewResourceBudget creates a budget with an APM window built from
// the configuration's mode and duration. The window mode and duration
// are fixed for the budget's lifetime even if ceilings later change.
func NewResourceBudget(cfg Configuration) *ResourceBudget {
	var w ratelimit.Window
	switch cfg.APMWindowMode {
	case WindowFixed:
		w = ratelimit.NewFixedWindow(cfg.APMWindow)
	default:
		bucket := cfg.APMWindow / 60
		if bucket < time.Millisecond {
			bucket = time.Millisecond
		}
		w = ratelimit.NewSlidingWindow(cfg.APMWindow, bucket)
	}
	return &ResourceBudget{apm: w}
}

// StartClock begins elapsed-time accounting. The session proxy calls
// this once, when the match reaches InProgress.
func (b *ResourceBudget) StartClock(now time.Time) {
	if b.started.IsZero() {
		b.started = now
	}
}

// Elapsed returns the wall time consumed since the clock started.
func (b *ResourceBudget) Elapsed(now time.Time) time.Duration {
	if b.started.IsZero() {
		return 0
	}
	return now.Sub(b.started)
}

// APMCount returns the actions currently inside the APM window.
func (b *ResourceBudget) APMCount(now time.Time) int64 {
	return b.apm.Count(now)
}

// Snapshot is a point-in-time copy of budget counters for the
// statistics feed.
type Snapshot struct {
	Calls      int64         `json:"calls"`
	Actions    int64         `json:"actions"`
	Rejections int64         `json:"rejections"`
	APMCurrent int64         `json:"apm_current"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Snapshot captures the current counters.
func (b *ResourceBudget) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		Calls:      b.Calls,
		Actions:    b.Actions,
		Rejections: b.Rejections,
		APMCurrent: b.APMCount(now),
		Elapsed:    b.Elapsed(now),
	}
}
