package policy

import (
	"strings"
	"time"

	"nydus-hq/nydus/pkg/config"
	"nydus-hq/nydus/pkg/protocol"
)

// Action is the policy engine's verdict on a frame.
type Action int

const (
	// ActionPass forwards the original frame bytes unchanged.
	ActionPass Action = iota
	// ActionReject stops the frame and sends a synthesized denial
	// back to the originator.
	ActionReject
	// ActionRewrite forwards a modified encoding instead of the
	// original bytes.
	ActionRewrite
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionReject:
		return "reject"
	case ActionRewrite:
		return "rewrite"
	default:
		return "pass"
	}
}

// Reject reasons, used in statistics events and denial payloads.
const (
	ReasonCategoryDisabled = "category_disabled"
	ReasonCallLimit        = "call_limit_exceeded"
	ReasonAPMLimit         = "apm_limit_exceeded"
	ReasonTimeBudget       = "time_budget_exhausted"
)

// Decision is the outcome of evaluating one frame.
type Decision struct {
	// Action is the verdict.
	Action Action

	// Reason identifies which rule rejected the frame (reject only).
	Reason string

	// Denial is the synthesized protocol-level denial to send to the
	// originator (reject only).
	Denial protocol.Frame

	// Rewritten is the frame to forward instead of the original
	// (rewrite only).
	Rewritten protocol.Frame
}

// WindowMode selects the APM window boundary policy for a match.
type WindowMode int

const (
	// WindowSliding decays smoothly: an action leaves the count
	// exactly one window-length after it was recorded.
	WindowSliding WindowMode = iota
	// WindowFixed resets the count at aligned window boundaries.
	WindowFixed
)

// String returns the mode name used in configuration.
func (m WindowMode) String() string {
	if m == WindowFixed {
		return "fixed"
	}
	return "sliding"
}

// Configuration is the runtime rule set applied to a match or
// participant. It is the parsed form of config.PolicyConfig; ceilings
// of zero mean unlimited.
//
// Configuration values are immutable once built; runtime policy
// changes swap in a whole new Configuration so a frame evaluation
// never observes a half-updated rule set.
type Configuration struct {
	// Disabled holds frame categories that are always rejected.
	Disabled map[protocol.Category]bool

	// MaxCalls caps the total number of policed API calls.
	MaxCalls int64

	// MaxAPM caps actions within the APM window.
	MaxAPM int64

	// APMWindow is the APM accounting window duration.
	APMWindow time.Duration

	// APMWindowMode is fixed per match for its whole lifetime.
	APMWindowMode WindowMode

	// TimeBudget caps a participant's cumulative wall time.
	TimeBudget time.Duration
}

// FromConfig builds a runtime Configuration from its file form.
func FromConfig(pc config.PolicyConfig) Configuration {
	disabled := make(map[protocol.Category]bool, len(pc.DisabledCategories))
	for _, name := range pc.DisabledCategories {
		disabled[protocol.CategoryFromName(name)] = true
	}

	mode := WindowSliding
	if strings.EqualFold(pc.APMWindowMode, "fixed") {
		mode = WindowFixed
	}

	window := pc.APMWindow
	if window <= 0 {
		window = time.Minute
	}

	return Configuration{
		Disabled:      disabled,
		MaxCalls:      pc.MaxCalls,
		MaxAPM:        pc.MaxAPM,
		APMWindow:     window,
		APMWindowMode: mode,
		TimeBudget:    pc.TimeBudget,
	}
}

// ToConfig converts back to the file/control-plane form.
func (c Configuration) ToConfig() config.PolicyConfig {
	names := make([]string, 0, len(c.Disabled))
	for cat, on := range c.Disabled {
		if on {
			names = append(names, cat.String())
		}
	}
	return config.PolicyConfig{
		DisabledCategories: names,
		MaxCalls:           c.MaxCalls,
		MaxAPM:             c.MaxAPM,
		APMWindow:          c.APMWindow,
		APMWindowMode:      c.APMWindowMode.String(),
		TimeBudget:         c.TimeBudget,
	}
}
