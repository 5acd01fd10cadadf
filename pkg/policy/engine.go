package policy

import (
	"time"

	"nydus-hq/nydus/pkg/protocol"
)

// Evaluate applies the rule set to one bot-originated frame and
// updates the budget. It is a pure function of its inputs plus the
// budget it mutates; it performs no I/O and never blocks.
//
// Rule order is fixed: category rules, then the call-count ceiling,
// then the APM ceiling, then the elapsed-time ceiling. Counters are
// committed only when the frame passes, so a rejected frame never
// consumes budget.
//
// Frames whose category carries no active rule take the fast path and
// are passed without their payload ever being decoded.
func Evaluate(f protocol.Frame, b *ResourceBudget, cfg Configuration, now time.Time) Decision {
	cat := f.Category()

	if !relevant(cat, cfg) {
		return Decision{Action: ActionPass}
	}

	// Category rules apply regardless of budget.
	if cfg.Disabled[cat] {
		return reject(b, f, ReasonCategoryDisabled)
	}

	policed := isPoliced(cat)
	isAction := cat == protocol.CategoryAction

	if policed && cfg.MaxCalls > 0 && b.Calls+1 > cfg.MaxCalls {
		return reject(b, f, ReasonCallLimit)
	}

	if isAction && cfg.MaxAPM > 0 && b.APMCount(now)+1 > cfg.MaxAPM {
		return reject(b, f, ReasonAPMLimit)
	}

	// Time exhaustion stops actions and queries but read-only frames
	// keep passing so the participant can observe and leave cleanly.
	if policed && cfg.TimeBudget > 0 && b.Elapsed(now) >= cfg.TimeBudget {
		return reject(b, f, ReasonTimeBudget)
	}

	if policed {
		b.Calls++
	}
	if isAction {
		b.Actions++
		b.apm.Add(now, 1)
	}
	return Decision{Action: ActionPass}
}

// relevant reports whether any active rule inspects this category.
// Opaque frames are never relevant; policed and disabled categories
// are.
func relevant(cat protocol.Category, cfg Configuration) bool {
	if cfg.Disabled[cat] {
		return true
	}
	return isPoliced(cat)
}

// isPoliced reports whether a category counts against call and time
// budgets. Observation, ping and lifecycle frames are read-only or
// structural and are never policed.
func isPoliced(cat protocol.Category) bool {
	switch cat {
	case protocol.CategoryAction, protocol.CategoryQuery, protocol.CategoryDebug:
		return true
	default:
		return false
	}
}

func reject(b *ResourceBudget, f protocol.Frame, reason string) Decision {
	b.Rejections++
	return Decision{
		Action: ActionReject,
		Reason: reason,
		Denial: BuildDenial(f.Tag(), reason),
	}
}
