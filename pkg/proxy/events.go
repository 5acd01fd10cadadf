package proxy

import "time"

// EventType classifies statistics events.
type EventType string

const (
	// EventMatchState is emitted on every match state transition.
	EventMatchState EventType = "match_state"
	// EventPolicyReject is emitted when a frame is rejected.
	EventPolicyReject EventType = "policy_reject"
	// EventProcessExit is emitted when an engine process exits.
	EventProcessExit EventType = "process_exit"
)

// Event is one statistics feed entry. Events flow to the control
// plane's subscribers; publishing never blocks match traffic.
type Event struct {
	Type    EventType              `json:"type"`
	MatchID string                 `json:"match_id"`
	Time    time.Time              `json:"time"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// EventSink receives statistics events. Implementations must not
// block; the control plane's broadcaster drops events for slow
// subscribers rather than stalling traffic.
type EventSink interface {
	Publish(Event)
}

// nopSink discards events when no control plane is attached.
type nopSink struct{}

func (nopSink) Publish(Event) {}
