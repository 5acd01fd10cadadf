package results

import (
	"errors"
	"time"

	"nydus-hq/nydus/pkg/policy"
)

// EndReason describes why a match ended.
type EndReason string

const (
	// EndNormal means the game finished and reported results.
	EndNormal EndReason = "normal"
	// EndDisconnect means a participant disconnect ended the match.
	EndDisconnect EndReason = "disconnect"
	// EndCrash means the engine process exited unexpectedly.
	EndCrash EndReason = "crash"
	// EndTerminated means the control plane force-terminated the
	// match.
	EndTerminated EndReason = "terminated"
)

// Abnormal reports whether the end reason marks an abnormal
// termination.
func (r EndReason) Abnormal() bool {
	return r == EndCrash || r == EndTerminated
}

// ParticipantResult is one seat's outcome and final consumption.
type ParticipantResult struct {
	// Slot is the seat index within the match.
	Slot int `json:"slot"`

	// Outcome is the engine-reported result ("victory", "defeat",
	// "undecided") or empty when the match ended abnormally.
	Outcome string `json:"outcome,omitempty"`

	// Budget is the final counter snapshot for the seat.
	Budget policy.Snapshot `json:"budget"`
}

// MatchRecord is the durable record written once per match, at the
// transition to Finished.
type MatchRecord struct {
	MatchID      string              `json:"match_id"`
	MapName      string              `json:"map_name"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	EndReason    EndReason           `json:"end_reason"`
	Participants []ParticipantResult `json:"participants"`
}

// ErrNotFound is returned when no record exists for a match id.
var ErrNotFound = errors.New("match record not found")
