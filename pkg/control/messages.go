package control

import (
	"encoding/json"
	"time"

	"nydus-hq/nydus/pkg/config"
	"nydus-hq/nydus/pkg/proxy"
	"nydus-hq/nydus/pkg/results"
)

// Request is one control plane request, a single JSON line. The id is
// echoed in the response so clients can correlate over a pipelined
// connection.
type Request struct {
	ID     string          `json:"id,omitempty"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the reply to one request. Exactly one of Result and
// Error is set.
type Response struct {
	ID     string      `json:"id,omitempty"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo describes a failed request.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Error kinds.
const (
	ErrKindInvalidRequest = "invalid_request"
	ErrKindInvalidParams  = "invalid_params"
	ErrKindNotFound       = "not_found"
	ErrKindInternal       = "internal"
)

// Supported operations.
const (
	OpCreateMatch      = "create_match"
	OpGetMatchStatus   = "get_match_status"
	OpListMatches      = "list_matches"
	OpSetPolicy        = "set_policy"
	OpTerminateMatch   = "terminate_match"
	OpGetResult        = "get_result"
	OpListResults      = "list_results"
	OpSubscribeStats   = "subscribe_stats"
	OpUnsubscribeStats = "unsubscribe_stats"
	OpPing             = "ping"
)

// StatsMessage is a pushed statistics feed entry, distinguishable
// from responses by its event field.
type StatsMessage struct {
	Event string      `json:"event"`
	Time  time.Time   `json:"time"`
	Data  interface{} `json:"data,omitempty"`
}

// PolicyParams is the wire form of a policy rule set. Durations are
// carried as milliseconds so clients never deal with Go duration
// encoding.
type PolicyParams struct {
	DisabledCategories []string `json:"disabled_categories,omitempty"`
	MaxCalls           int64    `json:"max_calls,omitempty"`
	MaxAPM             int64    `json:"max_apm,omitempty"`
	APMWindowMS        int64    `json:"apm_window_ms,omitempty"`
	APMWindowMode      string   `json:"apm_window_mode,omitempty"`
	TimeBudgetMS       int64    `json:"time_budget_ms,omitempty"`
}

// toConfig converts wire params to the configuration form.
func (p PolicyParams) toConfig() config.PolicyConfig {
	return config.PolicyConfig{
		DisabledCategories: p.DisabledCategories,
		MaxCalls:           p.MaxCalls,
		MaxAPM:             p.MaxAPM,
		APMWindow:          time.Duration(p.APMWindowMS) * time.Millisecond,
		APMWindowMode:      p.APMWindowMode,
		TimeBudget:         time.Duration(p.TimeBudgetMS) * time.Millisecond,
	}
}

// createMatchParams configures a new match. Zero-valued fields fall
// back to the server's match defaults.
type createMatchParams struct {
	MapName         string        `json:"map_name,omitempty"`
	Participants    int           `json:"participants,omitempty"`
	EndOnDisconnect *bool         `json:"end_on_disconnect,omitempty"`
	Realtime        *bool         `json:"realtime,omitempty"`
	Policy          *PolicyParams `json:"policy,omitempty"`
}

// matchIDParams addresses a single match.
type matchIDParams struct {
	MatchID string `json:"match_id"`
}

// setPolicyParams replaces a match's rule set, or one seat's when
// slot is given.
type setPolicyParams struct {
	MatchID string       `json:"match_id"`
	Slot    *int         `json:"slot,omitempty"`
	Policy  PolicyParams `json:"policy"`
}

// listResultsParams bounds a result listing.
type listResultsParams struct {
	Limit int `json:"limit,omitempty"`
}

// createMatchResult is the create_match response payload.
type createMatchResult struct {
	MatchID string `json:"match_id"`
	State   string `json:"state"`
}

// listMatchesResult is the list_matches response payload.
type listMatchesResult struct {
	Matches []proxy.MatchStatus `json:"matches"`
}

// listResultsResult is the list_results response payload.
type listResultsResult struct {
	Results []*results.MatchRecord `json:"results"`
}
