package policy

import (
	"fmt"

	"nydus-hq/nydus/pkg/protocol"
)

// denialMessages maps reject reasons to the human-readable text
// carried in the denial body. The table lives next to the rule
// definitions so a new rule cannot ship without its denial shape.
var denialMessages = map[string]string{
	ReasonCategoryDisabled: "request category disabled by match policy",
	ReasonCallLimit:        "API call budget exhausted",
	ReasonAPMLimit:         "action rate ceiling exceeded",
	ReasonTimeBudget:       "time budget exhausted",
}

// BuildDenial synthesizes the protocol-level denial for a rejected
// frame: an Error frame whose body carries the rejected frame's tag
// followed by the reason text, the same shape the engine uses for a
// refused request. The bot receives a well-formed denial rather than a
// dropped connection.
func BuildDenial(rejected protocol.Tag, reason string) protocol.Frame {
	msg, ok := denialMessages[reason]
	if !ok {
		msg = reason
	}
	body := make([]byte, 0, 1+len(msg))
	body = append(body, byte(rejected))
	body = append(body, msg...)
	return protocol.NewFrame(protocol.TagError, body)
}

// ParseDenial splits a denial frame back into the rejected tag and
// message. Used by tests and the statistics feed.
func ParseDenial(f protocol.Frame) (protocol.Tag, string, error) {
	if f.Tag() != protocol.TagError {
		return 0, "", fmt.Errorf("not a denial frame: %v", f.Tag())
	}
	body := f.Body()
	if len(body) < 1 {
		return 0, "", fmt.Errorf("denial frame has empty body")
	}
	return protocol.Tag(body[0]), string(body[1:]), nil
}
