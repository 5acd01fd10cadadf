package protocol

import (
	"encoding/binary"
	"fmt"
)

// MaxFrameSize bounds a single frame's payload. Anything larger is
// treated as a framing error, not a large message.
const MaxFrameSize = 64 << 20

// headerSize is the length-prefix size on the wire.
const headerSize = 4

// Tag is the engine RPC message kind, the first payload byte of every
// frame. The proxy understands only the tags it must enforce policy
// on; everything else is opaque.
type Tag byte

// Known engine message tags.
const (
	TagAction      Tag = 0x01
	TagObservation Tag = 0x02
	TagQuery       Tag = 0x03
	TagDebug       Tag = 0x04
	TagJoinGame    Tag = 0x05
	TagLeaveGame   Tag = 0x06
	TagPing        Tag = 0x07
	TagQuit        Tag = 0x08
	TagGameOver    Tag = 0x09
	TagError       Tag = 0x0A
)

// Category is the closed set of frame categories the policy engine
// recognizes. CategoryOpaque covers every tag the proxy does not
// inspect; opaque frames take the zero-inspection fast path.
type Category int

// Frame categories.
const (
	CategoryOpaque Category = iota
	CategoryAction
	CategoryObservation
	CategoryQuery
	CategoryDebug
	CategoryJoin
	CategoryLeave
	CategoryPing
	CategoryQuit
	CategoryGameOver
	CategoryError
)

// String returns the category name used in configuration and
// statistics.
func (c Category) String() string {
	switch c {
	case CategoryAction:
		return "action"
	case CategoryObservation:
		return "observation"
	case CategoryQuery:
		return "query"
	case CategoryDebug:
		return "debug"
	case CategoryJoin:
		return "join"
	case CategoryLeave:
		return "leave"
	case CategoryPing:
		return "ping"
	case CategoryQuit:
		return "quit"
	case CategoryGameOver:
		return "game_over"
	case CategoryError:
		return "error"
	default:
		return "opaque"
	}
}

// CategoryFromName maps a configuration name to a Category. Unknown
// names map to CategoryOpaque.
func CategoryFromName(name string) Category {
	switch name {
	case "action":
		return CategoryAction
	case "observation":
		return CategoryObservation
	case "query":
		return CategoryQuery
	case "debug":
		return CategoryDebug
	case "join":
		return CategoryJoin
	case "leave":
		return CategoryLeave
	case "ping":
		return CategoryPing
	case "quit":
		return CategoryQuit
	case "game_over":
		return CategoryGameOver
	case "error":
		return CategoryError
	default:
		return CategoryOpaque
	}
}

// Category returns the policy category for a tag.
func (t Tag) Category() Category {
	switch t {
	case TagAction:
		return CategoryAction
	case TagObservation:
		return CategoryObservation
	case TagQuery:
		return CategoryQuery
	case TagDebug:
		return CategoryDebug
	case TagJoinGame:
		return CategoryJoin
	case TagLeaveGame:
		return CategoryLeave
	case TagPing:
		return CategoryPing
	case TagQuit:
		return CategoryQuit
	case TagGameOver:
		return CategoryGameOver
	case TagError:
		return CategoryError
	default:
		return CategoryOpaque
	}
}

// Frame is one discrete protocol message. It holds the exact wire
// bytes, header included, so pass-through forwarding never re-encodes
// a frame the proxy did not modify.
type Frame struct {
	raw []byte
}

// NewFrame builds a frame from a tag and body.
func NewFrame(tag Tag, body []byte) Frame {
	raw := make([]byte, headerSize+1+len(body))
	binary.BigEndian.PutUint32(raw, uint32(1+len(body)))
	raw[headerSize] = byte(tag)
	copy(raw[headerSize+1:], body)
	return Frame{raw: raw}
}

// Raw returns the exact wire bytes of the frame, header included.
// Callers must not mutate the returned slice.
func (f Frame) Raw() []byte {
	return f.raw
}

// Tag returns the message tag.
func (f Frame) Tag() Tag {
	return Tag(f.raw[headerSize])
}

// Category returns the policy category of the frame.
func (f Frame) Category() Category {
	return f.Tag().Category()
}

// Body returns the payload bytes after the tag. Callers must not
// mutate the returned slice.
func (f Frame) Body() []byte {
	return f.raw[headerSize+1:]
}

// Len returns the payload length (tag plus body).
func (f Frame) Len() int {
	return len(f.raw) - headerSize
}

func (f Frame) String() string {
	return fmt.Sprintf("Frame{%s, %d bytes}", f.Category(), f.Len())
}
