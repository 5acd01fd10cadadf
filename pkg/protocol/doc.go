// Package protocol implements the engine's length-prefixed binary
// framing.
//
// Wire format: a uint32 big-endian payload length followed by the
// payload, whose first byte is the message tag. The proxy classifies
// frames into a closed category set by tag alone and forwards
// unmodified frames byte-for-byte; it never re-serializes what it does
// not rewrite.
package protocol
