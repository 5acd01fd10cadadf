package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedFrame is returned for framing violations: zero or
// oversized length prefixes and truncated payloads. A malformed frame
// tears down the owning connection, because the engine's session state
// is corrupted past recovery once framing is lost.
var ErrMalformedFrame = errors.New("malformed frame")

// Decoder reads discrete frames from a byte stream. Frames may arrive
// incrementally; Next blocks until a full frame is buffered.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder creates a streaming decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next complete frame from the stream.
//
// A clean connection close at a frame boundary returns io.EOF. A close
// or short read inside a frame returns ErrMalformedFrame, as does an
// invalid length prefix.
func (d *Decoder) Next() (Frame, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(d.r, header[:]); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("%w: truncated header: %v", ErrMalformedFrame, err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return Frame{}, fmt.Errorf("%w: zero length prefix", ErrMalformedFrame)
	}
	if length > MaxFrameSize {
		return Frame{}, fmt.Errorf("%w: length %d exceeds maximum %d", ErrMalformedFrame, length, MaxFrameSize)
	}

	raw := make([]byte, headerSize+int(length))
	copy(raw, header[:])
	if _, err := io.ReadFull(d.r, raw[headerSize:]); err != nil {
		return Frame{}, fmt.Errorf("%w: truncated payload: %v", ErrMalformedFrame, err)
	}

	return Frame{raw: raw}, nil
}

// WriteFrame writes a frame's exact wire bytes to w.
func WriteFrame(w io.Writer, f Frame) error {
	_, err := w.Write(f.raw)
	return err
}
