package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestDecoder_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f1 := NewFrame(TagAction, []byte("move 1,2"))
	f2 := NewFrame(TagObservation, nil)
	buf.Write(f1.Raw())
	buf.Write(f2.Raw())

	dec := NewDecoder(&buf)

	got1, err := dec.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if got1.Category() != CategoryAction {
		t.Errorf("Expected action category, got %v", got1.Category())
	}
	if string(got1.Body()) != "move 1,2" {
		t.Errorf("Unexpected body %q", got1.Body())
	}
	if !bytes.Equal(got1.Raw(), f1.Raw()) {
		t.Error("Decoded frame bytes differ from encoded bytes")
	}

	got2, err := dec.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if got2.Category() != CategoryObservation || got2.Len() != 1 {
		t.Errorf("Unexpected second frame %v", got2)
	}

	if _, err := dec.Next(); err != io.EOF {
		t.Errorf("Expected io.EOF at stream end, got %v", err)
	}
}

func TestDecoder_IncrementalArrival(t *testing.T) {
	f := NewFrame(TagQuery, []byte("unit-count"))
	raw := f.Raw()

	// Feed the frame one byte at a time.
	dec := NewDecoder(&oneByteReader{data: raw})

	got, err := dec.Next()
	if err != nil {
		t.Fatalf("Next failed on incremental stream: %v", err)
	}
	if !bytes.Equal(got.Raw(), raw) {
		t.Error("Incremental decode altered frame bytes")
	}
}

// oneByteReader yields one byte per Read call.
type oneByteReader struct {
	data []byte
	pos  int
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}

func TestDecoder_ZeroLength(t *testing.T) {
	dec := NewDecoder(bytes.NewReader([]byte{0, 0, 0, 0}))
	if _, err := dec.Next(); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Expected ErrMalformedFrame for zero length, got %v", err)
	}
}

func TestDecoder_OversizedLength(t *testing.T) {
	dec := NewDecoder(bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF}))
	if _, err := dec.Next(); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Expected ErrMalformedFrame for oversized length, got %v", err)
	}
}

func TestDecoder_TruncatedPayload(t *testing.T) {
	f := NewFrame(TagAction, []byte("full payload"))
	truncated := f.Raw()[:len(f.Raw())-3]

	dec := NewDecoder(bytes.NewReader(truncated))
	if _, err := dec.Next(); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Expected ErrMalformedFrame for truncated payload, got %v", err)
	}
}

func TestDecoder_TruncatedHeader(t *testing.T) {
	dec := NewDecoder(bytes.NewReader([]byte{0, 0}))
	if _, err := dec.Next(); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Expected ErrMalformedFrame for truncated header, got %v", err)
	}
}

func TestTag_CategoryMapping(t *testing.T) {
	cases := []struct {
		tag  Tag
		want Category
	}{
		{TagAction, CategoryAction},
		{TagObservation, CategoryObservation},
		{TagDebug, CategoryDebug},
		{TagPing, CategoryPing},
		{Tag(0x7F), CategoryOpaque},
	}
	for _, c := range cases {
		if got := c.tag.Category(); got != c.want {
			t.Errorf("Tag %#x: expected %v, got %v", c.tag, c.want, got)
		}
	}
}

func TestCategoryFromName_RoundTrip(t *testing.T) {
	for _, cat := range []Category{
		CategoryAction, CategoryObservation, CategoryQuery, CategoryDebug,
		CategoryJoin, CategoryLeave, CategoryPing, CategoryQuit,
		CategoryGameOver, CategoryError,
	} {
		if got := CategoryFromName(cat.String()); got != cat {
			t.Errorf("CategoryFromName(%q) = %v, want %v", cat.String(), got, cat)
		}
	}
	if got := CategoryFromName("teleport"); got != CategoryOpaque {
		t.Errorf("Unknown name should map to opaque, got %v", got)
	}
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	f := NewFrame(TagPing, []byte{1, 2, 3})
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), f.Raw()) {
		t.Error("WriteFrame altered bytes")
	}
}
