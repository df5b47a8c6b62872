package frame

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/danmuck/lotusrpc/internal/protocol"
)

func TestEncodeBuildsHeader(t *testing.T) {
	msg, err := Encode(0, 1, []byte{0xD7, 0x11, 0x7B, 0x01}, DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{0x07, 0x00, 0x01, 0xD7, 0x11, 0x7B, 0x01}
	if !bytes.Equal(msg, want) {
		t.Fatalf("message mismatch: got=% x want=% x", msg, want)
	}
}

func TestEncodeEmptyPayload(t *testing.T) {
	msg, err := Encode(3, 0, nil, DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(msg, []byte{3, 3, 0}) {
		t.Fatalf("unexpected message % x", msg)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(1, 1, make([]byte, 253), DefaultLimits())
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
	if !errors.Is(err, protocol.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if _, err := Encode(1, 1, make([]byte, 252), DefaultLimits()); err != nil {
		t.Fatalf("255 byte message should fit: %v", err)
	}
}

func TestEncodeHonorsBufferLimits(t *testing.T) {
	limits := LimitsForBuffer(8)
	if _, err := Encode(1, 1, make([]byte, 5), limits); err != nil {
		t.Fatalf("8 byte message should fit: %v", err)
	}
	if _, err := Encode(1, 1, make([]byte, 6), limits); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
	if got := LimitsForBuffer(1024).MaxMessageSize; got != protocol.MaxMessageSize {
		t.Fatalf("oversized buffer should clamp to %d, got %d", protocol.MaxMessageSize, got)
	}
}

func TestDecodeSplitsHeader(t *testing.T) {
	f, err := Decode([]byte{0x04, 0x01, 0x00, 0xCD})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := protocol.Header{Size: 4, Service: 1, ID: 0}
	if f.Header != want {
		t.Fatalf("header mismatch: got=%+v want=%+v", f.Header, want)
	}
	if !bytes.Equal(f.Payload, []byte{0xCD}) {
		t.Fatalf("payload mismatch: % x", f.Payload)
	}
}

func TestDecodeShortMessage(t *testing.T) {
	_, err := Decode([]byte{0x03, 0x01})
	if !errors.Is(err, ErrShortMessage) {
		t.Fatalf("expected ErrShortMessage, got %v", err)
	}
	if !strings.Contains(err.Error(), "an LRPC message has at least 3 bytes") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestDecodeSizeMismatch(t *testing.T) {
	_, err := Decode([]byte{0x04, 0x01, 0x00})
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
	if !errors.Is(err, protocol.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Expected 4 but got 3") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestReadWriteFrameRoundTrip(t *testing.T) {
	in := Frame{Header: protocol.Header{Service: 2, ID: 3}, Payload: []byte{0x45, 0x67, 0x89, 0x00}}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0x07, 0x02, 0x03, 0x45, 0x67, 0x89, 0x00}) {
		t.Fatalf("unexpected wire bytes % x", buf.Bytes())
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if out.Header.Service != 2 || out.Header.ID != 3 || out.Header.Size != 7 {
		t.Fatalf("header mismatch: %+v", out.Header)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestReadFrameTruncated(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x06, 0x02, 0x02, 0xCD}), DefaultLimits())
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}
}

func TestReadFrameLengthBelowHeader(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x02, 0x00}), DefaultLimits())
	if !errors.Is(err, ErrShortMessage) {
		t.Fatalf("expected ErrShortMessage, got %v", err)
	}
}

func TestReadFrameEmptyReader(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil), DefaultLimits())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestAssemblerYieldsOneFrameAtATime(t *testing.T) {
	a := NewAssembler(DefaultLimits())
	a.Push([]byte{0x04, 0x01, 0x00})
	if _, ok, err := a.Next(); ok || err != nil {
		t.Fatalf("incomplete message should wait: ok=%v err=%v", ok, err)
	}
	a.Push([]byte{0xAB, 0x06, 0x02, 0x02, 0xCD, 0x01, 0x02, 0x04})

	msg, ok, err := a.Next()
	if err != nil || !ok {
		t.Fatalf("first frame: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(msg, []byte{0x04, 0x01, 0x00, 0xAB}) {
		t.Fatalf("first frame mismatch: % x", msg)
	}
	msg, ok, err = a.Next()
	if err != nil || !ok {
		t.Fatalf("second frame: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(msg, []byte{0x06, 0x02, 0x02, 0xCD, 0x01, 0x02}) {
		t.Fatalf("second frame mismatch: % x", msg)
	}
	if a.Buffered() != 1 {
		t.Fatalf("expected one trailing byte, got %d", a.Buffered())
	}
	if _, ok, _ := a.Next(); ok {
		t.Fatalf("partial third frame should not be yielded")
	}
}

func TestAssemblerRejectsShortLength(t *testing.T) {
	a := NewAssembler(DefaultLimits())
	a.Push([]byte{0x01, 0xFF})
	_, ok, err := a.Next()
	if ok || !errors.Is(err, ErrShortMessage) {
		t.Fatalf("expected ErrShortMessage, got ok=%v err=%v", ok, err)
	}
	if a.Buffered() != 0 {
		t.Fatalf("malformed buffer should be dropped, %d bytes left", a.Buffered())
	}
}

func TestAssemblerRejectsLengthAboveLimit(t *testing.T) {
	a := NewAssembler(LimitsForBuffer(16))
	a.Push([]byte{0x20, 0x00, 0x00})
	if _, _, err := a.Next(); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestAssemblerNeeded(t *testing.T) {
	a := NewAssembler(DefaultLimits())
	if a.Needed() != 1 {
		t.Fatalf("empty assembler needs the length byte, got %d", a.Needed())
	}
	a.Push([]byte{0x06, 0x02})
	if a.Needed() != 4 {
		t.Fatalf("expected 4 missing bytes, got %d", a.Needed())
	}
	a.Push([]byte{0x02, 0xCD, 0x01, 0x02})
	if a.Needed() != 0 {
		t.Fatalf("complete message needs nothing, got %d", a.Needed())
	}
}
