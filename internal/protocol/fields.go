package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// writer appends little-endian primitives to a growing buffer.
type writer struct {
	buf []byte
}

func (w *writer) uint8(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) uint16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

func (w *writer) uint32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *writer) uint64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *writer) bool(v bool) {
	if v {
		w.uint8(1)
	} else {
		w.uint8(0)
	}
}

func (w *writer) data(p []byte) { w.buf = append(w.buf, p...) }

func (w *writer) zeros(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

// reader is a forward-only cursor over a byte slice. The first failure
// sticks; later reads return zero values.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) fail(path, format string, args ...any) {
	if r.err == nil {
		r.err = &DecodeError{Path: path, Offset: r.off, Reason: fmt.Sprintf(format, args...)}
	}
}

// take advances the cursor by n bytes and returns them.
func (r *reader) take(n int, path string) []byte {
	if r.err != nil {
		return nil
	}
	if n > r.remaining() {
		r.fail(path, "need %d bytes, %d remaining", n, r.remaining())
		return nil
	}
	p := r.buf[r.off : r.off+n]
	r.off += n
	return p
}

func (r *reader) uint8(path string) uint8 {
	p := r.take(1, path)
	if p == nil {
		return 0
	}
	return p[0]
}

func (r *reader) uint16(path string) uint16 {
	p := r.take(2, path)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(p)
}

func (r *reader) uint32(path string) uint32 {
	p := r.take(4, path)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

func (r *reader) uint64(path string) uint64 {
	p := r.take(8, path)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(p)
}

func (r *reader) bool(path string) bool {
	return r.uint8(path) != 0
}

// cstring reads a NUL terminated string whose terminator must lie within
// the next window bytes. window < 0 searches the rest of the buffer. The
// cursor advances past the terminator.
func (r *reader) cstring(window int, path string) string {
	if r.err != nil {
		return ""
	}
	rest := r.buf[r.off:]
	if window >= 0 && window < len(rest) {
		rest = rest[:window]
	}
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		r.fail(path, "string not terminated")
		return ""
	}
	s := string(rest[:end])
	r.off += end + 1
	return s
}
