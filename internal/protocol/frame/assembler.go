package frame

import (
	"fmt"

	"github.com/danmuck/lotusrpc/internal/protocol"
)

// Assembler collects received bytes and yields complete messages one at a
// time. Bytes following a message stay buffered for the next one.
type Assembler struct {
	buf    []byte
	limits Limits
}

func NewAssembler(limits Limits) *Assembler {
	return &Assembler{limits: limits}
}

// Push appends received bytes.
func (a *Assembler) Push(p []byte) {
	a.buf = append(a.buf, p...)
}

// Buffered is the number of bytes waiting for a complete message.
func (a *Assembler) Buffered() int { return len(a.buf) }

// Needed is the number of bytes missing from the message being
// assembled. With nothing buffered it is one, the length byte.
func (a *Assembler) Needed() int {
	if len(a.buf) == 0 {
		return 1
	}
	if n := int(a.buf[0]) - len(a.buf); n > 0 {
		return n
	}
	return 0
}

// Reset drops all buffered bytes.
func (a *Assembler) Reset() { a.buf = a.buf[:0] }

// Next returns the next complete message and removes exactly its bytes
// from the buffer. ok is false while the message is incomplete. A
// malformed length byte drops the buffer and returns an error.
func (a *Assembler) Next() (msg []byte, ok bool, err error) {
	if len(a.buf) == 0 {
		return nil, false, nil
	}
	size := int(a.buf[0])
	if size < protocol.HeaderSize {
		a.Reset()
		return nil, false, &protocol.ProtocolError{
			Err:    ErrShortMessage,
			Reason: fmt.Sprintf("received message size %d is below the header size", size),
		}
	}
	if size > a.limits.max() {
		a.Reset()
		return nil, false, tooLarge(size, a.limits)
	}
	if len(a.buf) < size {
		return nil, false, nil
	}
	msg = append([]byte(nil), a.buf[:size]...)
	a.buf = append(a.buf[:0], a.buf[size:]...)
	return msg, true, nil
}
