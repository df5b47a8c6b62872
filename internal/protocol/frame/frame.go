package frame

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/lotusrpc/internal/protocol"
)

var (
	ErrShortMessage    = errors.New("frame: an LRPC message has at least 3 bytes")
	ErrSizeMismatch    = errors.New("frame: incorrect message size")
	ErrMessageTooLarge = errors.New("frame: message too large")
)

// Frame is one complete wire message.
type Frame struct {
	Header  protocol.Header
	Payload []byte
}

// Limits constrains frame sizes. MaxMessageSize counts the whole message
// including the header and never exceeds protocol.MaxMessageSize.
type Limits struct {
	MaxMessageSize int
}

func DefaultLimits() Limits {
	return Limits{MaxMessageSize: protocol.MaxMessageSize}
}

// LimitsForBuffer returns limits for a peer whose buffer holds size bytes.
func LimitsForBuffer(size int) Limits {
	if size <= 0 || size > protocol.MaxMessageSize {
		return DefaultLimits()
	}
	return Limits{MaxMessageSize: size}
}

func (l Limits) max() int {
	if l.MaxMessageSize <= 0 || l.MaxMessageSize > protocol.MaxMessageSize {
		return protocol.MaxMessageSize
	}
	return l.MaxMessageSize
}

func tooLarge(size int, limits Limits) error {
	return &protocol.ProtocolError{
		Err:    ErrMessageTooLarge,
		Reason: fmt.Sprintf("message of %d bytes exceeds limit of %d", size, limits.max()),
	}
}

// Encode builds [length][service][id][payload].
func Encode(service, id uint8, payload []byte, limits Limits) ([]byte, error) {
	size := protocol.HeaderSize + len(payload)
	if size > limits.max() {
		return nil, tooLarge(size, limits)
	}
	msg := make([]byte, 0, size)
	msg = append(msg, uint8(size), service, id)
	return append(msg, payload...), nil
}

// Decode splits a complete message into header and payload. The payload
// aliases msg.
func Decode(msg []byte) (Frame, error) {
	if len(msg) < protocol.HeaderSize {
		return Frame{}, &protocol.ProtocolError{
			Err:    ErrShortMessage,
			Reason: fmt.Sprintf("unable to decode message from % x: an LRPC message has at least 3 bytes", msg),
		}
	}
	h := protocol.Header{Size: msg[0], Service: msg[1], ID: msg[2]}
	if int(h.Size) != len(msg) {
		return Frame{}, &protocol.ProtocolError{
			Err:    ErrSizeMismatch,
			Reason: fmt.Sprintf("incorrect message size. Expected %d but got %d", h.Size, len(msg)),
		}
	}
	return Frame{Header: h, Payload: msg[protocol.HeaderSize:]}, nil
}

// ReadFrame reads exactly one message from r.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var size [1]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return Frame{}, err
	}
	if int(size[0]) < protocol.HeaderSize {
		return Frame{}, &protocol.ProtocolError{
			Err:    ErrShortMessage,
			Reason: fmt.Sprintf("declared message size %d is below the header size", size[0]),
		}
	}
	if int(size[0]) > limits.max() {
		return Frame{}, tooLarge(int(size[0]), limits)
	}
	msg := make([]byte, size[0])
	msg[0] = size[0]
	if _, err := io.ReadFull(r, msg[1:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}
	return Decode(msg)
}

// WriteFrame writes f to w. The header size is recomputed from the
// payload.
func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	msg, err := Encode(f.Header.Service, f.Header.ID, f.Payload, limits)
	if err != nil {
		return err
	}
	_, err = w.Write(msg)
	return err
}
