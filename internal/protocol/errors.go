package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrEncode             = errors.New("protocol: encode failed")
	ErrDecode             = errors.New("protocol: decode failed")
	ErrProtocol           = errors.New("protocol: protocol violation")
	ErrServerError        = errors.New("protocol: server reported error")
	ErrTimeout            = errors.New("protocol: timeout waiting for response")
	ErrDefinitionMismatch = errors.New("protocol: server definition mismatch")
)

// EncodeError is returned when a host value does not fit its descriptor.
type EncodeError struct {
	Path   string
	Reason string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("protocol: encode %s: %s", e.Path, e.Reason)
}

func (e *EncodeError) Is(target error) bool { return target == ErrEncode }

func encodeErrorf(path, format string, args ...any) error {
	return &EncodeError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// DecodeError is returned when bytes cannot be decoded as a descriptor.
// Offset is the cursor position in the decoded buffer.
type DecodeError struct {
	Path   string
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: decode %s at offset %d: %s", e.Path, e.Offset, e.Reason)
}

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// ProtocolError reports a malformed or unroutable message. Err, when set,
// is a more specific sentinel such as a frame error.
type ProtocolError struct {
	Err    error
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Err != nil && e.Reason == "" {
		return e.Err.Error()
	}
	return "protocol: " + e.Reason
}

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

func (e *ProtocolError) Unwrap() error { return e.Err }

// Errorf builds a ProtocolError.
func Errorf(format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// OpaqueServerError is the ServerError type for error messages whose
// payload does not decode as an LrpcMeta error.
const OpaqueServerError = "Opaque"

// ServerError is the payload of a message on the LrpcMeta error stream.
// Type is the LrpcMetaError field name. For UnknownService P1 holds the
// service id; for UnknownFunctionOrStream P1 and P2 hold service and
// function or stream id. Opaque errors carry only Raw.
type ServerError struct {
	Type    string
	P1      uint8
	P2      uint8
	P3      uint32
	Message string
	Raw     []byte
}

func (e *ServerError) Error() string {
	if e.Type == OpaqueServerError {
		return fmt.Sprintf("protocol: server reported an error with opaque payload [% x]", e.Raw)
	}
	msg := fmt.Sprintf("protocol: server reported %s (p1=%d p2=%d p3=%d)", e.Type, e.P1, e.P2, e.P3)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *ServerError) Is(target error) bool {
	return target == ErrServerError || target == ErrProtocol
}

// ServerErrorFromPayload converts a decoded error stream payload.
func ServerErrorFromPayload(payload map[string]any) (*ServerError, error) {
	se := &ServerError{}
	var ok bool
	if se.Type, ok = payload["type"].(string); !ok {
		return nil, Errorf("error payload without type")
	}
	if se.P1, ok = payload["p1"].(uint8); !ok {
		return nil, Errorf("error payload without p1")
	}
	if se.P2, ok = payload["p2"].(uint8); !ok {
		return nil, Errorf("error payload without p2")
	}
	if se.P3, ok = payload["p3"].(uint32); !ok {
		return nil, Errorf("error payload without p3")
	}
	if se.Message, ok = payload["message"].(string); !ok {
		return nil, Errorf("error payload without message")
	}
	return se, nil
}
