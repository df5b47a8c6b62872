package client

import (
	"bytes"

	"github.com/danmuck/lotusrpc/internal/protocol"
	"github.com/danmuck/lotusrpc/internal/protocol/frame"
	"github.com/danmuck/lotusrpc/internal/protocol/schema"
)

// Response is one decoded server message. Payload maps return names to
// decoded values; for finite streams the final flag is removed once the
// stream has consumed it.
type Response struct {
	Service    string
	Name       string
	IsFunction bool
	IsStream   bool
	// IsError is set for messages on the LrpcMeta error stream.
	IsError bool
	// IsExpected is set when the message answers the current request.
	IsExpected bool
	Payload    map[string]any
}

// ServerError converts an error response.
func (r Response) ServerError() (*protocol.ServerError, bool) {
	if !r.IsError {
		return nil, false
	}
	se, err := protocol.ServerErrorFromPayload(r.Payload)
	if err != nil {
		return nil, false
	}
	return se, true
}

// Decode decodes one complete message and tags it against the current
// request.
func (c *Client) Decode(msg []byte) (Response, error) {
	f, err := frame.Decode(msg)
	if err != nil {
		return Response{}, err
	}
	svc, ok := c.def.ServiceByID(f.Header.Service)
	if !ok {
		return Response{}, protocol.Errorf("service with ID %d not found in the definition", f.Header.Service)
	}
	ep := endpoint{svc: svc}
	if fn, ok := svc.FunctionByID(f.Header.ID); ok {
		ep.fn = fn
	} else if st, ok := svc.StreamByID(f.Header.ID); ok {
		ep.st = st
	} else {
		return Response{}, protocol.Errorf("no function or stream with ID %d found in service %s", f.Header.ID, svc.Name())
	}
	payload, err := decodeValues(c.def, ep, f.Payload)
	if err != nil {
		if ep.isMetaError() && !c.listeningTo(ep) {
			return c.opaqueError(ep, f.Payload, err)
		}
		return Response{}, err
	}
	return c.makeResponse(ep, payload), nil
}

func (c *Client) listeningTo(ep endpoint) bool {
	return c.service == ep.svc.Name() && c.target == ep.name()
}

// opaqueError reports an error message the client cannot decode. The
// reserved error header alone means the server rejected the request.
func (c *Client) opaqueError(ep endpoint, raw []byte, decodeErr error) (Response, error) {
	current := c.service + "." + c.target
	c.log.Warn().
		Err(decodeErr).
		Str("target", current).
		Hex("payload", raw).
		Msgf("Server reported an undecodable error for call to %s", current)
	resp := Response{
		Service:  ep.svc.Name(),
		Name:     ep.name(),
		IsStream: true,
		IsError:  true,
	}
	return resp, &protocol.ServerError{Type: protocol.OpaqueServerError, Raw: bytes.Clone(raw)}
}

func decodeValues(def *schema.Definition, ep endpoint, payload []byte) (map[string]any, error) {
	dec := protocol.NewDecoder(def, payload)
	returns := ep.returns()
	values := make(map[string]any, len(returns))
	for _, r := range returns {
		v, err := dec.Decode(r)
		if err != nil {
			return nil, err
		}
		values[r.Name()] = v
	}
	if n := dec.Remaining(); n != 0 {
		return nil, protocol.Errorf("%d remaining bytes after decoding %s", n, ep)
	}
	return values, nil
}

func (c *Client) makeResponse(ep endpoint, payload map[string]any) Response {
	resp := Response{
		Service:    ep.svc.Name(),
		Name:       ep.name(),
		IsFunction: ep.fn != nil,
		IsStream:   ep.st != nil,
		IsError:    ep.isMetaError(),
		Payload:    payload,
	}
	current := c.service + "." + c.target
	resp.IsExpected = resp.Service == c.service && resp.Name == c.target
	switch {
	case resp.IsExpected:
	case resp.IsError:
		c.log.Warn().
			Str("error", stringValue(payload["type"])).
			Str("target", current).
			Msgf("Server reported error '%s' for call to %s", stringValue(payload["type"]), current)
	default:
		c.log.Warn().
			Str("expected", current).
			Str("got", ep.String()).
			Msgf("Unexpected response. Expected %s, but got %s", current, ep)
	}
	return resp
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
