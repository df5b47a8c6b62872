package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/danmuck/lotusrpc/internal/protocol"
	"github.com/danmuck/lotusrpc/internal/protocol/schema"
)

// ServerStream is an open server stream. The server keeps sending until
// it marks a message final or Stop is called.
type ServerStream struct {
	c        *Client
	ep       endpoint
	started  time.Time
	received int
	done     bool
}

// Start opens a server stream by sending start=true.
func (c *Client) Start(ctx context.Context, service, name string) (*ServerStream, error) {
	ep, err := c.lookup(service, name)
	if err != nil {
		return nil, err
	}
	if ep.st == nil || !ep.st.IsServer() {
		return nil, &protocol.EncodeError{Path: ep.String(), Reason: "not a server stream"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.send(ep, map[string]any{schema.StartParam: true}); err != nil {
		return nil, err
	}
	return &ServerStream{c: c, ep: ep, started: time.Now()}, nil
}

// Next waits for the next stream message. It returns io.EOF after the
// final message of a finite stream and after Stop. Error responses end
// the stream and are returned as a *protocol.ServerError, except on the
// LrpcMeta error stream where they are the stream's values. Timeouts and
// other errors leave the stream open. A timeout after a finite stream has
// sent messages but no final one is also a protocol error.
func (s *ServerStream) Next(ctx context.Context) (Response, error) {
	if s.done {
		return Response{}, io.EOF
	}
	resp, err := s.c.receive(ctx)
	if err == nil {
		err = s.c.check(s.ep, resp)
	}
	if err != nil {
		if errors.Is(err, protocol.ErrServerError) {
			s.finish(err)
		}
		return resp, unterminated(s.ep, s.received, err)
	}
	s.received++
	if s.ep.st.IsFinite() {
		final, _ := resp.Payload[schema.FinalReturn].(bool)
		delete(resp.Payload, schema.FinalReturn)
		if final {
			s.finish(nil)
		}
	}
	return resp, nil
}

// Stop asks the server to end the stream by sending start=false.
// Messages the server sent before it saw the request are not drained.
func (s *ServerStream) Stop(ctx context.Context) error {
	if s.done {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.c.send(s.ep, map[string]any{schema.StartParam: false})
	s.finish(err)
	return err
}

// Done reports whether the stream has ended.
func (s *ServerStream) Done() bool { return s.done }

// All iterates the stream until it ends. io.EOF is not yielded. Breaking
// out of the loop leaves the stream open; call Stop to end it.
func (s *ServerStream) All(ctx context.Context) iter.Seq2[Response, error] {
	return func(yield func(Response, error) bool) {
		for {
			resp, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(resp, err) || err != nil {
				return
			}
		}
	}
}

func (s *ServerStream) finish(err error) {
	if s.done {
		return
	}
	s.done = true
	s.c.observer.Completed(s.ep.svc.Name(), s.ep.name(), time.Since(s.started), err)
}

// Communicate sends one message to any function or stream and yields
// every response it causes: one for a function, none for a client stream,
// and for a server stream opened with start=true every message up to the
// final one of a finite stream. Error responses are yielded as values
// with IsError set and end the iteration; error messages that do not
// decode are yielded as a *protocol.ServerError. Infinite server streams
// run until the caller stops iterating.
func (c *Client) Communicate(ctx context.Context, service, name string, args map[string]any) iter.Seq2[Response, error] {
	return func(yield func(Response, error) bool) {
		ep, err := c.lookup(service, name)
		if err != nil {
			yield(Response{}, err)
			return
		}
		defer c.completed(ep, time.Now(), &err)
		if err = c.send(ep, args); err != nil {
			yield(Response{}, err)
			return
		}
		start, _ := args[schema.StartParam].(bool)
		more := ep.hasResponse(start)
		received := 0
		for more {
			var resp Response
			resp, err = c.receive(ctx)
			if err != nil {
				err = unterminated(ep, received, err)
				yield(resp, err)
				return
			}
			received++
			if resp.IsError && !ep.isMetaError() {
				more = false
				if se, ok := resp.ServerError(); ok {
					err = se
				}
			} else if ep.fn != nil {
				more = false
			} else if ep.st.IsFinite() {
				final, _ := resp.Payload[schema.FinalReturn].(bool)
				more = !final
				delete(resp.Payload, schema.FinalReturn)
			}
			if !yield(resp, nil) {
				return
			}
		}
	}
}

// unterminated marks a timeout on a finite stream that sent messages but
// never its final one.
func unterminated(ep endpoint, received int, err error) error {
	if ep.st == nil || !ep.st.IsFinite() || received == 0 || !errors.Is(err, protocol.ErrTimeout) {
		return err
	}
	return &protocol.ProtocolError{Err: err, Reason: fmt.Sprintf("finite stream %s ended without final message", ep)}
}
