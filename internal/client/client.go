package client

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/lotusrpc/internal/logging"
	"github.com/danmuck/lotusrpc/internal/protocol"
	"github.com/danmuck/lotusrpc/internal/protocol/frame"
	"github.com/danmuck/lotusrpc/internal/protocol/schema"
)

// Transport moves bytes to and from the server. Read returns at most n
// bytes; an empty read means nothing arrived before the transport's own
// timeout.
type Transport interface {
	Write(p []byte) error
	Read(n int) ([]byte, error)
}

// Observer receives client events. observability.ClientMetrics is the
// in-tree implementation.
type Observer interface {
	MessageSent(service, name string, size int)
	MessageReceived(service, name string, size int)
	Completed(service, name string, elapsed time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) MessageSent(string, string, int) {}
func (noopObserver) MessageReceived(string, string, int) {}
func (noopObserver) Completed(string, string, time.Duration, error) {}

type Option func(*Client)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithLimits overrides the outgoing message limits. By default outgoing
// messages are limited to the server's receive buffer.
func WithLimits(l frame.Limits) Option {
	return func(c *Client) { c.limits = l }
}

type Client struct {
	def       *schema.Definition
	transport Transport
	limits    frame.Limits
	assembler *frame.Assembler
	log       zerolog.Logger
	observer  Observer

	// current request, used to tag responses
	service string
	target  string
}

func New(def *schema.Definition, transport Transport, opts ...Option) *Client {
	c := &Client{
		def:       def,
		transport: transport,
		limits:    frame.LimitsForBuffer(def.RxBufferSize()),
		assembler: frame.NewAssembler(frame.DefaultLimits()),
		log:       logging.Component("client"),
		observer:  noopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Definition returns the definition the client encodes against.
func (c *Client) Definition() *schema.Definition { return c.def }

// endpoint is a resolved function or stream.
type endpoint struct {
	svc *schema.Service
	fn  *schema.Function
	st  *schema.Stream
}

func (e endpoint) name() string {
	if e.fn != nil {
		return e.fn.Name()
	}
	return e.st.Name()
}

func (e endpoint) id() uint8 {
	if e.fn != nil {
		return e.fn.ID()
	}
	return e.st.ID()
}

func (e endpoint) params() []schema.Var {
	if e.fn != nil {
		return e.fn.Params()
	}
	return e.st.Params()
}

func (e endpoint) returns() []schema.Var {
	if e.fn != nil {
		return e.fn.Returns()
	}
	return e.st.Returns()
}

// hasResponse reports whether sending to e with the given start value
// makes the server answer.
func (e endpoint) hasResponse(start bool) bool {
	if e.fn != nil {
		return true
	}
	return e.st.IsServer() && start
}

func (e endpoint) isMetaError() bool {
	return e.svc.IsMeta() && e.st != nil && e.st.Name() == schema.MetaErrorStream
}

func (e endpoint) String() string { return e.svc.Name() + "." + e.name() }

func (c *Client) lookup(service, name string) (endpoint, error) {
	svc, ok := c.def.ServiceByName(service)
	if !ok {
		return endpoint{}, &protocol.EncodeError{Path: service, Reason: "service not found in the definition"}
	}
	if fn, ok := svc.FunctionByName(name); ok {
		return endpoint{svc: svc, fn: fn}, nil
	}
	if st, ok := svc.StreamByName(name); ok {
		return endpoint{svc: svc, st: st}, nil
	}
	return endpoint{}, &protocol.EncodeError{
		Path:   service + "." + name,
		Reason: "function or stream not found in service " + service,
	}
}

// Encode builds the request message for service.name. args must name
// every parameter exactly once; for streams that includes start or final
// where the stream declares them.
func (c *Client) Encode(service, name string, args map[string]any) ([]byte, error) {
	ep, err := c.lookup(service, name)
	if err != nil {
		return nil, err
	}
	return c.encode(ep, args)
}

func (c *Client) encode(ep endpoint, args map[string]any) ([]byte, error) {
	params := ep.params()
	if err := checkParameters(ep.String(), params, args); err != nil {
		return nil, err
	}
	enc := protocol.NewEncoder(c.def)
	for _, p := range params {
		if err := enc.Encode(args[p.Name()], p); err != nil {
			return nil, fmt.Errorf("%s: %w", ep, err)
		}
	}
	return frame.Encode(ep.svc.ID(), ep.id(), enc.Bytes(), c.limits)
}

func checkParameters(path string, params []schema.Var, args map[string]any) error {
	declared := make(map[string]struct{}, len(params))
	var missing []string
	for _, p := range params {
		declared[p.Name()] = struct{}{}
		if _, ok := args[p.Name()]; !ok {
			missing = append(missing, p.Name())
		}
	}
	var unknown []string
	for name := range args {
		if _, ok := declared[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) != 0 {
		sort.Strings(unknown)
		return &protocol.EncodeError{Path: path, Reason: "no such parameter(s): " + strings.Join(unknown, ", ")}
	}
	if len(missing) != 0 {
		return &protocol.EncodeError{Path: path, Reason: "required parameter(s) " + strings.Join(missing, ", ") + " not given"}
	}
	return nil
}

// send makes ep the current request and writes its message.
func (c *Client) send(ep endpoint, args map[string]any) error {
	msg, err := c.encode(ep, args)
	if err != nil {
		return err
	}
	c.service, c.target = ep.svc.Name(), ep.name()
	if err := c.transport.Write(msg); err != nil {
		return fmt.Errorf("client: write %s: %w", ep, err)
	}
	c.observer.MessageSent(ep.svc.Name(), ep.name(), len(msg))
	c.log.Debug().Str("target", ep.String()).Hex("message", msg).Msg("sent")
	return nil
}

// receive reads until one complete message is buffered and decodes it.
// Bytes after that message stay buffered for the next receive.
func (c *Client) receive(ctx context.Context) (Response, error) {
	for {
		msg, ok, err := c.assembler.Next()
		if err != nil {
			return Response{}, err
		}
		if ok {
			c.log.Debug().Hex("message", msg).Msg("received")
			resp, err := c.Decode(msg)
			if err == nil {
				c.observer.MessageReceived(resp.Service, resp.Name, len(msg))
			}
			return resp, err
		}
		if err := ctx.Err(); err != nil {
			return Response{}, err
		}
		p, err := c.transport.Read(c.assembler.Needed())
		if err != nil {
			return Response{}, fmt.Errorf("client: read: %w", err)
		}
		if len(p) == 0 {
			return Response{}, fmt.Errorf("%w for %s.%s", protocol.ErrTimeout, c.service, c.target)
		}
		c.assembler.Push(p)
	}
}

// Call invokes a function and waits for its response. A response on the
// LrpcMeta error stream is returned as a *protocol.ServerError.
func (c *Client) Call(ctx context.Context, service, name string, args map[string]any) (resp Response, err error) {
	ep, err := c.lookup(service, name)
	if err != nil {
		return Response{}, err
	}
	if ep.fn == nil {
		return Response{}, &protocol.EncodeError{Path: ep.String(), Reason: "not a function"}
	}
	defer c.completed(ep, time.Now(), &err)
	if err := c.send(ep, args); err != nil {
		return Response{}, err
	}
	resp, err = c.receive(ctx)
	if err != nil {
		return resp, err
	}
	return resp, c.check(ep, resp)
}

// Send writes one message on a client stream. The server does not answer
// client stream messages.
func (c *Client) Send(ctx context.Context, service, name string, args map[string]any) (err error) {
	ep, err := c.lookup(service, name)
	if err != nil {
		return err
	}
	if ep.st == nil || !ep.st.IsClient() {
		return &protocol.EncodeError{Path: ep.String(), Reason: "not a client stream"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	defer c.completed(ep, time.Now(), &err)
	return c.send(ep, args)
}

// check turns error and unexpected responses into errors for callers that
// asked for ep.
func (c *Client) check(ep endpoint, resp Response) error {
	if resp.IsError && !ep.isMetaError() {
		se, err := protocol.ServerErrorFromPayload(resp.Payload)
		if err != nil {
			return err
		}
		return se
	}
	if !resp.IsExpected && !resp.IsError {
		return protocol.Errorf("unexpected response %s.%s to %s", resp.Service, resp.Name, ep)
	}
	return nil
}

func (c *Client) completed(ep endpoint, start time.Time, err *error) {
	c.observer.Completed(ep.svc.Name(), ep.name(), time.Since(start), *err)
}
