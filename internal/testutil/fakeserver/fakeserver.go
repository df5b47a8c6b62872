// Package fakeserver runs a LotusRPC server over TCP for tests. It
// decodes requests against a definition and answers the meta service the
// way an embedded server does.
package fakeserver

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/danmuck/lotusrpc/internal/protocol"
	"github.com/danmuck/lotusrpc/internal/protocol/frame"
	"github.com/danmuck/lotusrpc/internal/protocol/schema"
)

// Request is one decoded client message.
type Request struct {
	Service string
	Name    string
	Args    map[string]any
}

// Reply is one server message; Values are keyed by return name.
type Reply struct {
	Service string
	Name    string
	Values  map[string]any
}

// Handler answers a request with zero or more replies.
type Handler func(Request) []Reply

type Server struct {
	def *schema.Definition
	ln  net.Listener

	mu       sync.Mutex
	handlers map[string]Handler
	requests []Request
}

// Start listens on a loopback port until the test ends.
func Start(t testing.TB, def *schema.Definition) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("fakeserver: listen: %v", err)
	}
	s := &Server{def: def, ln: ln, handlers: make(map[string]Handler)}
	s.Handle(schema.MetaServiceName, schema.MetaVersionFunction, s.version)
	s.Handle(schema.MetaServiceName, schema.MetaDefinitionStream, s.definition)
	go s.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *Server) Addr() string { return s.ln.Addr().String() }

// Handle sets the handler for service.name.
func (s *Server) Handle(service, name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[service+"."+name] = h
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	for {
		f, err := frame.ReadFrame(conn, frame.DefaultLimits())
		if err != nil {
			return
		}
		for _, msg := range s.dispatch(f) {
			if _, err := conn.Write(msg); err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatch(f frame.Frame) [][]byte {
	svc, ok := s.def.ServiceByID(f.Header.Service)
	if !ok {
		return [][]byte{s.serverError(schema.MetaErrorUnknownService, f.Header.Service, f.Header.ID)}
	}
	req := Request{Service: svc.Name(), Args: make(map[string]any)}
	var params []schema.Var
	if fn, ok := svc.FunctionByID(f.Header.ID); ok {
		req.Name, params = fn.Name(), fn.Params()
	} else if st, ok := svc.StreamByID(f.Header.ID); ok {
		req.Name, params = st.Name(), st.Params()
	} else {
		return [][]byte{s.serverError(schema.MetaErrorUnknownFunctionOrStream, f.Header.Service, f.Header.ID)}
	}
	dec := protocol.NewDecoder(s.def, f.Payload)
	for _, p := range params {
		v, err := dec.Decode(p)
		if err != nil {
			return nil
		}
		req.Args[p.Name()] = v
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	h := s.handlers[req.Service+"."+req.Name]
	s.mu.Unlock()
	if h == nil {
		return nil
	}
	var out [][]byte
	for _, r := range h(req) {
		msg, err := Encode(s.def, r)
		if err != nil {
			return out
		}
		out = append(out, msg)
	}
	return out
}

func (s *Server) serverError(kind string, service, id uint8) []byte {
	msg, _ := Encode(s.def, Reply{
		Service: schema.MetaServiceName,
		Name:    schema.MetaErrorStream,
		Values:  map[string]any{"type": kind, "p1": service, "p2": id, "p3": 0, "message": ""},
	})
	return msg
}

func (s *Server) version(Request) []Reply {
	return []Reply{{
		Service: schema.MetaServiceName,
		Name:    schema.MetaVersionFunction,
		Values: map[string]any{
			"definition":      s.def.Version(),
			"definition_hash": s.def.Hash(),
			"lrpc":            protocol.LibraryVersion,
		},
	}}
}

func (s *Server) definition(req Request) []Reply {
	if start, _ := req.Args[schema.StartParam].(bool); !start || !s.def.EmbedDefinition() {
		return nil
	}
	data := s.def.CompressedDefinition()
	size := s.def.DefinitionStreamChunkSize()
	var replies []Reply
	for off := 0; off < len(data); off += size {
		end := min(off+size, len(data))
		replies = append(replies, Reply{
			Service: schema.MetaServiceName,
			Name:    schema.MetaDefinitionStream,
			Values:  map[string]any{"chunk": data[off:end], schema.FinalReturn: end == len(data)},
		})
	}
	return replies
}

// Encode builds the server message for r.
func Encode(def *schema.Definition, r Reply) ([]byte, error) {
	svc, ok := def.ServiceByName(r.Service)
	if !ok {
		return nil, fmt.Errorf("fakeserver: unknown service %s", r.Service)
	}
	var id uint8
	var returns []schema.Var
	if fn, ok := svc.FunctionByName(r.Name); ok {
		id, returns = fn.ID(), fn.Returns()
	} else if st, ok := svc.StreamByName(r.Name); ok {
		id, returns = st.ID(), st.Returns()
	} else {
		return nil, fmt.Errorf("fakeserver: unknown target %s.%s", r.Service, r.Name)
	}
	enc := protocol.NewEncoder(def)
	for _, v := range returns {
		if err := enc.Encode(r.Values[v.Name()], v); err != nil {
			return nil, errors.Join(fmt.Errorf("fakeserver: encode %s.%s", r.Service, r.Name), err)
		}
	}
	return frame.Encode(svc.ID(), id, enc.Bytes(), frame.DefaultLimits())
}
