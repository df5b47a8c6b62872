package schema

// Origin is the side that produces the messages of a stream.
type Origin string

const (
	OriginClient Origin = "client"
	OriginServer Origin = "server"
)

// Names of the implicit stream variables.
const (
	StartParam  = "start"
	FinalReturn = "final"
)

// Function is a request/response exchange.
type Function struct {
	name    string
	id      uint8
	params  []Var
	returns []Var
}

func (f *Function) Name() string { return f.name }
func (f *Function) ID() uint8 { return f.id }
func (f *Function) Params() []Var { return f.params }
func (f *Function) Returns() []Var { return f.returns }
func (f *Function) Param(name string) (Var, bool) {
	return varByName(f.params, name)
}

// Stream is a one-directional message sequence. Params and Returns are the
// resolved lists: a server stream takes only the implicit start flag and
// returns the declared values plus final when finite; a client stream
// sends the declared values plus final when finite and returns nothing.
type Stream struct {
	name     string
	id       uint8
	origin   Origin
	finite   bool
	declared []Var
	params   []Var
	returns  []Var
}

func (s *Stream) Name() string { return s.name }
func (s *Stream) ID() uint8 { return s.id }
func (s *Stream) Origin() Origin { return s.origin }
func (s *Stream) IsFinite() bool { return s.finite }
func (s *Stream) IsClient() bool { return s.origin == OriginClient }
func (s *Stream) IsServer() bool { return s.origin == OriginServer }
func (s *Stream) Params() []Var { return s.params }
func (s *Stream) Returns() []Var { return s.returns }
func (s *Stream) Declared() []Var { return s.declared }
func (s *Stream) Param(name string) (Var, bool) {
	return varByName(s.params, name)
}

func newStream(name string, id uint8, origin Origin, finite bool, declared []Var) *Stream {
	s := &Stream{name: name, id: id, origin: origin, finite: finite, declared: declared}
	values := append([]Var(nil), declared...)
	if finite {
		values = append(values, NewVar(FinalReturn, BaseType{Kind: KindBool, Name: "bool"}))
	}
	if origin == OriginClient {
		s.params = values
		return s
	}
	s.params = []Var{NewVar(StartParam, BaseType{Kind: KindBool, Name: "bool"})}
	s.returns = values
	return s
}

// Service groups functions and streams under one id. Functions and
// streams share the id space of their service.
type Service struct {
	name      string
	id        uint8
	functions []*Function
	streams   []*Stream
	meta      bool
}

func (s *Service) Name() string { return s.name }
func (s *Service) ID() uint8 { return s.id }
func (s *Service) Functions() []*Function { return s.functions }
func (s *Service) Streams() []*Stream { return s.streams }

// IsMeta reports whether s is the built-in LrpcMeta service.
func (s *Service) IsMeta() bool { return s.meta }

func (s *Service) FunctionByName(name string) (*Function, bool) {
	for _, f := range s.functions {
		if f.name == name {
			return f, true
		}
	}
	return nil, false
}

func (s *Service) StreamByName(name string) (*Stream, bool) {
	for _, st := range s.streams {
		if st.name == name {
			return st, true
		}
	}
	return nil, false
}

func (s *Service) FunctionByID(id uint8) (*Function, bool) {
	for _, f := range s.functions {
		if f.id == id {
			return f, true
		}
	}
	return nil, false
}

func (s *Service) StreamByID(id uint8) (*Stream, bool) {
	for _, st := range s.streams {
		if st.id == id {
			return st, true
		}
	}
	return nil, false
}

// MaxID returns the highest function or stream id of s.
func (s *Service) MaxID() uint8 {
	var max uint8
	for _, f := range s.functions {
		if f.id > max {
			max = f.id
		}
	}
	for _, st := range s.streams {
		if st.id > max {
			max = st.id
		}
	}
	return max
}

func varByName(vars []Var, name string) (Var, bool) {
	for _, v := range vars {
		if v.name == name {
			return v, true
		}
	}
	return Var{}, false
}
