package schema

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
)

const (
	DefaultBufferSize = 256
	DefaultHashLength = 64
)

// Definition is a fully resolved, immutable LotusRPC definition. The
// LrpcMeta service and its error enum are always present.
type Definition struct {
	name            string
	version         string
	namespace       string
	rxBufferSize    int
	txBufferSize    int
	embedDefinition bool
	hashLength      int

	services  []*Service
	structs   []*Struct
	enums     []*Enum
	constants []*Constant

	hash       string
	compressed []byte
	meta       *Service
}

// New resolves raw into a Definition. raw is not modified.
func New(raw RawDefinition) (*Definition, error) {
	meta, err := metaFragment()
	if err != nil {
		return nil, err
	}
	if raw.Name == "" {
		return nil, ValidationError{Reason: "definition name is required"}
	}
	if len(raw.Services) == 0 {
		return nil, ValidationError{Path: raw.Name, Reason: "at least one service is required"}
	}

	d := &Definition{
		name:            raw.Name,
		version:         raw.Version,
		namespace:       raw.Namespace,
		rxBufferSize:    orDefault(raw.RxBufferSize, DefaultBufferSize),
		txBufferSize:    orDefault(raw.TxBufferSize, DefaultBufferSize),
		embedDefinition: raw.EmbedDefinition,
		hashLength:      orDefault(raw.DefinitionHashLength, DefaultHashLength),
	}

	r := newResolver(d)
	enums := append(append([]RawEnum(nil), raw.Enums...), meta.Enums...)
	if err := r.declare(raw.Structs, enums); err != nil {
		return nil, err
	}
	if err := r.resolveStructs(raw.Structs); err != nil {
		return nil, err
	}
	if err := r.resolveEnums(enums); err != nil {
		return nil, err
	}
	if err := r.resolveServices(raw.Services, meta.Services); err != nil {
		return nil, err
	}
	for _, rc := range raw.Constants {
		c, err := resolveConstant(rc)
		if err != nil {
			return nil, ValidationError{Path: "constant " + rc.Name, Reason: err.Error()}
		}
		d.constants = append(d.constants, c)
	}
	if err := validate(d); err != nil {
		return nil, err
	}
	if err := d.digest(raw); err != nil {
		return nil, err
	}

	log.Debug().
		Str("definition", d.name).
		Int("services", len(d.services)).
		Int("structs", len(d.structs)).
		Int("enums", len(d.enums)).
		Str("hash", d.hash).
		Msg("schema: definition resolved")
	return d, nil
}

func (d *Definition) Name() string { return d.name }
func (d *Definition) Version() string { return d.version }
func (d *Definition) Namespace() string { return d.namespace }
func (d *Definition) RxBufferSize() int { return d.rxBufferSize }
func (d *Definition) TxBufferSize() int { return d.txBufferSize }
func (d *Definition) EmbedDefinition() bool { return d.embedDefinition }

// Services returns the user services followed by the meta service.
func (d *Definition) Services() []*Service { return d.services }
func (d *Definition) Structs() []*Struct { return d.structs }

// Enums returns the user enums followed by the meta error enum.
func (d *Definition) Enums() []*Enum { return d.enums }
func (d *Definition) Constants() []*Constant { return d.constants }
func (d *Definition) MetaService() *Service { return d.meta }

// Hash is the hex content hash of the user definition, truncated to the
// configured definition_hash_length.
func (d *Definition) Hash() string { return d.hash }

// CompressedDefinition is the zstd compressed canonical YAML of the user
// definition. It is nil unless embed_definition is set.
func (d *Definition) CompressedDefinition() []byte { return d.compressed }

// DefinitionStreamChunkSize is the largest chunk the server puts in one
// LrpcMeta.definition message.
func (d *Definition) DefinitionStreamChunkSize() int {
	return d.txBufferSize - 5
}

func (d *Definition) ServiceByID(id uint8) (*Service, bool) {
	for _, s := range d.services {
		if s.id == id {
			return s, true
		}
	}
	return nil, false
}

func (d *Definition) ServiceByName(name string) (*Service, bool) {
	for _, s := range d.services {
		if s.name == name {
			return s, true
		}
	}
	return nil, false
}

// Function looks up service.function by name.
func (d *Definition) Function(service, function string) (*Function, bool) {
	s, ok := d.ServiceByName(service)
	if !ok {
		return nil, false
	}
	return s.FunctionByName(function)
}

// Stream looks up service.stream by name.
func (d *Definition) Stream(service, stream string) (*Stream, bool) {
	s, ok := d.ServiceByName(service)
	if !ok {
		return nil, false
	}
	return s.StreamByName(stream)
}

func (d *Definition) Struct(name string) (*Struct, bool) {
	for _, s := range d.structs {
		if s.name == name {
			return s, true
		}
	}
	return nil, false
}

func (d *Definition) Enum(name string) (*Enum, bool) {
	for _, e := range d.enums {
		if e.name == name {
			return e, true
		}
	}
	return nil, false
}

// StructOf returns the struct v refers to. It panics if v is not a struct
// of this definition.
func (d *Definition) StructOf(v Var) *Struct {
	if v.base.Kind != KindStruct {
		panic(fmt.Sprintf("schema: %s is not a struct", v))
	}
	return d.structs[v.base.Index]
}

// EnumOf returns the enum v refers to. It panics if v is not an enum of
// this definition.
func (d *Definition) EnumOf(v Var) *Enum {
	if v.base.Kind != KindEnum {
		panic(fmt.Sprintf("schema: %s is not an enum", v))
	}
	return d.enums[v.base.Index]
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

type resolver struct {
	def         *Definition
	structIndex map[string]int
	enumIndex   map[string]int
}

func newResolver(d *Definition) *resolver {
	return &resolver{
		def:         d,
		structIndex: make(map[string]int),
		enumIndex:   make(map[string]int),
	}
}

// declare registers every struct and enum name before any field is
// resolved so references may point forward.
func (r *resolver) declare(structs []RawStruct, enums []RawEnum) error {
	for i, s := range structs {
		if s.Name == "" {
			return ValidationError{Reason: fmt.Sprintf("struct %d has no name", i)}
		}
		if err := r.claimTypeName(s.Name); err != nil {
			return err
		}
		r.structIndex[s.Name] = len(r.def.structs)
		r.def.structs = append(r.def.structs, &Struct{
			name:              s.Name,
			external:          s.External,
			externalNamespace: s.ExternalNamespace,
		})
	}
	for i, e := range enums {
		if e.Name == "" {
			return ValidationError{Reason: fmt.Sprintf("enum %d has no name", i)}
		}
		if err := r.claimTypeName(e.Name); err != nil {
			return err
		}
		r.enumIndex[e.Name] = len(r.def.enums)
		r.def.enums = append(r.def.enums, &Enum{
			name:              e.Name,
			external:          e.External,
			externalNamespace: e.ExternalNamespace,
		})
	}
	return nil
}

func (r *resolver) claimTypeName(name string) error {
	_, isStruct := r.structIndex[name]
	_, isEnum := r.enumIndex[name]
	if isStruct || isEnum {
		return ValidationError{Path: name, Reason: "duplicate struct or enum name"}
	}
	if _, ok := intrinsicKinds[name]; ok {
		return ValidationError{Path: name, Reason: "name collides with a built-in type"}
	}
	return nil
}

func (r *resolver) resolveStructs(structs []RawStruct) error {
	for i, rs := range structs {
		path := "struct " + rs.Name
		if len(rs.Fields) == 0 {
			return ValidationError{Path: path, Reason: "struct has no fields"}
		}
		fields, err := r.resolveVars(rs.Fields, path)
		if err != nil {
			return err
		}
		r.def.structs[i].fields = fields
	}
	return nil
}

func (r *resolver) resolveEnums(enums []RawEnum) error {
	for i, re := range enums {
		if len(re.Fields) == 0 {
			return ValidationError{Path: "enum " + re.Name, Reason: "enum has no fields"}
		}
		fields, err := resolveEnumFields(re.Fields)
		if err != nil {
			return ValidationError{Path: "enum " + re.Name, Reason: err.Error()}
		}
		r.def.enums[i].fields = fields
	}
	return nil
}

func (r *resolver) resolveServices(user, meta []RawService) error {
	services := append(append([]RawService(nil), user...), meta...)
	ids := make(map[int]string, len(services))
	names := make(map[string]struct{}, len(services))
	last := -1
	for i, rs := range services {
		isMeta := i >= len(user)
		if rs.Name == "" {
			return ValidationError{Reason: fmt.Sprintf("service %d has no name", i)}
		}
		id := last + 1
		if rs.ID != nil {
			id = *rs.ID
		}
		last = id
		if !isMeta {
			if rs.Name == MetaServiceName {
				return ValidationError{Path: rs.Name, Reason: "service name is reserved"}
			}
			if id < 0 || id > MaxUserServiceID {
				return ValidationError{Path: rs.Name, Reason: fmt.Sprintf("service id %d out of range 0-%d", id, MaxUserServiceID)}
			}
		}
		if other, dup := ids[id]; dup {
			return ValidationError{Path: rs.Name, Reason: fmt.Sprintf("service id %d already used by %s", id, other)}
		}
		if _, dup := names[rs.Name]; dup {
			return ValidationError{Path: rs.Name, Reason: "duplicate service name"}
		}
		ids[id] = rs.Name
		names[rs.Name] = struct{}{}

		s, err := r.resolveService(rs, uint8(id), isMeta)
		if err != nil {
			return err
		}
		r.def.services = append(r.def.services, s)
		if isMeta {
			r.def.meta = s
		}
	}
	return nil
}

func (r *resolver) resolveService(rs RawService, id uint8, meta bool) (*Service, error) {
	s := &Service{name: rs.Name, id: id, meta: meta}
	if len(rs.Functions) == 0 && len(rs.Streams) == 0 {
		return nil, ValidationError{Path: rs.Name, Reason: "service has no functions or streams"}
	}

	next := 0
	ids := make(map[int]string)
	names := make(map[string]struct{})
	assign := func(name string, pinned *int) (uint8, error) {
		path := rs.Name + "." + name
		if name == "" {
			return 0, ValidationError{Path: rs.Name, Reason: "function or stream without name"}
		}
		if _, dup := names[name]; dup {
			return 0, ValidationError{Path: path, Reason: "duplicate function or stream name"}
		}
		id := next
		if pinned != nil {
			id = *pinned
		}
		if id < 0 || id > math.MaxUint8 {
			return 0, ValidationError{Path: path, Reason: fmt.Sprintf("id %d out of range 0-255", id)}
		}
		if other, dup := ids[id]; dup {
			return 0, ValidationError{Path: path, Reason: fmt.Sprintf("id %d already used by %s", id, other)}
		}
		ids[id] = name
		names[name] = struct{}{}
		next = id + 1
		return uint8(id), nil
	}

	functions := func() error {
		for _, rf := range rs.Functions {
			fid, err := assign(rf.Name, rf.ID)
			if err != nil {
				return err
			}
			path := rs.Name + "." + rf.Name
			params, err := r.resolveVars(rf.Params, path)
			if err != nil {
				return err
			}
			returns, err := r.resolveVars(rf.Returns, path)
			if err != nil {
				return err
			}
			s.functions = append(s.functions, &Function{name: rf.Name, id: fid, params: params, returns: returns})
		}
		return nil
	}
	streams := func() error {
		for _, rst := range rs.Streams {
			sid, err := assign(rst.Name, rst.ID)
			if err != nil {
				return err
			}
			st, err := r.resolveStream(rs.Name, rst, sid)
			if err != nil {
				return err
			}
			s.streams = append(s.streams, st)
		}
		return nil
	}

	steps := []func() error{functions, streams}
	if !rs.functionsFirst() {
		steps[0], steps[1] = steps[1], steps[0]
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// resolveStream accepts the values of a server stream under either
// "returns" or "params", the older spelling.
func (r *resolver) resolveStream(service string, rs RawStream, id uint8) (*Stream, error) {
	path := service + "." + rs.Name
	origin := Origin(rs.Origin)
	var declared []RawVar
	switch origin {
	case OriginClient:
		if len(rs.Returns) != 0 {
			return nil, ValidationError{Path: path, Reason: "client stream cannot have returns"}
		}
		declared = rs.Params
	case OriginServer:
		if len(rs.Returns) != 0 && len(rs.Params) != 0 {
			return nil, ValidationError{Path: path, Reason: "server stream declares both params and returns"}
		}
		declared = rs.Returns
		if len(declared) == 0 {
			declared = rs.Params
		}
	default:
		return nil, ValidationError{Path: path, Reason: fmt.Sprintf("invalid origin %q", rs.Origin)}
	}
	vars, err := r.resolveVars(declared, path)
	if err != nil {
		return nil, err
	}
	for _, v := range vars {
		if v.name == FinalReturn || (origin == OriginServer && v.name == StartParam) {
			return nil, ValidationError{Path: path + "." + v.name, Reason: "name is reserved for the stream control flag"}
		}
	}
	return newStream(rs.Name, id, origin, rs.Finite, vars), nil
}

func (r *resolver) resolveVars(raw []RawVar, path string) ([]Var, error) {
	vars := make([]Var, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, rv := range raw {
		v, err := r.resolveVar(rv, path)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[v.name]; dup {
			return nil, ValidationError{Path: path + "." + v.name, Reason: "duplicate name"}
		}
		seen[v.name] = struct{}{}
		vars = append(vars, v)
	}
	return vars, nil
}

func (r *resolver) resolveVar(rv RawVar, path string) (Var, error) {
	if rv.Name == "" {
		return Var{}, ValidationError{Path: path, Reason: "value without name"}
	}
	path = path + "." + rv.Name
	base, custom, err := parseBaseType(rv.Type)
	if err != nil {
		return Var{}, ValidationError{Path: path, Reason: err.Error()}
	}
	if custom {
		if i, ok := r.structIndex[base.Name]; ok {
			base.Kind, base.Index = KindStruct, i
		} else if i, ok := r.enumIndex[base.Name]; ok {
			base.Kind, base.Index = KindEnum, i
		} else {
			return Var{}, ValidationError{Path: path, Reason: fmt.Sprintf("unknown type %q", rv.Type)}
		}
	}
	count, optional, err := resolveCount(rv.Count)
	if err != nil {
		return Var{}, ValidationError{Path: path, Reason: err.Error()}
	}
	return Var{name: rv.Name, base: base, count: count, optional: optional}, nil
}
