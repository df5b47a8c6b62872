package schema

import (
	"encoding/hex"
	"fmt"
	"math"
)

// Struct is a named, ordered field list. Field order is wire order.
type Struct struct {
	name              string
	fields            []Var
	external          string
	externalNamespace string
}

func (s *Struct) Name() string { return s.name }
func (s *Struct) Fields() []Var { return s.fields }
func (s *Struct) IsExternal() bool { return s.external != "" }
func (s *Struct) External() string { return s.external }
func (s *Struct) ExternalNamespace() string { return s.externalNamespace }

// Field looks a field up by name.
func (s *Struct) Field(name string) (Var, bool) {
	for _, f := range s.fields {
		if f.name == name {
			return f, true
		}
	}
	return Var{}, false
}

// EnumField is one named enum value.
type EnumField struct {
	Name string
	ID   uint8
}

type Enum struct {
	name              string
	fields            []EnumField
	external          string
	externalNamespace string
}

func (e *Enum) Name() string { return e.name }
func (e *Enum) Fields() []EnumField { return e.fields }
func (e *Enum) IsExternal() bool { return e.external != "" }
func (e *Enum) External() string { return e.external }
func (e *Enum) ExternalNamespace() string { return e.externalNamespace }

// ID returns the wire id of the named field.
func (e *Enum) ID(name string) (uint8, bool) {
	for _, f := range e.fields {
		if f.Name == name {
			return f.ID, true
		}
	}
	return 0, false
}

// FieldName returns the name of the field with wire id id.
func (e *Enum) FieldName(id uint8) (string, bool) {
	for _, f := range e.fields {
		if f.ID == id {
			return f.Name, true
		}
	}
	return "", false
}

func resolveEnumFields(raw []RawEnumField) ([]EnumField, error) {
	fields := make([]EnumField, 0, len(raw))
	seenIDs := make(map[int]string, len(raw))
	seenNames := make(map[string]struct{}, len(raw))
	next := 0
	for _, f := range raw {
		id := next
		if f.ID != nil {
			id = *f.ID
		}
		if f.Name == "" {
			return nil, fmt.Errorf("enum field without name")
		}
		if _, dup := seenNames[f.Name]; dup {
			return nil, fmt.Errorf("duplicate enum field %q", f.Name)
		}
		if id < 0 || id > math.MaxUint8 {
			return nil, fmt.Errorf("enum field %q id %d out of range 0-255", f.Name, id)
		}
		if other, dup := seenIDs[id]; dup {
			return nil, fmt.Errorf("enum fields %q and %q share id %d", other, f.Name, id)
		}
		seenIDs[id] = f.Name
		seenNames[f.Name] = struct{}{}
		fields = append(fields, EnumField{Name: f.Name, ID: uint8(id)})
		next = id + 1
	}
	return fields, nil
}

// Constant is a typed literal for generation-time embedding.
type Constant struct {
	name    string
	value   any
	cppType string
}

func (c *Constant) Name() string { return c.name }
func (c *Constant) Value() any { return c.value }
func (c *Constant) CppType() string { return c.cppType }

var constantTypes = map[string]struct{}{
	"int8_t": {}, "uint8_t": {}, "int16_t": {}, "uint16_t": {},
	"int32_t": {}, "uint32_t": {}, "int64_t": {}, "uint64_t": {},
	"float": {}, "double": {}, "bool": {}, "string": {}, "bytearray": {},
}

// resolveConstant infers the C++ type when it is omitted and normalizes
// the value. A bytearray value is written as a hex string.
func resolveConstant(raw RawConstant) (*Constant, error) {
	c := &Constant{name: raw.Name, value: raw.Value, cppType: raw.CppType}
	if c.cppType == "" {
		switch raw.Value.(type) {
		case bool:
			c.cppType = "bool"
		case int, int64, uint64:
			c.cppType = "int32_t"
		case float64:
			c.cppType = "float"
		case string:
			c.cppType = "string"
		default:
			return nil, fmt.Errorf("constant %q: cannot infer type of %v", raw.Name, raw.Value)
		}
	}
	if _, ok := constantTypes[c.cppType]; !ok {
		return nil, fmt.Errorf("constant %q: unsupported cppType %q", raw.Name, c.cppType)
	}
	if c.cppType == "bytearray" {
		s, ok := raw.Value.(string)
		if !ok {
			return nil, fmt.Errorf("constant %q: bytearray value must be a hex string", raw.Name)
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("constant %q: %w", raw.Name, err)
		}
		c.value = b
	}
	return c, nil
}
