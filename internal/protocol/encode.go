package protocol

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/danmuck/lotusrpc/internal/protocol/schema"
)

// Encoder appends encoded values to an internal buffer. A failed Encode
// leaves the buffer as it was before the call.
type Encoder struct {
	def *schema.Definition
	w   writer
}

func NewEncoder(def *schema.Definition) *Encoder {
	return &Encoder{def: def}
}

// Encode appends value encoded as v.
func (e *Encoder) Encode(value any, v schema.Var) error {
	mark := len(e.w.buf)
	if err := e.encode(value, v, v.Name()); err != nil {
		e.w.buf = e.w.buf[:mark]
		return err
	}
	return nil
}

// Bytes returns the encoded bytes. The slice aliases the buffer until the
// next Encode or Reset.
func (e *Encoder) Bytes() []byte { return e.w.buf }

func (e *Encoder) Len() int { return len(e.w.buf) }

func (e *Encoder) Reset() { e.w.buf = e.w.buf[:0] }

// Encode encodes a single value.
func Encode(def *schema.Definition, value any, v schema.Var) ([]byte, error) {
	enc := NewEncoder(def)
	if err := enc.Encode(value, v); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}

func (e *Encoder) encode(value any, v schema.Var, path string) error {
	if v.IsArray() {
		items, ok := sequence(value)
		if !ok {
			return encodeErrorf(path, "expected array of %d, got %T", v.ArraySize(), value)
		}
		if len(items) != v.ArraySize() {
			return encodeErrorf(path, "expected %d elements, got %d", v.ArraySize(), len(items))
		}
		contained := v.Contained()
		for i, item := range items {
			if err := e.encode(item, contained, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	}
	if v.IsOptional() {
		if isAbsent(value) {
			e.w.bool(false)
			return nil
		}
		e.w.bool(true)
		return e.encode(deref(value), v.Contained(), path)
	}
	return e.encodeBase(value, v, path)
}

func (e *Encoder) encodeBase(value any, v schema.Var, path string) error {
	k := v.Kind()
	switch k {
	case schema.KindUint8, schema.KindInt8:
		bits, err := integerBits(value, k)
		if err != nil {
			return encodeErrorf(path, "%v", err)
		}
		e.w.uint8(uint8(bits))
	case schema.KindUint16, schema.KindInt16:
		bits, err := integerBits(value, k)
		if err != nil {
			return encodeErrorf(path, "%v", err)
		}
		e.w.uint16(uint16(bits))
	case schema.KindUint32, schema.KindInt32:
		bits, err := integerBits(value, k)
		if err != nil {
			return encodeErrorf(path, "%v", err)
		}
		e.w.uint32(uint32(bits))
	case schema.KindUint64, schema.KindInt64:
		bits, err := integerBits(value, k)
		if err != nil {
			return encodeErrorf(path, "%v", err)
		}
		e.w.uint64(bits)
	case schema.KindFloat:
		f, err := floatValue(value)
		if err != nil {
			return encodeErrorf(path, "%v", err)
		}
		if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return encodeErrorf(path, "value %v out of range for float", f)
		}
		e.w.uint32(math.Float32bits(float32(f)))
	case schema.KindDouble:
		f, err := floatValue(value)
		if err != nil {
			return encodeErrorf(path, "%v", err)
		}
		e.w.uint64(math.Float64bits(f))
	case schema.KindBool:
		b, ok := value.(bool)
		if !ok {
			return encodeErrorf(path, "expected bool, got %T", value)
		}
		e.w.bool(b)
	case schema.KindFixedString:
		s, err := stringValue(value, path)
		if err != nil {
			return err
		}
		if len(s) > v.StringSize() {
			return encodeErrorf(path, "string of %d bytes exceeds capacity %d", len(s), v.StringSize())
		}
		e.w.data([]byte(s))
		e.w.zeros(v.StringSize() + 1 - len(s))
	case schema.KindAutoString:
		s, err := stringValue(value, path)
		if err != nil {
			return err
		}
		e.w.data([]byte(s))
		e.w.uint8(0)
	case schema.KindBytearray:
		var b []byte
		switch x := value.(type) {
		case []byte:
			b = x
		case string:
			b = []byte(x)
		default:
			return encodeErrorf(path, "expected bytes, got %T", value)
		}
		if len(b) > math.MaxUint8 {
			return encodeErrorf(path, "bytearray of %d bytes exceeds 255", len(b))
		}
		e.w.uint8(uint8(len(b)))
		e.w.data(b)
	case schema.KindStruct:
		return e.encodeStruct(value, v, path)
	case schema.KindEnum:
		name, ok := value.(string)
		if !ok {
			return encodeErrorf(path, "expected enum field name, got %T", value)
		}
		en := e.def.EnumOf(v)
		id, ok := en.ID(name)
		if !ok {
			return encodeErrorf(path, "%q is not a valid value for enum %s", name, en.Name())
		}
		e.w.uint8(id)
	default:
		return encodeErrorf(path, "unsupported kind %s", k)
	}
	return nil
}

func (e *Encoder) encodeStruct(value any, v schema.Var, path string) error {
	s := e.def.StructOf(v)
	m, ok := fields(value)
	if !ok {
		return encodeErrorf(path, "expected map for struct %s, got %T", s.Name(), value)
	}
	var missing, unknown []string
	for _, f := range s.Fields() {
		if _, ok := m[f.Name()]; !ok {
			missing = append(missing, f.Name())
		}
	}
	for name := range m {
		if _, ok := s.Field(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(missing) != 0 {
		return encodeErrorf(path, "missing fields for struct %s: %s", s.Name(), strings.Join(missing, ", "))
	}
	if len(unknown) != 0 {
		sort.Strings(unknown)
		return encodeErrorf(path, "unknown fields for struct %s: %s", s.Name(), strings.Join(unknown, ", "))
	}
	for _, f := range s.Fields() {
		if err := e.encode(m[f.Name()], f, path+"."+f.Name()); err != nil {
			return err
		}
	}
	return nil
}

func stringValue(value any, path string) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", encodeErrorf(path, "expected string, got %T", value)
	}
	if strings.IndexByte(s, 0) >= 0 {
		return "", encodeErrorf(path, "string contains NUL")
	}
	return s, nil
}
