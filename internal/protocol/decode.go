package protocol

import (
	"fmt"
	"math"

	"github.com/danmuck/lotusrpc/internal/protocol/schema"
)

// Decoder decodes values from a byte buffer with a forward-only cursor.
// Trailing bytes are left for the caller to inspect through Remaining.
type Decoder struct {
	def *schema.Definition
	r   reader
}

func NewDecoder(def *schema.Definition, buf []byte) *Decoder {
	return &Decoder{def: def, r: reader{buf: buf}}
}

// Decode reads one value described by v. Integers decode to the Go type
// of the declared width, arrays to []any, structs to map[string]any, enums
// to their field name and absent optionals to nil.
func (d *Decoder) Decode(v schema.Var) (any, error) {
	if d.r.err != nil {
		return nil, d.r.err
	}
	value := d.decode(v, v.Name())
	if d.r.err != nil {
		return nil, d.r.err
	}
	return value, nil
}

// Remaining is the number of bytes not consumed yet.
func (d *Decoder) Remaining() int { return d.r.remaining() }

// Offset is the cursor position.
func (d *Decoder) Offset() int { return d.r.off }

// Decode decodes a single value from the start of buf.
func Decode(def *schema.Definition, buf []byte, v schema.Var) (any, error) {
	return NewDecoder(def, buf).Decode(v)
}

func (d *Decoder) decode(v schema.Var, path string) any {
	if v.IsArray() {
		items := make([]any, v.ArraySize())
		contained := v.Contained()
		for i := range items {
			items[i] = d.decode(contained, fmt.Sprintf("%s[%d]", path, i))
		}
		return items
	}
	if v.IsOptional() {
		if !d.r.bool(path) {
			return nil
		}
		return d.decode(v.Contained(), path)
	}
	return d.decodeBase(v, path)
}

func (d *Decoder) decodeBase(v schema.Var, path string) any {
	r := &d.r
	switch v.Kind() {
	case schema.KindUint8:
		return r.uint8(path)
	case schema.KindInt8:
		return int8(r.uint8(path))
	case schema.KindUint16:
		return r.uint16(path)
	case schema.KindInt16:
		return int16(r.uint16(path))
	case schema.KindUint32:
		return r.uint32(path)
	case schema.KindInt32:
		return int32(r.uint32(path))
	case schema.KindUint64:
		return r.uint64(path)
	case schema.KindInt64:
		return int64(r.uint64(path))
	case schema.KindFloat:
		return math.Float32frombits(r.uint32(path))
	case schema.KindDouble:
		return math.Float64frombits(r.uint64(path))
	case schema.KindBool:
		return r.bool(path)
	case schema.KindFixedString:
		width := v.StringSize() + 1
		if r.err == nil && r.remaining() < width {
			r.fail(path, "fixed size string needs %d bytes, %d remaining", width, r.remaining())
			return ""
		}
		start := r.off
		s := r.cstring(width, path)
		if r.err == nil {
			r.off = start + width
		}
		return s
	case schema.KindAutoString:
		return r.cstring(-1, path)
	case schema.KindBytearray:
		n := int(r.uint8(path))
		p := r.take(n, path)
		if p == nil {
			return []byte{}
		}
		return append([]byte(nil), p...)
	case schema.KindStruct:
		s := d.def.StructOf(v)
		m := make(map[string]any, len(s.Fields()))
		for _, f := range s.Fields() {
			m[f.Name()] = d.decode(f, path+"."+f.Name())
		}
		return m
	case schema.KindEnum:
		id := r.uint8(path)
		if r.err != nil {
			return ""
		}
		en := d.def.EnumOf(v)
		name, ok := en.FieldName(id)
		if !ok {
			r.off--
			r.fail(path, "value %d (0x%02x) is not valid for enum %s", id, id, en.Name())
			return ""
		}
		return name
	default:
		r.fail(path, "unsupported kind %s", v.Kind())
		return nil
	}
}
