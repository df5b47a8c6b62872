package schema

import (
	"fmt"
	"strconv"
)

// Var is a resolved value descriptor: a name, a base type and an arity.
// count is 1 for single and optional values and N >= 2 for fixed arrays.
type Var struct {
	name     string
	base     BaseType
	count    int
	optional bool
}

// NewVar builds a single-valued descriptor. It is used for the implicit
// stream variables and by callers that need ad-hoc descriptors.
func NewVar(name string, base BaseType) Var {
	return Var{name: name, base: base, count: 1}
}

func (v Var) Name() string { return v.name }
func (v Var) BaseType() BaseType { return v.base }
func (v Var) Kind() Kind { return v.base.Kind }

func (v Var) IsArray() bool { return v.count > 1 }
func (v Var) IsOptional() bool { return v.optional }

// ArraySize returns N for a fixed array and 1 otherwise.
func (v Var) ArraySize() int { return v.count }

func (v Var) IsFixedSizeString() bool { return v.base.Kind == KindFixedString }
func (v Var) IsAutoString() bool { return v.base.Kind == KindAutoString }
func (v Var) IsString() bool { return v.IsFixedSizeString() || v.IsAutoString() }
func (v Var) IsStruct() bool { return v.base.Kind == KindStruct }
func (v Var) IsEnum() bool { return v.base.Kind == KindEnum }
func (v Var) IsBytearray() bool { return v.base.Kind == KindBytearray }
func (v Var) IsIntrinsic() bool { return v.base.Kind.IsIntrinsic() }

// StringSize is the declared capacity of a fixed size string, 0 otherwise.
func (v Var) StringSize() int {
	if v.IsFixedSizeString() {
		return v.base.Size
	}
	return 0
}

// Contained returns the descriptor with its arity stripped.
func (v Var) Contained() Var {
	return Var{name: v.name, base: v.base, count: 1}
}

// WireTag returns the compact codec routine identifier of v.
func (v Var) WireTag() WireTag {
	t := WireTag{Kind: v.base.Kind, Optional: v.optional}
	switch v.base.Kind {
	case KindFixedString:
		t.Size = v.base.Size
	case KindStruct, KindEnum:
		t.Ref = v.base.Name
	}
	if v.IsArray() {
		t.Count = v.count
	}
	return t
}

func (v Var) String() string {
	return fmt.Sprintf("%s %s", v.WireTag(), v.name)
}

// WireTag identifies the encode/decode routine of a value. Two values with
// equal tags share a wire shape.
type WireTag struct {
	Kind     Kind
	Size     int
	Ref      string
	Count    int
	Optional bool
}

func (t WireTag) String() string {
	var base string
	switch t.Kind {
	case KindFixedString:
		base = "string_" + strconv.Itoa(t.Size)
	case KindStruct:
		base = "struct@" + t.Ref
	case KindEnum:
		base = "enum@" + t.Ref
	default:
		base = t.Kind.String()
	}
	switch {
	case t.Count > 1:
		return fmt.Sprintf("array<%s,%d>", base, t.Count)
	case t.Optional:
		return fmt.Sprintf("optional<%s>", base)
	default:
		return base
	}
}

// resolveCount interprets the raw count field.
func resolveCount(raw any) (count int, optional bool, err error) {
	switch c := raw.(type) {
	case nil:
		return 1, false, nil
	case string:
		if c == "?" {
			return 1, true, nil
		}
		n, convErr := strconv.Atoi(c)
		if convErr != nil {
			return 0, false, fmt.Errorf("invalid count %q", c)
		}
		return resolveCount(n)
	case int:
		if c < 1 {
			return 0, false, fmt.Errorf("invalid count %d", c)
		}
		return c, false, nil
	case int64:
		return resolveCount(int(c))
	case uint64:
		return resolveCount(int(c))
	default:
		return 0, false, fmt.Errorf("invalid count %v", raw)
	}
}
