package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the closed set of wire base types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUint8
	KindInt8
	KindUint16
	KindInt16
	KindUint32
	KindInt32
	KindUint64
	KindInt64
	KindFloat
	KindDouble
	KindBool
	KindFixedString
	KindAutoString
	KindBytearray
	KindStruct
	KindEnum
)

var intrinsicKinds = map[string]Kind{
	"uint8_t":  KindUint8,
	"int8_t":   KindInt8,
	"uint16_t": KindUint16,
	"int16_t":  KindInt16,
	"uint32_t": KindUint32,
	"int32_t":  KindInt32,
	"uint64_t": KindUint64,
	"int64_t":  KindInt64,
	"float":    KindFloat,
	"double":   KindDouble,
	"bool":     KindBool,
}

func (k Kind) String() string {
	switch k {
	case KindUint8:
		return "uint8_t"
	case KindInt8:
		return "int8_t"
	case KindUint16:
		return "uint16_t"
	case KindInt16:
		return "int16_t"
	case KindUint32:
		return "uint32_t"
	case KindInt32:
		return "int32_t"
	case KindUint64:
		return "uint64_t"
	case KindInt64:
		return "int64_t"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindFixedString:
		return "string_n"
	case KindAutoString:
		return "string"
	case KindBytearray:
		return "bytearray"
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	default:
		return "invalid"
	}
}

// Width returns the fixed wire width of an intrinsic kind, 0 otherwise.
func (k Kind) Width() int {
	switch k {
	case KindUint8, KindInt8, KindBool:
		return 1
	case KindUint16, KindInt16:
		return 2
	case KindUint32, KindInt32, KindFloat:
		return 4
	case KindUint64, KindInt64, KindDouble:
		return 8
	default:
		return 0
	}
}

// IsIntrinsic reports whether k is a fixed width number or bool.
func (k Kind) IsIntrinsic() bool {
	return k.Width() > 0
}

// IsInteger reports whether k is one of the eight integer kinds.
func (k Kind) IsInteger() bool {
	return k >= KindUint8 && k <= KindInt64
}

// IsSigned reports whether k is a signed integer kind.
func (k Kind) IsSigned() bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	default:
		return false
	}
}

// BaseType is a resolved type reference. Index points into the owning
// Definition's struct or enum table for KindStruct and KindEnum.
type BaseType struct {
	Kind  Kind
	Name  string
	Size  int
	Index int
}

// String renders the base type the way it is declared in a definition.
func (b BaseType) String() string {
	switch b.Kind {
	case KindFixedString:
		return "string_" + strconv.Itoa(b.Size)
	case KindStruct, KindEnum:
		return "@" + b.Name
	default:
		return b.Kind.String()
	}
}

// parseBaseType parses intrinsic, string and bytearray types. Anything else
// is reported as custom and resolved by the caller against the struct and
// enum tables. The "@" prefix is optional.
func parseBaseType(s string) (BaseType, bool, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "@") {
		name := strings.TrimPrefix(s, "@")
		if name == "" {
			return BaseType{}, false, fmt.Errorf("empty custom type name")
		}
		return BaseType{Name: name}, true, nil
	}
	if k, ok := intrinsicKinds[s]; ok {
		return BaseType{Kind: k, Name: s}, false, nil
	}
	switch {
	case s == "string":
		return BaseType{Kind: KindAutoString, Name: s}, false, nil
	case s == "bytearray":
		return BaseType{Kind: KindBytearray, Name: s}, false, nil
	case strings.HasPrefix(s, "string_"):
		n, err := strconv.Atoi(strings.TrimPrefix(s, "string_"))
		if err != nil || n < 1 {
			return BaseType{}, false, fmt.Errorf("invalid fixed size string %q", s)
		}
		return BaseType{Kind: KindFixedString, Name: s, Size: n}, false, nil
	}
	if s == "" {
		return BaseType{}, false, fmt.Errorf("missing type")
	}
	return BaseType{Name: s}, true, nil
}
