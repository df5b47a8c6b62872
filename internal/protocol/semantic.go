package protocol

import (
	"fmt"
	"math"
	"reflect"

	"github.com/danmuck/lotusrpc/internal/protocol/schema"
)

// integerBits converts any Go integer (or integral float) to the two's
// complement bits of kind k, rejecting values outside the range of k.
func integerBits(value any, k schema.Kind) (uint64, error) {
	var (
		signed   int64
		unsigned uint64
		negative bool
	)
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		signed = rv.Int()
		negative = signed < 0
		unsigned = uint64(signed)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		unsigned = rv.Uint()
		signed = int64(unsigned)
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) || f < math.MinInt64 || f >= math.MaxUint64 {
			return 0, fmt.Errorf("expected integer, got %v", value)
		}
		if f < 0 {
			signed, negative = int64(f), true
			unsigned = uint64(signed)
		} else {
			unsigned = uint64(f)
			signed = int64(unsigned)
		}
	default:
		return 0, fmt.Errorf("expected integer, got %T", value)
	}

	bits := uint(k.Width() * 8)
	if k.IsSigned() {
		lo := int64(-1) << (bits - 1)
		hi := int64(1)<<(bits-1) - 1
		if negative {
			if signed < lo {
				return 0, fmt.Errorf("value %d out of range for %s", signed, k)
			}
		} else if unsigned > uint64(hi) {
			return 0, fmt.Errorf("value %d out of range for %s", unsigned, k)
		}
		return unsigned & mask(bits), nil
	}
	if negative {
		return 0, fmt.Errorf("value %d out of range for %s", signed, k)
	}
	if unsigned > mask(bits) {
		return 0, fmt.Errorf("value %d out of range for %s", unsigned, k)
	}
	return unsigned, nil
}

func mask(bits uint) uint64 {
	if bits >= 64 {
		return math.MaxUint64
	}
	return 1<<bits - 1
}

// floatValue accepts float32, float64 and integers.
func floatValue(value any) (float64, error) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
}

// sequence returns the elements of a slice or array value.
func sequence(value any) ([]any, bool) {
	if items, ok := value.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// fields returns the entries of a struct value given as a string keyed map.
func fields(value any) (map[string]any, bool) {
	if m, ok := value.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	m := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		m[iter.Key().String()] = iter.Value().Interface()
	}
	return m, true
}

// isAbsent reports whether value stands for an absent optional.
func isAbsent(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// deref unwraps a non-nil pointer so optionals may be given as *T.
func deref(value any) any {
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		return rv.Elem().Interface()
	}
	return value
}
