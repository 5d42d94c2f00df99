// Package tuple defines the data exchanged through a tuple space.
//
// A Tuple is an ordered, immutable sequence of fields. Every field is a Value: a tagged
// union whose Kind says which payload is set. Keeping the kind next to the payload means
// the matcher and the codecs share one representation, and a codec never has to guess
// whether 3 was an int or a float.
//
//	Tuple    <1, true, 3.5, "x", <2, 3>>
//	Template <1, ?bool, ?float, "x", ?tuple>
package tuple

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
)

// Kind is the discriminator of a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt          // int64
	KindBool         // bool
	KindFloat        // float64
	KindString       // string
	KindTuple        // nested Tuple
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindInt:     "int",
	KindBool:    "bool",
	KindFloat:   "float",
	KindString:  "string",
	KindTuple:   "tuple",
}

var (
	ErrUnsupportedValue = errors.New("tuple: unsupported value type")
	ErrKindMismatch     = errors.New("tuple: kind mismatch")
	ErrUnknownKind      = errors.New("tuple: unknown kind")
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Valid reports whether k is one of the field kinds a tuple can carry.
func (k Kind) Valid() bool {
	return k >= KindInt && k <= KindTuple
}

// ParseKind maps a wire name back to its Kind.
func ParseKind(name string) (Kind, error) {
	for k := KindInt; k <= KindTuple; k++ {
		if kindNames[k] == name {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// Value is one tuple field. The zero Value has KindInvalid and never appears inside a
// Tuple built by this package.
type Value struct {
	kind Kind
	i    int64
	b    bool
	f    float64
	s    string
	t    Tuple
}

func Int(v int64) Value     { return Value{kind: KindInt, i: v} }
func Bool(v bool) Value     { return Value{kind: KindBool, b: v} }
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }
func String(v string) Value { return Value{kind: KindString, s: v} }
func Nested(t Tuple) Value  { return Value{kind: KindTuple, t: t} }

// ValueOf converts a raw Go value into a Value.
//
// Every integer width is accepted as long as it fits in an int64. A []any becomes a
// nested tuple.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		if !x.kind.Valid() {
			return Value{}, fmt.Errorf("%w: zero Value", ErrUnsupportedValue)
		}
		return x, nil
	case Tuple:
		return Nested(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, x)
		}
		return Int(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, x)
		}
		return Int(int64(x)), nil
	case bool:
		return Bool(x), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case string:
		return String(x), nil
	case []any:
		t, err := Of(x...)
		if err != nil {
			return Value{}, err
		}
		return Nested(t), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsInt() (int64, error) {
	if v.kind != KindInt {
		return 0, ErrKindMismatch
	}
	return v.i, nil
}

func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, ErrKindMismatch
	}
	return v.b, nil
}

func (v Value) AsFloat() (float64, error) {
	if v.kind != KindFloat {
		return 0, ErrKindMismatch
	}
	return v.f, nil
}

func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", ErrKindMismatch
	}
	return v.s, nil
}

func (v Value) AsTuple() (Tuple, error) {
	if v.kind != KindTuple {
		return Tuple{}, ErrKindMismatch
	}
	return v.t, nil
}

// Any returns the raw payload: int64, bool, float64, string, or []any for a nested tuple.
func (v Value) Any() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindBool:
		return v.b
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindTuple:
		return v.t.Values()
	default:
		return nil
	}
}

// Equal compares kind and payload. Floats compare by bit pattern: NaN equals NaN and
// 0.0 differs from -0.0.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == o.i
	case KindBool:
		return v.b == o.b
	case KindFloat:
		return math.Float64bits(v.f) == math.Float64bits(o.f)
	case KindString:
		return v.s == o.s
	case KindTuple:
		return v.t.Equal(o.t)
	default:
		return true
	}
}

// Hash is consistent with Equal.
func (v Value) Hash() uint64 {
	h := fnv.New64a()
	v.writeHash(h)
	return h.Sum64()
}

type hashWriter interface {
	Write(p []byte) (int, error)
}

func (v Value) writeHash(h hashWriter) {
	var buf [9]byte
	buf[0] = byte(v.kind)
	switch v.kind {
	case KindInt:
		binary.BigEndian.PutUint64(buf[1:], uint64(v.i))
		h.Write(buf[:])
	case KindBool:
		if v.b {
			buf[1] = 1
		}
		h.Write(buf[:2])
	case KindFloat:
		binary.BigEndian.PutUint64(buf[1:], math.Float64bits(v.f))
		h.Write(buf[:])
	case KindString:
		binary.BigEndian.PutUint64(buf[1:], uint64(len(v.s)))
		h.Write(buf[:])
		h.Write([]byte(v.s))
	case KindTuple:
		binary.BigEndian.PutUint64(buf[1:], uint64(len(v.t.fields)))
		h.Write(buf[:])
		for _, f := range v.t.fields {
			f.writeHash(h)
		}
	default:
		h.Write(buf[:1])
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindTuple:
		return v.t.String()
	default:
		return "<invalid>"
	}
}
