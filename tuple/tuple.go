package tuple

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// Tuple is an ordered, immutable sequence of fields. Its arity is part of its identity.
type Tuple struct {
	fields []Value
}

// New builds a tuple from already typed values. Zero Values are rejected by Of, not here;
// callers holding Values got them from a constructor.
func New(values ...Value) Tuple {
	fields := make([]Value, len(values))
	copy(fields, values)
	return Tuple{fields: fields}
}

// Of builds a tuple from raw Go values, see ValueOf.
func Of(fields ...any) (Tuple, error) {
	values := make([]Value, len(fields))
	for i, f := range fields {
		v, err := ValueOf(f)
		if err != nil {
			return Tuple{}, fmt.Errorf("field %d: %w", i, err)
		}
		values[i] = v
	}
	return Tuple{fields: values}, nil
}

// MustOf is Of for literals known to be valid. It panics on error.
func MustOf(fields ...any) Tuple {
	t, err := Of(fields...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Tuple) Arity() int { return len(t.fields) }

// Field returns the i-th field. It panics when i is out of range, like a slice index.
func (t Tuple) Field(i int) Value { return t.fields[i] }

// Fields returns a copy of the fields.
func (t Tuple) Fields() []Value {
	out := make([]Value, len(t.fields))
	copy(out, t.fields)
	return out
}

// Values returns the raw payload of every field, in order.
func (t Tuple) Values() []any {
	out := make([]any, len(t.fields))
	for i, f := range t.fields {
		out[i] = f.Any()
	}
	return out
}

func (t Tuple) Equal(o Tuple) bool {
	if len(t.fields) != len(o.fields) {
		return false
	}
	for i := range t.fields {
		if !t.fields[i].Equal(o.fields[i]) {
			return false
		}
	}
	return true
}

func (t Tuple) Hash() uint64 {
	h := fnv.New64a()
	Nested(t).writeHash(h)
	return h.Sum64()
}

func (t Tuple) String() string {
	parts := make([]string, len(t.fields))
	for i, f := range t.fields {
		parts[i] = f.String()
	}
	return "<" + strings.Join(parts, ", ") + ">"
}
