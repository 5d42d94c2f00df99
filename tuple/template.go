package tuple

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// Pattern is one template field: either an actual value matched by equality or a formal
// field matching any value of its kind.
type Pattern struct {
	formal bool
	kind   Kind
	value  Value
}

func Actual(v Value) Pattern { return Pattern{kind: v.kind, value: v} }
func Formal(k Kind) Pattern  { return Pattern{formal: true, kind: k} }

func (p Pattern) IsFormal() bool { return p.formal }
func (p Pattern) Kind() Kind     { return p.kind }

// Value returns the actual value. It is the zero Value for formal patterns.
func (p Pattern) Value() Value { return p.value }

func (p Pattern) Matches(v Value) bool {
	if p.formal {
		return v.kind == p.kind
	}
	return p.value.Equal(v)
}

func (p Pattern) Equal(o Pattern) bool {
	if p.formal != o.formal || p.kind != o.kind {
		return false
	}
	return p.formal || p.value.Equal(o.value)
}

func (p Pattern) String() string {
	if p.formal {
		return "?" + p.kind.String()
	}
	return p.value.String()
}

// Template describes the tuples a read request accepts.
type Template struct {
	patterns []Pattern
}

func NewTemplate(patterns ...Pattern) Template {
	ps := make([]Pattern, len(patterns))
	copy(ps, patterns)
	return Template{patterns: ps}
}

// TemplateOf builds a template from raw arguments: a Kind becomes a formal field, a
// Pattern is used as is, anything else goes through ValueOf and becomes an actual field.
func TemplateOf(fields ...any) (Template, error) {
	ps := make([]Pattern, len(fields))
	for i, f := range fields {
		switch x := f.(type) {
		case Kind:
			if !x.Valid() {
				return Template{}, fmt.Errorf("field %d: %w: %s", i, ErrUnknownKind, x)
			}
			ps[i] = Formal(x)
		case Pattern:
			ps[i] = x
		default:
			v, err := ValueOf(f)
			if err != nil {
				return Template{}, fmt.Errorf("field %d: %w", i, err)
			}
			ps[i] = Actual(v)
		}
	}
	return Template{patterns: ps}, nil
}

// MustTemplateOf is TemplateOf for literals known to be valid. It panics on error.
func MustTemplateOf(fields ...any) Template {
	tmpl, err := TemplateOf(fields...)
	if err != nil {
		panic(err)
	}
	return tmpl
}

func (t Template) Arity() int           { return len(t.patterns) }
func (t Template) Pattern(i int) Pattern { return t.patterns[i] }

func (t Template) Patterns() []Pattern {
	out := make([]Pattern, len(t.patterns))
	copy(out, t.patterns)
	return out
}

// Match reports whether tp has the template's arity and every field satisfies the
// pattern at the same position.
func (t Template) Match(tp Tuple) bool {
	if len(t.patterns) != len(tp.fields) {
		return false
	}
	for i, p := range t.patterns {
		if !p.Matches(tp.fields[i]) {
			return false
		}
	}
	return true
}

func (t Template) Equal(o Template) bool {
	if len(t.patterns) != len(o.patterns) {
		return false
	}
	for i := range t.patterns {
		if !t.patterns[i].Equal(o.patterns[i]) {
			return false
		}
	}
	return true
}

func (t Template) Hash() uint64 {
	h := fnv.New64a()
	for _, p := range t.patterns {
		if p.formal {
			h.Write([]byte{0xff, byte(p.kind)})
			continue
		}
		p.value.writeHash(h)
	}
	return h.Sum64()
}

func (t Template) String() string {
	parts := make([]string, len(t.patterns))
	for i, p := range t.patterns {
		parts[i] = p.String()
	}
	return "<" + strings.Join(parts, ", ") + ">"
}
