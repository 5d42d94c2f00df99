package tuple

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestOfConvertsRawValues(t *testing.T) {
	tp, err := Of(1, true, 3.0, "4", []any{int8(5), uint16(6)})
	if err != nil {
		t.Fatalf("Of failed: %v", err)
	}
	if tp.Arity() != 5 {
		t.Fatalf("expect arity 5, got %d", tp.Arity())
	}

	wantKinds := []Kind{KindInt, KindBool, KindFloat, KindString, KindTuple}
	for i, k := range wantKinds {
		if got := tp.Field(i).Kind(); got != k {
			t.Errorf("field %d: expect kind %s, got %s", i, k, got)
		}
	}

	want := []any{int64(1), true, 3.0, "4", []any{int64(5), int64(6)}}
	if got := tp.Values(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Values mismatch: got %#v, want %#v", got, want)
	}
}

func TestOfRejectsUnsupported(t *testing.T) {
	_, err := Of(1, struct{}{})
	if !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("expect ErrUnsupportedValue, got %v", err)
	}

	_, err = Of(uint64(math.MaxUint64))
	if !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("expect overflow to be rejected, got %v", err)
	}
}

func TestTupleEqualIsStructural(t *testing.T) {
	a := MustOf(1, "x", 2.5)
	b := MustOf(1, "x", 2.5)
	if !a.Equal(b) {
		t.Fatalf("expect %s == %s", a, b)
	}
	if a.Hash() != b.Hash() {
		t.Fatalf("equal tuples must hash equally")
	}

	cases := []Tuple{
		MustOf(1, "x"),
		MustOf("x", 1, 2.5),
		MustOf(1, "x", 2),
		MustOf(1, "y", 2.5),
		MustOf(1, "x", 2.5, true),
	}
	for _, c := range cases {
		if a.Equal(c) {
			t.Errorf("expect %s != %s", a, c)
		}
	}
}

func TestIntAndFloatAreDistinct(t *testing.T) {
	if Int(3).Equal(Float(3)) {
		t.Fatal("int 3 and float 3 must differ")
	}
}

func TestFloatEqualityUsesBits(t *testing.T) {
	nan := Float(math.NaN())
	if !nan.Equal(Float(math.NaN())) {
		t.Fatal("NaN must equal NaN structurally")
	}
	if Float(0).Equal(Float(math.Copysign(0, -1))) {
		t.Fatal("0.0 and -0.0 must differ")
	}
}

func TestTupleIsImmutable(t *testing.T) {
	values := []Value{Int(1), Int(2)}
	tp := New(values...)
	values[0] = Int(99)

	fields := tp.Fields()
	fields[1] = Int(99)

	if !tp.Equal(MustOf(1, 2)) {
		t.Fatalf("tuple changed through caller slices: %s", tp)
	}
}

func TestValueAccessors(t *testing.T) {
	v := String("abc")
	s, err := v.AsString()
	if err != nil || s != "abc" {
		t.Fatalf("AsString: got %q, %v", s, err)
	}
	if _, err := v.AsInt(); !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("expect ErrKindMismatch, got %v", err)
	}
}

func TestString(t *testing.T) {
	tp := MustOf(1, true, 3.5, "4\n", MustOf(2))
	want := `<1, true, 3.5, "4\n", <2>>`
	if got := tp.String(); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestParseKind(t *testing.T) {
	for k := KindInt; k <= KindTuple; k++ {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("long"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expect ErrUnknownKind, got %v", err)
	}
}
