package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"tuplespace/message"
	"tuplespace/tuple"
)

// jsonValue is one tagged field. Actual fields carry a value, formal template fields
// carry "formal": true instead.
//
//	{"type":"int","value":1}
//	{"type":"float","value":3}
//	{"type":"tuple","value":[{"type":"string","value":"a"}]}
//	{"type":"int","formal":true}
type jsonValue struct {
	Type   string          `json:"type"`
	Value  json.RawMessage `json:"value,omitempty"`
	Formal bool            `json:"formal,omitempty"`
}

type jsonClientMessage struct {
	MessageType   string       `json:"messageType"`
	Target        string       `json:"target"`
	Tuple         *[]jsonValue `json:"tuple,omitempty"`
	Template      *[]jsonValue `json:"template,omitempty"`
	Blocking      bool         `json:"blocking"`
	All           bool         `json:"all"`
	ClientSession string       `json:"clientSession"`
}

type jsonServerMessage struct {
	MessageType   string         `json:"messageType"`
	Status        bool           `json:"status"`
	StatusCode    string         `json:"statusCode"`
	StatusMessage string         `json:"statusMessage"`
	Tuples        *[][]jsonValue `json:"tuples,omitempty"`
	ClientSession *string        `json:"clientSession,omitempty"`
}

// checkUTF8 rejects strings encoding/json would rewrite with U+FFFD.
func checkUTF8(what, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: %s %q is not valid UTF-8", ErrUnsupportedType, what, s)
	}
	return nil
}

func valueToJSON(v tuple.Value) (jsonValue, error) {
	var raw []byte
	var err error
	switch v.Kind() {
	case tuple.KindInt:
		x, _ := v.AsInt()
		raw = strconv.AppendInt(nil, x, 10)
	case tuple.KindBool:
		x, _ := v.AsBool()
		raw = strconv.AppendBool(nil, x)
	case tuple.KindFloat:
		x, _ := v.AsFloat()
		raw = floatToJSON(x)
	case tuple.KindString:
		x, _ := v.AsString()
		if err = checkUTF8("string field", x); err == nil {
			raw, err = json.Marshal(x)
		}
	case tuple.KindTuple:
		x, _ := v.AsTuple()
		var fields []jsonValue
		fields, err = tupleToJSON(x)
		if err == nil {
			raw, err = json.Marshal(fields)
		}
	default:
		return jsonValue{}, fmt.Errorf("%w: field kind %s", ErrUnsupportedType, v.Kind())
	}
	if err != nil {
		return jsonValue{}, err
	}
	return jsonValue{Type: v.Kind().String(), Value: raw}, nil
}

// floatToJSON writes finite floats as JSON numbers and the rest as quoted strings,
// since JSON has no NaN or infinity.
func floatToJSON(f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.AppendQuote(nil, strconv.FormatFloat(f, 'g', -1, 64))
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64)
}

func valueFromJSON(jv jsonValue) (tuple.Value, error) {
	kind, err := tuple.ParseKind(jv.Type)
	if err != nil {
		return tuple.Value{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if jv.Formal {
		return tuple.Value{}, fmt.Errorf("%w: formal field outside a template", ErrMalformed)
	}
	if len(jv.Value) == 0 || string(jv.Value) == "null" {
		return tuple.Value{}, fmt.Errorf("%w: %s field without value", ErrMalformed, kind)
	}

	switch kind {
	case tuple.KindInt:
		var x int64
		if err := json.Unmarshal(jv.Value, &x); err != nil {
			return tuple.Value{}, fmt.Errorf("%w: int field: %v", ErrMalformed, err)
		}
		return tuple.Int(x), nil
	case tuple.KindBool:
		var x bool
		if err := json.Unmarshal(jv.Value, &x); err != nil {
			return tuple.Value{}, fmt.Errorf("%w: bool field: %v", ErrMalformed, err)
		}
		return tuple.Bool(x), nil
	case tuple.KindFloat:
		x, err := floatFromJSON(jv.Value)
		if err != nil {
			return tuple.Value{}, err
		}
		return tuple.Float(x), nil
	case tuple.KindString:
		var x string
		if err := json.Unmarshal(jv.Value, &x); err != nil {
			return tuple.Value{}, fmt.Errorf("%w: string field: %v", ErrMalformed, err)
		}
		return tuple.String(x), nil
	default:
		var fields []jsonValue
		if err := json.Unmarshal(jv.Value, &fields); err != nil {
			return tuple.Value{}, fmt.Errorf("%w: tuple field: %v", ErrMalformed, err)
		}
		t, err := tupleFromJSON(fields)
		if err != nil {
			return tuple.Value{}, err
		}
		return tuple.Nested(t), nil
	}
}

func floatFromJSON(raw json.RawMessage) (float64, error) {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: float field: %v", ErrMalformed, err)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || !(math.IsNaN(f) || math.IsInf(f, 0)) {
			return 0, fmt.Errorf("%w: float field: %q", ErrMalformed, s)
		}
		return f, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("%w: float field: %v", ErrMalformed, err)
	}
	return f, nil
}

func tupleToJSON(t tuple.Tuple) ([]jsonValue, error) {
	out := make([]jsonValue, t.Arity())
	for i := 0; i < t.Arity(); i++ {
		jv, err := valueToJSON(t.Field(i))
		if err != nil {
			return nil, err
		}
		out[i] = jv
	}
	return out, nil
}

func tupleFromJSON(fields []jsonValue) (tuple.Tuple, error) {
	values := make([]tuple.Value, len(fields))
	for i, jv := range fields {
		v, err := valueFromJSON(jv)
		if err != nil {
			return tuple.Tuple{}, fmt.Errorf("field %d: %w", i, err)
		}
		values[i] = v
	}
	return tuple.New(values...), nil
}

func templateToJSON(tmpl tuple.Template) ([]jsonValue, error) {
	out := make([]jsonValue, tmpl.Arity())
	for i := 0; i < tmpl.Arity(); i++ {
		p := tmpl.Pattern(i)
		if p.IsFormal() {
			out[i] = jsonValue{Type: p.Kind().String(), Formal: true}
			continue
		}
		jv, err := valueToJSON(p.Value())
		if err != nil {
			return nil, err
		}
		out[i] = jv
	}
	return out, nil
}

func templateFromJSON(fields []jsonValue) (tuple.Template, error) {
	patterns := make([]tuple.Pattern, len(fields))
	for i, jv := range fields {
		if jv.Formal {
			kind, err := tuple.ParseKind(jv.Type)
			if err != nil {
				return tuple.Template{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, i, err)
			}
			patterns[i] = tuple.Formal(kind)
			continue
		}
		v, err := valueFromJSON(jv)
		if err != nil {
			return tuple.Template{}, fmt.Errorf("field %d: %w", i, err)
		}
		patterns[i] = tuple.Actual(v)
	}
	return tuple.NewTemplate(patterns...), nil
}

func clientToJSON(m message.ClientMessage) (jsonClientMessage, error) {
	w := jsonClientMessage{
		MessageType:   m.MessageType().String(),
		Target:        m.Target(),
		Blocking:      m.Blocking(),
		All:           m.All(),
		ClientSession: m.ClientSession(),
	}
	if err := checkUTF8("target", w.Target); err != nil {
		return jsonClientMessage{}, err
	}
	if err := checkUTF8("client session", w.ClientSession); err != nil {
		return jsonClientMessage{}, err
	}
	if t, ok := m.Tuple(); ok {
		fields, err := tupleToJSON(t)
		if err != nil {
			return jsonClientMessage{}, err
		}
		w.Tuple = &fields
	}
	if tmpl, ok := m.Template(); ok {
		fields, err := templateToJSON(tmpl)
		if err != nil {
			return jsonClientMessage{}, err
		}
		w.Template = &fields
	}
	return w, nil
}

func clientFromJSON(w jsonClientMessage) (message.ClientMessage, error) {
	typ, err := message.ParseClientMessageType(w.MessageType)
	if err != nil {
		return message.ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var tp *tuple.Tuple
	if w.Tuple != nil {
		t, err := tupleFromJSON(*w.Tuple)
		if err != nil {
			return message.ClientMessage{}, fmt.Errorf("tuple: %w", err)
		}
		tp = &t
	}
	var tmpl *tuple.Template
	if w.Template != nil {
		t, err := templateFromJSON(*w.Template)
		if err != nil {
			return message.ClientMessage{}, fmt.Errorf("template: %w", err)
		}
		tmpl = &t
	}
	return message.NewClientMessage(typ, w.Target, tp, tmpl, w.Blocking, w.All, w.ClientSession), nil
}

func serverToJSON(m message.ServerMessage) (jsonServerMessage, error) {
	w := jsonServerMessage{
		MessageType:   m.MessageType().String(),
		Status:        m.Status(),
		StatusCode:    m.StatusCode(),
		StatusMessage: m.StatusMessage(),
	}
	if err := checkUTF8("status message", w.StatusMessage); err != nil {
		return jsonServerMessage{}, err
	}
	if tuples, ok := m.Tuples(); ok {
		out := make([][]jsonValue, len(tuples))
		for i, t := range tuples {
			fields, err := tupleToJSON(t)
			if err != nil {
				return jsonServerMessage{}, fmt.Errorf("tuple %d: %w", i, err)
			}
			out[i] = fields
		}
		w.Tuples = &out
	}
	if session, ok := m.ClientSession(); ok {
		if err := checkUTF8("client session", session); err != nil {
			return jsonServerMessage{}, err
		}
		w.ClientSession = &session
	}
	return w, nil
}

func serverFromJSON(w jsonServerMessage) (message.ServerMessage, error) {
	typ, err := message.ParseServerMessageType(w.MessageType)
	if err != nil {
		return message.ServerMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var tuples []tuple.Tuple
	if w.Tuples != nil {
		tuples = make([]tuple.Tuple, len(*w.Tuples))
		for i, fields := range *w.Tuples {
			t, err := tupleFromJSON(fields)
			if err != nil {
				return message.ServerMessage{}, fmt.Errorf("tuple %d: %w", i, err)
			}
			tuples[i] = t
		}
	}
	return message.NewServerMessage(typ, w.Status, w.StatusCode, w.StatusMessage, tuples, w.ClientSession), nil
}
