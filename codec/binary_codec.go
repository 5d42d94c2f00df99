package codec

import (
	"fmt"
	"math"

	"tuplespace/message"
	"tuplespace/tuple"
)

// Envelope field ids. Client and server share the ids of the fields they have in common.
const (
	fieldMessageType   uint16 = 1
	fieldTarget        uint16 = 2
	fieldTuple         uint16 = 3
	fieldTemplate      uint16 = 4
	fieldBlocking      uint16 = 5
	fieldAll           uint16 = 6
	fieldClientSession uint16 = 7

	fieldStatus        uint16 = 10
	fieldStatusCode    uint16 = 11
	fieldStatusMessage uint16 = 12
	fieldTuples        uint16 = 13
)

// BinaryCodec encodes envelopes as TLV records. Tuples and templates are nested TLV
// payloads with one record per field, the record id being the field position.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	switch m := v.(type) {
	case message.ClientMessage:
		return encodeClientTLV(m)
	case *message.ClientMessage:
		return encodeClientTLV(*m)
	case message.ServerMessage:
		return encodeServerTLV(m)
	case *message.ServerMessage:
		return encodeServerTLV(*m)
	case tuple.Tuple:
		return encodeTupleTLV(m)
	case *tuple.Tuple:
		return encodeTupleTLV(*m)
	case tuple.Template:
		return encodeTemplateTLV(m)
	case *tuple.Template:
		return encodeTemplateTLV(*m)
	default:
		return nil, fmt.Errorf("%w: BinaryCodec cannot encode %T", ErrUnsupportedType, v)
	}
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	switch out := v.(type) {
	case *message.ClientMessage:
		m, err := decodeClientTLV(data)
		if err != nil {
			return err
		}
		*out = m
	case *message.ServerMessage:
		m, err := decodeServerTLV(data)
		if err != nil {
			return err
		}
		*out = m
	case *tuple.Tuple:
		t, err := decodeTupleTLV(data)
		if err != nil {
			return err
		}
		*out = t
	case *tuple.Template:
		tmpl, err := decodeTemplateTLV(data)
		if err != nil {
			return err
		}
		*out = tmpl
	default:
		return fmt.Errorf("%w: BinaryCodec cannot decode into %T", ErrUnsupportedType, v)
	}
	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

func encodeClientTLV(m message.ClientMessage) ([]byte, error) {
	fields := []tlvField{
		{ID: fieldMessageType, Type: tlvU8, Value: []byte{byte(m.MessageType())}},
		{ID: fieldTarget, Type: tlvString, Value: []byte(m.Target())},
		{ID: fieldBlocking, Type: tlvBool, Value: putBool(m.Blocking())},
		{ID: fieldAll, Type: tlvBool, Value: putBool(m.All())},
		{ID: fieldClientSession, Type: tlvString, Value: []byte(m.ClientSession())},
	}
	if t, ok := m.Tuple(); ok {
		payload, err := encodeTupleTLV(t)
		if err != nil {
			return nil, err
		}
		fields = append(fields, tlvField{ID: fieldTuple, Type: tlvRecords, Value: payload})
	}
	if tmpl, ok := m.Template(); ok {
		payload, err := encodeTemplateTLV(tmpl)
		if err != nil {
			return nil, err
		}
		fields = append(fields, tlvField{ID: fieldTemplate, Type: tlvRecords, Value: payload})
	}
	return encodeTLV(fields)
}

func decodeClientTLV(data []byte) (message.ClientMessage, error) {
	fields, err := decodeTLV(data)
	if err != nil {
		return message.ClientMessage{}, err
	}
	typ, err := requireTLV(fields, fieldMessageType, tlvU8)
	if err != nil {
		return message.ClientMessage{}, err
	}
	if len(typ.Value) != 1 {
		return message.ClientMessage{}, fmt.Errorf("%w: invalid message type", ErrMalformed)
	}
	messageType := message.ClientMessageType(typ.Value[0])
	if _, err := message.ParseClientMessageType(messageType.String()); err != nil {
		return message.ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	target, err := requireTLV(fields, fieldTarget, tlvString)
	if err != nil {
		return message.ClientMessage{}, err
	}
	session, err := requireTLV(fields, fieldClientSession, tlvString)
	if err != nil {
		return message.ClientMessage{}, err
	}
	blocking, err := requiredBool(fields, fieldBlocking)
	if err != nil {
		return message.ClientMessage{}, err
	}
	all, err := requiredBool(fields, fieldAll)
	if err != nil {
		return message.ClientMessage{}, err
	}

	var tp *tuple.Tuple
	if f, ok := getTLV(fields, fieldTuple); ok {
		t, err := decodeTupleTLV(f.Value)
		if err != nil {
			return message.ClientMessage{}, fmt.Errorf("tuple: %w", err)
		}
		tp = &t
	}
	var tmpl *tuple.Template
	if f, ok := getTLV(fields, fieldTemplate); ok {
		t, err := decodeTemplateTLV(f.Value)
		if err != nil {
			return message.ClientMessage{}, fmt.Errorf("template: %w", err)
		}
		tmpl = &t
	}
	return message.NewClientMessage(messageType, string(target.Value), tp, tmpl, blocking, all, string(session.Value)), nil
}

func encodeServerTLV(m message.ServerMessage) ([]byte, error) {
	fields := []tlvField{
		{ID: fieldMessageType, Type: tlvU8, Value: []byte{byte(m.MessageType())}},
		{ID: fieldStatus, Type: tlvBool, Value: putBool(m.Status())},
		{ID: fieldStatusCode, Type: tlvString, Value: []byte(m.StatusCode())},
		{ID: fieldStatusMessage, Type: tlvString, Value: []byte(m.StatusMessage())},
	}
	if tuples, ok := m.Tuples(); ok {
		records := make([]tlvField, len(tuples))
		for i, t := range tuples {
			payload, err := encodeTupleTLV(t)
			if err != nil {
				return nil, fmt.Errorf("tuple %d: %w", i, err)
			}
			records[i] = tlvField{ID: uint16(i), Type: tlvRecords, Value: payload}
		}
		if len(records) > math.MaxUint16+1 {
			return nil, fmt.Errorf("%w: too many result tuples", ErrUnsupportedType)
		}
		list, err := encodeTLV(records)
		if err != nil {
			return nil, err
		}
		fields = append(fields, tlvField{ID: fieldTuples, Type: tlvRecords, Value: list})
	}
	if session, ok := m.ClientSession(); ok {
		fields = append(fields, tlvField{ID: fieldClientSession, Type: tlvString, Value: []byte(session)})
	}
	return encodeTLV(fields)
}

func decodeServerTLV(data []byte) (message.ServerMessage, error) {
	fields, err := decodeTLV(data)
	if err != nil {
		return message.ServerMessage{}, err
	}
	typ, err := requireTLV(fields, fieldMessageType, tlvU8)
	if err != nil {
		return message.ServerMessage{}, err
	}
	if len(typ.Value) != 1 {
		return message.ServerMessage{}, fmt.Errorf("%w: invalid message type", ErrMalformed)
	}
	messageType := message.ServerMessageType(typ.Value[0])
	if _, err := message.ParseServerMessageType(messageType.String()); err != nil {
		return message.ServerMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	status, err := requiredBool(fields, fieldStatus)
	if err != nil {
		return message.ServerMessage{}, err
	}
	code, err := requireTLV(fields, fieldStatusCode, tlvString)
	if err != nil {
		return message.ServerMessage{}, err
	}
	text, err := requireTLV(fields, fieldStatusMessage, tlvString)
	if err != nil {
		return message.ServerMessage{}, err
	}

	var tuples []tuple.Tuple
	if f, ok := getTLV(fields, fieldTuples); ok {
		records, err := decodeTLV(f.Value)
		if err != nil {
			return message.ServerMessage{}, err
		}
		tuples = make([]tuple.Tuple, len(records))
		for i, r := range records {
			if r.Type != tlvRecords {
				return message.ServerMessage{}, fmt.Errorf("%w: result %d is not a tuple", ErrMalformed, i)
			}
			t, err := decodeTupleTLV(r.Value)
			if err != nil {
				return message.ServerMessage{}, fmt.Errorf("tuple %d: %w", i, err)
			}
			tuples[i] = t
		}
	}
	var session *string
	if f, ok := getTLV(fields, fieldClientSession); ok {
		s := string(f.Value)
		session = &s
	}
	return message.NewServerMessage(messageType, status, string(code.Value), string(text.Value), tuples, session), nil
}

func requiredBool(fields []tlvField, id uint16) (bool, error) {
	f, err := requireTLV(fields, id, tlvBool)
	if err != nil {
		return false, err
	}
	return tlvBoolValue(f)
}

func encodeTupleTLV(t tuple.Tuple) ([]byte, error) {
	if t.Arity() > math.MaxUint16+1 {
		return nil, fmt.Errorf("%w: tuple arity %d", ErrUnsupportedType, t.Arity())
	}
	records := make([]tlvField, t.Arity())
	for i := 0; i < t.Arity(); i++ {
		r, err := valueToTLV(uint16(i), t.Field(i))
		if err != nil {
			return nil, err
		}
		records[i] = r
	}
	return encodeTLV(records)
}

func decodeTupleTLV(data []byte) (tuple.Tuple, error) {
	records, err := decodeTLV(data)
	if err != nil {
		return tuple.Tuple{}, err
	}
	values := make([]tuple.Value, len(records))
	for i, r := range records {
		if r.Type&^kindMask != actualTag {
			return tuple.Tuple{}, fmt.Errorf("%w: field %d is not a value", ErrMalformed, i)
		}
		v, err := valueFromTLV(r)
		if err != nil {
			return tuple.Tuple{}, fmt.Errorf("field %d: %w", i, err)
		}
		values[i] = v
	}
	return tuple.New(values...), nil
}

func encodeTemplateTLV(tmpl tuple.Template) ([]byte, error) {
	if tmpl.Arity() > math.MaxUint16+1 {
		return nil, fmt.Errorf("%w: template arity %d", ErrUnsupportedType, tmpl.Arity())
	}
	records := make([]tlvField, tmpl.Arity())
	for i := 0; i < tmpl.Arity(); i++ {
		p := tmpl.Pattern(i)
		if p.IsFormal() {
			records[i] = tlvField{ID: uint16(i), Type: formalTag | uint8(p.Kind())}
			continue
		}
		r, err := valueToTLV(uint16(i), p.Value())
		if err != nil {
			return nil, err
		}
		records[i] = r
	}
	return encodeTLV(records)
}

func decodeTemplateTLV(data []byte) (tuple.Template, error) {
	records, err := decodeTLV(data)
	if err != nil {
		return tuple.Template{}, err
	}
	patterns := make([]tuple.Pattern, len(records))
	for i, r := range records {
		switch r.Type &^ kindMask {
		case formalTag:
			kind := tuple.Kind(r.Type & kindMask)
			if !kind.Valid() {
				return tuple.Template{}, fmt.Errorf("%w: field %d: unknown kind %d", ErrMalformed, i, kind)
			}
			patterns[i] = tuple.Formal(kind)
		case actualTag:
			v, err := valueFromTLV(r)
			if err != nil {
				return tuple.Template{}, fmt.Errorf("field %d: %w", i, err)
			}
			patterns[i] = tuple.Actual(v)
		default:
			return tuple.Template{}, fmt.Errorf("%w: field %d: unknown record type %d", ErrMalformed, i, r.Type)
		}
	}
	return tuple.NewTemplate(patterns...), nil
}

func valueToTLV(id uint16, v tuple.Value) (tlvField, error) {
	f := tlvField{ID: id, Type: actualTag | uint8(v.Kind())}
	switch v.Kind() {
	case tuple.KindInt:
		x, _ := v.AsInt()
		f.Value = putU64(uint64(x))
	case tuple.KindBool:
		x, _ := v.AsBool()
		f.Value = putBool(x)
	case tuple.KindFloat:
		x, _ := v.AsFloat()
		f.Value = putU64(math.Float64bits(x))
	case tuple.KindString:
		x, _ := v.AsString()
		f.Value = []byte(x)
	case tuple.KindTuple:
		x, _ := v.AsTuple()
		payload, err := encodeTupleTLV(x)
		if err != nil {
			return tlvField{}, err
		}
		f.Value = payload
	default:
		return tlvField{}, fmt.Errorf("%w: field kind %s", ErrUnsupportedType, v.Kind())
	}
	return f, nil
}

func valueFromTLV(f tlvField) (tuple.Value, error) {
	switch tuple.Kind(f.Type & kindMask) {
	case tuple.KindInt:
		x, err := u64FromBytes(f.Value)
		if err != nil {
			return tuple.Value{}, err
		}
		return tuple.Int(int64(x)), nil
	case tuple.KindBool:
		x, err := tlvBoolValue(f)
		if err != nil {
			return tuple.Value{}, err
		}
		return tuple.Bool(x), nil
	case tuple.KindFloat:
		x, err := u64FromBytes(f.Value)
		if err != nil {
			return tuple.Value{}, err
		}
		return tuple.Float(math.Float64frombits(x)), nil
	case tuple.KindString:
		return tuple.String(string(f.Value)), nil
	case tuple.KindTuple:
		t, err := decodeTupleTLV(f.Value)
		if err != nil {
			return tuple.Value{}, err
		}
		return tuple.Nested(t), nil
	default:
		return tuple.Value{}, fmt.Errorf("%w: unknown kind %d", ErrMalformed, f.Type&kindMask)
	}
}
