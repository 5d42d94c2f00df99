package codec

import (
	"encoding/json"
	"fmt"

	"tuplespace/message"
	"tuplespace/tuple"
)

// JSONCodec is the canonical text encoding.
// Pros: human-readable, cross-language, easy to debug.
// Cons: slower due to reflection + string parsing, larger payload (field names repeated).
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	switch m := v.(type) {
	case message.ClientMessage:
		return c.encodeClient(m)
	case *message.ClientMessage:
		return c.encodeClient(*m)
	case message.ServerMessage:
		return c.encodeServer(m)
	case *message.ServerMessage:
		return c.encodeServer(*m)
	case tuple.Tuple:
		return c.encodeTuple(m)
	case *tuple.Tuple:
		return c.encodeTuple(*m)
	case tuple.Template:
		return c.encodeTemplate(m)
	case *tuple.Template:
		return c.encodeTemplate(*m)
	default:
		return nil, fmt.Errorf("%w: JSONCodec cannot encode %T", ErrUnsupportedType, v)
	}
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	switch out := v.(type) {
	case *message.ClientMessage:
		var w jsonClientMessage
		if err := json.Unmarshal(data, &w); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		m, err := clientFromJSON(w)
		if err != nil {
			return err
		}
		*out = m
	case *message.ServerMessage:
		var w jsonServerMessage
		if err := json.Unmarshal(data, &w); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		m, err := serverFromJSON(w)
		if err != nil {
			return err
		}
		*out = m
	case *tuple.Tuple:
		var fields []jsonValue
		if err := json.Unmarshal(data, &fields); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		t, err := tupleFromJSON(fields)
		if err != nil {
			return err
		}
		*out = t
	case *tuple.Template:
		var fields []jsonValue
		if err := json.Unmarshal(data, &fields); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		tmpl, err := templateFromJSON(fields)
		if err != nil {
			return err
		}
		*out = tmpl
	default:
		return fmt.Errorf("%w: JSONCodec cannot decode into %T", ErrUnsupportedType, v)
	}
	return nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}

func (c *JSONCodec) encodeClient(m message.ClientMessage) ([]byte, error) {
	w, err := clientToJSON(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (c *JSONCodec) encodeServer(m message.ServerMessage) ([]byte, error) {
	w, err := serverToJSON(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (c *JSONCodec) encodeTuple(t tuple.Tuple) ([]byte, error) {
	fields, err := tupleToJSON(t)
	if err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

func (c *JSONCodec) encodeTemplate(tmpl tuple.Template) ([]byte, error) {
	fields, err := templateToJSON(tmpl)
	if err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}
