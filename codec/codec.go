// Package codec turns envelopes into bytes and back.
//
// Tuple and Template fields are dynamically typed, so both codecs write a type tag next
// to every field: the int 3 and the float 3.0 would otherwise be indistinguishable on the
// wire. The law every codec keeps is
//
//	Decode(Encode(m)) equals m
//
// for every ClientMessage, ServerMessage, Tuple and Template.
package codec

import "errors"

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

var (
	ErrUnsupportedType = errors.New("codec: unsupported type")
	ErrMalformed       = errors.New("codec: malformed data")
)

// Codec encodes message.ClientMessage, message.ServerMessage, tuple.Tuple and
// tuple.Template values (or pointers to them) and decodes into pointers to those types.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=Binary
}

// GetCodec returns the codec for codecType. Unknown types fall back to binary, the same
// way the frame header only ever carries the two known values.
func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}

	return &BinaryCodec{}
}

// ParseCodecType maps a configuration name ("json", "binary") to a CodecType.
func ParseCodecType(name string) (CodecType, error) {
	switch name {
	case "json", "":
		return CodecTypeJSON, nil
	case "binary":
		return CodecTypeBinary, nil
	default:
		return 0, errors.New("codec: unknown codec " + name)
	}
}

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}
