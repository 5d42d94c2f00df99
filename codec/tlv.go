package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// TLV record layout used by BinaryCodec:
//
//	0      2    3          7
//	┌──────┬────┬──────────┬──────────────┐
//	│  id  │type│  length  │ value ...    │
//	│uint16│ u8 │  uint32  │ length bytes │
//	└──────┴────┴──────────┴──────────────┘
const tlvHeaderLen = 7

var (
	errShortTLVHeader = errors.New("codec: short tlv header")
	errShortTLVValue  = errors.New("codec: short tlv value")
)

// Record types for envelope fields.
const (
	tlvU8      uint8 = 1
	tlvBool    uint8 = 5
	tlvString  uint8 = 6
	tlvRecords uint8 = 8 // value is itself a TLV payload
)

// Tuple field records carry the field kind in the type byte: actualTag|kind for values,
// formalTag|kind for template wildcards.
const (
	actualTag uint8 = 0x10
	formalTag uint8 = 0x20
	kindMask  uint8 = 0x0f
)

type tlvField struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func appendTLV(dst []byte, f tlvField) ([]byte, error) {
	if uint64(len(f.Value)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: field %d value too large", ErrUnsupportedType, f.ID)
	}
	var head [tlvHeaderLen]byte
	binary.BigEndian.PutUint16(head[0:2], f.ID)
	head[2] = f.Type
	binary.BigEndian.PutUint32(head[3:7], uint32(len(f.Value)))
	dst = append(dst, head[:]...)
	return append(dst, f.Value...), nil
}

func encodeTLV(fields []tlvField) ([]byte, error) {
	out := make([]byte, 0, 64)
	var err error
	for _, f := range fields {
		if out, err = appendTLV(out, f); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeTLV(payload []byte) ([]tlvField, error) {
	fields := make([]tlvField, 0)
	i := 0
	for i < len(payload) {
		if len(payload)-i < tlvHeaderLen {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, errShortTLVHeader)
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := binary.BigEndian.Uint32(payload[i+3 : i+7])
		i += tlvHeaderLen
		if uint64(len(payload)-i) < uint64(l) {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, errShortTLVValue)
		}
		val := make([]byte, l)
		copy(val, payload[i:i+int(l)])
		i += int(l)
		fields = append(fields, tlvField{ID: id, Type: typeID, Value: val})
	}
	return fields, nil
}

func getTLV(fields []tlvField, id uint16) (tlvField, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return tlvField{}, false
}

func requireTLV(fields []tlvField, id uint16, typ uint8) (tlvField, error) {
	f, ok := getTLV(fields, id)
	if !ok {
		return tlvField{}, fmt.Errorf("%w: missing field %d", ErrMalformed, id)
	}
	if f.Type != typ {
		return tlvField{}, fmt.Errorf("%w: field %d type mismatch: got %d want %d", ErrMalformed, id, f.Type, typ)
	}
	return f, nil
}

func tlvBoolValue(f tlvField) (bool, error) {
	if len(f.Value) != 1 || f.Value[0] > 1 {
		return false, fmt.Errorf("%w: invalid bool in field %d", ErrMalformed, f.ID)
	}
	return f.Value[0] == 1, nil
}

func putBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func putU64(v uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}

func u64FromBytes(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: invalid u64 length: %d", ErrMalformed, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
