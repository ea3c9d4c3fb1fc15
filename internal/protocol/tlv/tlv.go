// Package tlv encodes the typed fields carried in link frame payloads.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/cictl/internal/protocol/wire"
)

// HeaderLen is id(2) type(1) len(2).
const HeaderLen = 5

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrFieldType        = errors.New("tlv: field type mismatch")
	ErrMissingField     = errors.New("tlv: missing field")
)

const (
	TypeU8     uint8 = 1
	TypeU32    uint8 = 3
	TypeString uint8 = 6
	// TypeVector holds one big-endian 64-bit word per lane.
	TypeVector uint8 = 8
)

// Field is one encoded field.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func U8(id uint16, v uint8) Field {
	return Field{ID: id, Type: TypeU8, Value: []byte{v}}
}

func U32(id uint16, v uint32) Field {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return Field{ID: id, Type: TypeU32, Value: b}
}

func String(id uint16, s string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(s)}
}

func Vector(id uint16, v wire.Vector) Field {
	b := make([]byte, 8*wire.MaxLanes)
	for lane, w := range v {
		binary.BigEndian.PutUint64(b[8*lane:], uint64(w))
	}
	return Field{ID: id, Type: TypeVector, Value: b}
}

func EncodeField(f Field) []byte {
	buf := make([]byte, HeaderLen+len(f.Value))
	binary.BigEndian.PutUint16(buf[0:2], f.ID)
	buf[2] = f.Type
	binary.BigEndian.PutUint16(buf[3:5], uint16(len(f.Value)))
	copy(buf[HeaderLen:], f.Value)
	return buf
}

func EncodeFields(fields []Field) []byte {
	out := make([]byte, 0, 64)
	for _, f := range fields {
		out = append(out, EncodeField(f)...)
	}
	return out
}

// DecodeFields splits payload into fields, keeping unknown ids.
func DecodeFields(payload []byte) ([]Field, error) {
	fields := make([]Field, 0, 4)
	for i := 0; i < len(payload); {
		if len(payload)-i < HeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := int(binary.BigEndian.Uint16(payload[i+3 : i+5]))
		i += HeaderLen
		if len(payload)-i < l {
			return nil, ErrShortFieldValue
		}
		val := make([]byte, l)
		copy(val, payload[i:i+l])
		i += l
		fields = append(fields, Field{ID: id, Type: typeID, Value: val})
	}
	return fields, nil
}

// Fields indexes decoded fields by id. Later duplicates win.
type Fields map[uint16]Field

func Index(fields []Field) Fields {
	out := make(Fields, len(fields))
	for _, f := range fields {
		out[f.ID] = f
	}
	return out
}

func (fs Fields) get(id uint16, typ uint8, size int) ([]byte, error) {
	f, ok := fs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrMissingField, id)
	}
	if f.Type != typ {
		return nil, fmt.Errorf("%w: field %d got %d want %d", ErrFieldType, id, f.Type, typ)
	}
	if size >= 0 && len(f.Value) != size {
		return nil, fmt.Errorf("%w: field %d has %d bytes want %d", ErrShortFieldValue, id, len(f.Value), size)
	}
	return f.Value, nil
}

func (fs Fields) U8(id uint16) (uint8, error) {
	b, err := fs.get(id, TypeU8, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (fs Fields) U32(id uint16) (uint32, error) {
	b, err := fs.get(id, TypeU32, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (fs Fields) String(id uint16) (string, error) {
	b, err := fs.get(id, TypeString, -1)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (fs Fields) Vector(id uint16) (wire.Vector, error) {
	var v wire.Vector
	b, err := fs.get(id, TypeVector, 8*wire.MaxLanes)
	if err != nil {
		return v, err
	}
	for lane := range v {
		v[lane] = wire.Word(binary.BigEndian.Uint64(b[8*lane:]))
	}
	return v, nil
}
