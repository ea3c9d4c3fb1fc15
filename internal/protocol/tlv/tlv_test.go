package tlv

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/cictl/internal/protocol/wire"
	"github.com/danmuck/cictl/internal/testutil/testlog"
)

func TestDecodeKeepsUnknownFields(t *testing.T) {
	testlog.Start(t)
	in := []Field{
		String(1, "session-1"),
		{ID: 9999, Type: 0x7F, Value: []byte{0xAA, 0xBB}},
	}
	out, err := DecodeFields(EncodeFields(in))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != 0x7F || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
}

func TestTypedAccessors(t *testing.T) {
	testlog.Start(t)
	v := wire.Vector{0: wire.Nop, 7: 0x0000FFFF00C0FFEE}
	fields, err := DecodeFields(EncodeFields([]Field{U8(1, 8), U32(2, 0xDEADBEEF), Vector(3, v)}))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	fs := Index(fields)
	if n, err := fs.U8(1); err != nil || n != 8 {
		t.Fatalf("U8 = %d, %v", n, err)
	}
	if n, err := fs.U32(2); err != nil || n != 0xDEADBEEF {
		t.Fatalf("U32 = 0x%x, %v", n, err)
	}
	if got, err := fs.Vector(3); err != nil || got != v {
		t.Fatalf("Vector = %s, %v", got, err)
	}
	if _, err := fs.String(1); !errors.Is(err, ErrFieldType) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
	if _, err := fs.U8(4); !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected missing field, got %v", err)
	}
}

func TestDecodeFieldsMalformedHeader(t *testing.T) {
	testlog.Start(t)
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLength(t *testing.T) {
	testlog.Start(t)
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}
