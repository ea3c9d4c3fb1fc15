// Package frame is the fixed-header message format of the remote lane link.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic     uint32 = 0xC1C7_0001
	Version   uint16 = 1
	HeaderLen        = 24

	FlagResponse uint16 = 0x01
	FlagError    uint16 = 0x02
)

var (
	ErrShortHeader     = errors.New("frame: short header")
	ErrBadMagic        = errors.New("frame: bad magic")
	ErrBadVersion      = errors.New("frame: unsupported version")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Type is the message kind carried by a frame.
type Type uint16

const (
	TypeHello Type = iota + 1
	TypeCommit
	TypeAck
	TypeUpdate
	TypeWords
	TypeError
	TypeBye
)

func (t Type) String() string {
	switch t {
	case TypeHello:
		return "hello"
	case TypeCommit:
		return "commit"
	case TypeAck:
		return "ack"
	case TypeUpdate:
		return "update"
	case TypeWords:
		return "words"
	case TypeError:
		return "error"
	case TypeBye:
		return "bye"
	default:
		return fmt.Sprintf("type(%d)", uint16(t))
	}
}

// Header is the fixed wire header.
//
//	magic(4) version(2) type(2) seq(8) flags(2) reserved(2) payload_len(4)
type Header struct {
	Magic      uint32
	Version    uint16
	Type       Type
	Seq        uint64
	Flags      uint16
	PayloadLen uint32
}

// Frame is one complete link message.
type Frame struct {
	Header  Header
	Payload []byte
}

// New builds a frame of type t for the current version.
func New(t Type, seq uint64, payload []byte) Frame {
	return Frame{
		Header:  Header{Magic: Magic, Version: Version, Type: t, Seq: seq},
		Payload: payload,
	}
}

// Limits constrains frame memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 64 * 1024}
}

func Read(r io.Reader, limits Limits) (Frame, error) {
	var fixed [HeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}
	h := DecodeHeader(fixed)
	if h.Magic != Magic {
		return Frame{}, fmt.Errorf("%w: 0x%08x", ErrBadMagic, h.Magic)
	}
	if h.Version != Version {
		return Frame{}, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}
	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

// Write sends f as one buffer so a frame is never interleaved with another.
func Write(w io.Writer, f Frame, limits Limits) error {
	if uint64(len(f.Payload)) > uint64(limits.MaxPayloadBytes) {
		return ErrPayloadTooLarge
	}
	h := f.Header
	h.PayloadLen = uint32(len(f.Payload))
	buf := make([]byte, 0, HeaderLen+len(f.Payload))
	buf = append(buf, EncodeHeader(h)...)
	buf = append(buf, f.Payload...)
	_, err := w.Write(buf)
	return err
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint64(buf[8:16], h.Seq)
	binary.BigEndian.PutUint16(buf[16:18], h.Flags)
	binary.BigEndian.PutUint32(buf[20:24], h.PayloadLen)
	return buf
}

func DecodeHeader(b [HeaderLen]byte) Header {
	return Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		Type:       Type(binary.BigEndian.Uint16(b[6:8])),
		Seq:        binary.BigEndian.Uint64(b[8:16]),
		Flags:      binary.BigEndian.Uint16(b[16:18]),
		PayloadLen: binary.BigEndian.Uint32(b[20:24]),
	}
}
