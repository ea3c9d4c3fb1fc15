package remote

import (
	"errors"
	"fmt"

	"github.com/danmuck/cictl/internal/protocol/frame"
	"github.com/danmuck/cictl/internal/protocol/tlv"
	"github.com/danmuck/cictl/internal/protocol/wire"
	"github.com/danmuck/cictl/internal/transport"
)

// Field ids of link payloads.
const (
	fieldSession uint16 = 1
	fieldLanes   uint16 = 2
	fieldUnits   uint16 = 3
	fieldWords   uint16 = 4
	fieldError   uint16 = 5
)

var (
	ErrProtocol = errors.New("remote: protocol error")
	ErrTopology = errors.New("remote: topology mismatch")
	// ErrRemote wraps errors reported by the serving side.
	ErrRemote = errors.New("remote: peer error")
)

func helloPayload(session string, topo transport.Topology) []byte {
	return tlv.EncodeFields([]tlv.Field{
		tlv.String(fieldSession, session),
		tlv.U8(fieldLanes, uint8(topo.Lanes)),
		tlv.U8(fieldUnits, uint8(topo.UnitsPerLane)),
	})
}

func parseHello(payload []byte) (string, transport.Topology, error) {
	fs, err := fields(payload)
	if err != nil {
		return "", transport.Topology{}, err
	}
	session, err := fs.String(fieldSession)
	if err != nil {
		return "", transport.Topology{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	lanes, err := fs.U8(fieldLanes)
	if err != nil {
		return "", transport.Topology{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	units, err := fs.U8(fieldUnits)
	if err != nil {
		return "", transport.Topology{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return session, transport.Topology{Lanes: int(lanes), UnitsPerLane: int(units)}, nil
}

func wordsPayload(v wire.Vector) []byte {
	return tlv.EncodeFields([]tlv.Field{tlv.Vector(fieldWords, v)})
}

func parseWords(payload []byte) (wire.Vector, error) {
	fs, err := fields(payload)
	if err != nil {
		return wire.Vector{}, err
	}
	v, err := fs.Vector(fieldWords)
	if err != nil {
		return wire.Vector{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return v, nil
}

func errorPayload(err error) []byte {
	return tlv.EncodeFields([]tlv.Field{tlv.String(fieldError, err.Error())})
}

func parseError(payload []byte) error {
	fs, err := fields(payload)
	if err != nil {
		return err
	}
	msg, err := fs.String(fieldError)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return fmt.Errorf("%w: %s", ErrRemote, msg)
}

func fields(payload []byte) (tlv.Fields, error) {
	list, err := tlv.DecodeFields(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return tlv.Index(list), nil
}

// expect checks that f answers request seq with type want, turning error
// frames into errors.
func expect(f frame.Frame, seq uint64, want frame.Type) error {
	if f.Header.Seq != seq {
		return fmt.Errorf("%w: answer seq %d for request %d", ErrProtocol, f.Header.Seq, seq)
	}
	if f.Header.Type == frame.TypeError || f.Header.Flags&frame.FlagError != 0 {
		return parseError(f.Payload)
	}
	if f.Header.Type != want {
		return fmt.Errorf("%w: got %s want %s", ErrProtocol, f.Header.Type, want)
	}
	return nil
}
