package wire

import (
	"fmt"
	"strings"
)

// Rank topology limits.
const (
	MaxLanes        = 8
	MaxUnitsPerLane = 8
	MaxGroups       = 8
)

// Word is one 64-bit lane word, command or result.
type Word uint64

const (
	// Empty marks an idle lane in a command vector.
	Empty Word = 0
	// Nop is what a lane with nothing to answer shows in its echo byte.
	Nop Word = 0xFF00000000000000

	EchoMask        Word = 0xFF00000000000000
	FreshnessMask   Word = 0x00FF000000000000
	TemperatureMask Word = 0x0000FF0000000000
	ValidMask       Word = 0x000000FF00000000
	PayloadMask     Word = 0x00000000FFFFFFFF
	AckMask         Word = 0x00000000000000FF

	ValidSentinel uint8 = 0xFF
	// Ready is the validity byte of a ready result in position.
	Ready Word = Word(ValidSentinel) << validShift
)

const (
	echoShift        = 56
	freshnessShift   = 48
	temperatureShift = 40
	validShift       = 32
)

func (w Word) Echo() uint8        { return uint8(w >> echoShift) }
func (w Word) Freshness() uint8   { return uint8(w >> freshnessShift) }
func (w Word) Temperature() uint8 { return uint8(w >> temperatureShift) }
func (w Word) Valid() uint8       { return uint8(w >> validShift) }
func (w Word) Payload() uint32    { return uint32(w) }
func (w Word) Byte() uint8        { return uint8(w) }

// Consumed reports whether the echo byte is clear and the sentinel is set.
func (w Word) Consumed() bool {
	return w&(EchoMask|ValidMask) == Ready
}

// HasZeroByte reports whether any byte of w is 0x00.
func (w Word) HasZeroByte() bool {
	for i := 0; i < 8; i++ {
		if uint8(w>>(8*i)) == 0 {
			return true
		}
	}
	return false
}

// Result assembles a ready lane response word.
func Result(freshness, temperature uint8, payload uint32) Word {
	return Word(freshness)<<freshnessShift |
		Word(temperature)<<temperatureShift |
		Ready |
		Word(payload)
}

// WithFreshness returns w with its freshness byte replaced.
func (w Word) WithFreshness(b uint8) Word {
	return w&^FreshnessMask | Word(b)<<freshnessShift
}

// WithEcho returns w with its echo byte replaced.
func (w Word) WithEcho(b uint8) Word {
	return w&^EchoMask | Word(b)<<echoShift
}

// Vector carries one word per lane.
type Vector [MaxLanes]Word

// Fill returns a vector holding w on every lane of mask and Empty elsewhere.
func Fill(mask Mask, w Word) Vector {
	var v Vector
	for lane := 0; lane < MaxLanes; lane++ {
		if mask.Has(lane) {
			v[lane] = w
		}
	}
	return v
}

// Mask returns the lanes below nrLanes whose word is not Empty.
func (v Vector) Mask(nrLanes int) Mask {
	var m Mask
	for lane := 0; lane < nrLanes && lane < MaxLanes; lane++ {
		if v[lane] != Empty {
			m |= LaneBit(lane)
		}
	}
	return m
}

// Only returns v with every lane outside mask set to Empty.
func (v Vector) Only(mask Mask) Vector {
	var out Vector
	for lane := 0; lane < MaxLanes; lane++ {
		if mask.Has(lane) {
			out[lane] = v[lane]
		}
	}
	return out
}

func (v Vector) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for lane, w := range v {
		if lane > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%016x", uint64(w))
	}
	b.WriteByte(']')
	return b.String()
}
