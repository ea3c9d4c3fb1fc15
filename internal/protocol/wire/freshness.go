package wire

import (
	"math/bits"
	"strings"
)

// Band places a freshness byte by its population count.
type Band int

const (
	// BandUnstable holds counts between the two settled bands.
	BandUnstable Band = iota
	// BandLow holds at most 3 set bits.
	BandLow
	// BandHigh holds at least 5 set bits.
	BandHigh
)

func (b Band) String() string {
	switch b {
	case BandLow:
		return "low"
	case BandHigh:
		return "high"
	default:
		return "unstable"
	}
}

// FreshnessBand classifies a freshness byte.
func FreshnessBand(b uint8) Band {
	n := bits.OnesCount8(b)
	switch {
	case n <= 3:
		return BandLow
	case n >= 5:
		return BandHigh
	default:
		return BandUnstable
	}
}

// ExpectedBand is the band a lane answers with when its color was set
// before the exchange inverted it.
func ExpectedBand(colorBefore bool) Band {
	if colorBefore {
		return BandHigh
	}
	return BandLow
}

// Settled returns the freshness byte of a glitch-free answer in band.
func Settled(band Band) uint8 {
	if band == BandHigh {
		return 0xFF
	}
	return 0x00
}

// Distance counts the bits of b that differ from the settled pattern of band.
func Distance(b uint8, band Band) int {
	return bits.OnesCount8(b ^ Settled(band))
}

// Fault is the set of glitch kinds latched on a lane.
type Fault uint8

const (
	FaultNone      Fault = 0
	FaultDecode    Fault = 1 << 0
	FaultCollision Fault = 1 << 1
)

func (f Fault) Decode() bool    { return f&FaultDecode != 0 }
func (f Fault) Collision() bool { return f&FaultCollision != 0 }

func (f Fault) String() string {
	if f == FaultNone {
		return "none"
	}
	parts := make([]string, 0, 2)
	if f.Decode() {
		parts = append(parts, "decode")
	}
	if f.Collision() {
		parts = append(parts, "collision")
	}
	return strings.Join(parts, "+")
}

// Classify maps a freshness bit-difference count onto the fault it
// reports. The mapping is a hardware contract. Counts above 3 are
// unstable and ok is false.
func Classify(distance int) (fault Fault, ok bool) {
	switch distance {
	case 0:
		return FaultNone, true
	case 1:
		return FaultDecode, true
	case 2:
		return FaultCollision, true
	case 3:
		return FaultDecode | FaultCollision, true
	default:
		return FaultNone, false
	}
}
