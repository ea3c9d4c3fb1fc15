// Package bitorder derives and applies the bit shuffling between host and
// lane data lines.
//
// A lane answers the bit order command with a pattern whose nibbles reveal
// where each data line landed. Compute turns that pattern into the two
// per-nibble permutations (host to lane and back) and the nibble swap flag.
package bitorder

const (
	nibblesPerByte = 2
	bitsPerNibble  = 4
)

// identityCode maps every nibble bit onto itself.
const identityCode uint8 = 0b11_10_01_00

// IdentityPattern is the bit order answer of a lane wired straight through.
const IdentityPattern uint32 = 0x00884422

var indexInNibble = [16]uint8{
	0b0010: 1,
	0b0100: 2,
	0b1000: 3,
}

// Config is the shuffling applied to 32-bit values crossing the lanes. Each
// 16-bit direction holds one 8-bit permutation code per nibble: bits 2t+1..2t
// give the destination of nibble bit t.
type Config struct {
	CPU2DPU    uint16
	DPU2CPU    uint16
	NibbleSwap uint8
	Stutter    uint8
}

// Identity returns the configuration of straight wiring.
func Identity() Config {
	code := uint16(identityCode)
	return Config{CPU2DPU: code<<8 | code, DPU2CPU: code<<8 | code}
}

// IsIdentity reports whether c leaves values unchanged.
func (c Config) IsIdentity() bool {
	id := Identity()
	return c.NibbleSwap == 0 && c.CPU2DPU == id.CPU2DPU && c.DPU2CPU == id.DPU2CPU
}

// Compute derives the configuration from a bit order answer.
func Compute(pattern uint32) Config {
	var swap uint8
	if (pattern>>28)&0xF != 0 {
		swap = 0xFF
	}

	m := syndrome(pattern, 4, 12, 20)
	l := syndrome(pattern, 0, 8, 16)

	var mm, ll uint8
	if swap != 0 {
		mm, ll = reciprocal(l), reciprocal(m)
	} else {
		mm, ll = reciprocal(m), reciprocal(l)
	}

	var hi, lo, backHi, backLo uint8
	if swap != 0 {
		hi, lo = reciprocal(ll), reciprocal(mm)
		backHi, backLo = reciprocal(l), reciprocal(m)
	} else {
		hi, lo = reciprocal(mm), reciprocal(ll)
		backHi, backLo = reciprocal(m), reciprocal(l)
	}

	return Config{
		NibbleSwap: swap,
		CPU2DPU:    uint16(lo) | uint16(hi)<<8,
		DPU2CPU:    uint16(backLo) | uint16(backHi)<<8,
	}
}

// syndrome builds the permutation code from the nibbles found at the three
// shifts; the bit absent from them is implicitly bit 0.
func syndrome(pattern uint32, s1, s2, s3 uint) uint8 {
	return 0b01<<(indexInNibble[(pattern>>s1)&0xF]<<1) |
		0b10<<(indexInNibble[(pattern>>s2)&0xF]<<1) |
		0b11<<(indexInNibble[(pattern>>s3)&0xF]<<1)
}

func reciprocal(code uint8) uint8 {
	var out uint8
	for i := uint8(0); i < bitsPerNibble; i++ {
		index := code & 0b11
		out |= i << (index << 1)
		code >>= 2
	}
	return out
}

// HostToLane applies the host to lane shuffling.
func (c Config) HostToLane(v uint32) uint32 {
	return transform(c.CPU2DPU, c.NibbleSwap, v)
}

// LaneToHost applies the lane to host shuffling.
func (c Config) LaneToHost(v uint32) uint32 {
	return transform(c.DPU2CPU, c.NibbleSwap, v)
}

func transform(codes uint16, swap uint8, v uint32) uint32 {
	var out uint32
	for byteID := uint(0); byteID < 4; byteID++ {
		b := uint8(v >> (byteID << 3))
		var transformed uint8
		for nibbleID := uint(0); nibbleID < nibblesPerByte; nibbleID++ {
			nibble := (b >> (nibbleID << 2)) & 0xF
			code := uint8(codes >> (nibbleID << 3))
			var moved uint8
			for t := uint(0); t < bitsPerNibble; t++ {
				dst := (code >> (t << 1)) & 0b11
				moved |= ((nibble >> t) & 1) << dst
			}
			pos := nibbleID
			if swap != 0 {
				pos = (nibbleID + 1) % nibblesPerByte
			}
			transformed |= moved << (pos << 2)
		}
		out |= uint32(transformed) << (byteID << 3)
	}
	return out
}
