package wire

import (
	"fmt"
	"math/bits"
)

// Mask names the lanes taking part in one exchange, one bit per lane.
type Mask uint8

// AllLanes selects every lane a rank can have.
const AllLanes Mask = 0xFF

// LaneBit returns the mask holding only lane.
func LaneBit(lane int) Mask {
	return Mask(1) << uint(lane)
}

// FirstLanes returns the mask of lanes 0..n-1.
func FirstLanes(n int) Mask {
	if n >= MaxLanes {
		return AllLanes
	}
	if n <= 0 {
		return 0
	}
	return Mask(1)<<uint(n) - 1
}

func (m Mask) Has(lane int) bool {
	return lane >= 0 && lane < MaxLanes && m&LaneBit(lane) != 0
}

func (m Mask) Count() int {
	return bits.OnesCount8(uint8(m))
}

// First returns the lowest lane in m, or -1 when m is empty.
func (m Mask) First() int {
	if m == 0 {
		return -1
	}
	return bits.TrailingZeros8(uint8(m))
}

// Lanes lists the lanes of m in ascending order.
func (m Mask) Lanes() []int {
	out := make([]int, 0, m.Count())
	for lane := 0; lane < MaxLanes; lane++ {
		if m.Has(lane) {
			out = append(out, lane)
		}
	}
	return out
}

func (m Mask) String() string {
	return fmt.Sprintf("0b%08b", uint8(m))
}

// UnitMask returns the bitmap naming units 0..n-1 of one lane.
func UnitMask(n int) uint8 {
	if n >= MaxUnitsPerLane {
		return 0xFF
	}
	if n <= 0 {
		return 0
	}
	return uint8(1)<<uint(n) - 1
}
