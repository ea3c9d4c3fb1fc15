package rank

import (
	"fmt"
	"math/bits"

	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
)

// ByteOrder runs byte-order discovery on mask and returns the raw answers.
// Byte framing is unknown at this point, so a lane counts as answered as
// soon as its word carries an all-zero byte. No fault is classified.
func (tx *Tx) ByteOrder(mask wire.Mask) (wire.Vector, error) {
	if err := tx.checkMask(mask); err != nil {
		return wire.Vector{}, err
	}
	if mask == 0 {
		return wire.Vector{}, nil
	}
	r := tx.r
	r.color ^= mask
	if err := tx.commit(wire.Fill(mask, opcode.ByteOrder())); err != nil {
		return wire.Vector{}, err
	}
	var words wire.Vector
	// The second wait lets lanes that answered early settle.
	for pass := 0; pass < 2; pass++ {
		if err := tx.waitZeroByte(mask, &words); err != nil {
			return wire.Vector{}, err
		}
	}
	return words.Only(mask), nil
}

func (tx *Tx) waitZeroByte(mask wire.Mask, words *wire.Vector) error {
	for attempt := 1; attempt <= tx.r.cfg.RetryBudget; attempt++ {
		if err := tx.update(words); err != nil {
			return err
		}
		var pending wire.Mask
		for _, lane := range mask.Lanes() {
			if !words[lane].HasZeroByte() {
				pending |= wire.LaneBit(lane)
			}
		}
		if pending == 0 {
			return nil
		}
		if attempt == tx.r.cfg.RetryBudget {
			return tx.timeout("byte_order", pending, attempt)
		}
	}
	return nil
}

// CheckByteOrder verifies that every lane of mask answered discovery with a
// result whose bytes carry the expected bit counts. Bit order inside each
// byte is corrected later by the bit shuffling config.
func CheckByteOrder(words wire.Vector, mask wire.Mask) error {
	for _, lane := range mask.Lanes() {
		for i := 0; i < 8; i++ {
			got := bits.OnesCount8(uint8(words[lane] >> (8 * i)))
			want := bits.OnesCount8(uint8(opcode.ByteOrderResult >> (8 * i)))
			if got != want {
				return fmt.Errorf("%w: lane %d byte %d has %d bits set, want %d (word %016x)",
					ErrByteOrder, lane, i, got, want, uint64(words[lane]))
			}
		}
	}
	return nil
}
