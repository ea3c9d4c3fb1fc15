package rank

import (
	logs "github.com/danmuck/smplog"

	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
)

const nopEcho uint8 = 0xFF

// SyncColor recovers the host color of the lanes in mask from what they
// currently show, for use after the host lost track of them. Lanes that
// have never answered are sent an identity command so they produce a
// result to read the color from.
func (tx *Tx) SyncColor(mask wire.Mask) error {
	if err := tx.checkMask(mask); err != nil {
		return err
	}
	if mask == 0 {
		return nil
	}
	r := tx.r
	var words wire.Vector
	var nop wire.Mask
	ready := func() (wire.Mask, bool) {
		nop = 0
		var pending wire.Mask
		for _, lane := range mask.Lanes() {
			w := words[lane]
			switch {
			case w.Echo() == nopEcho:
				nop |= wire.LaneBit(lane)
			case w.Echo() != 0 || w.Valid() != wire.ValidSentinel:
				pending |= wire.LaneBit(lane)
			}
		}
		return pending, pending == 0
	}
	if err := tx.pollColor(&words, ready); err != nil {
		return err
	}
	if err := tx.update(&words); err != nil {
		return err
	}
	ready()

	if nop != 0 {
		if err := tx.commit(wire.Fill(nop, opcode.Identity())); err != nil {
			return err
		}
		answered := func() (wire.Mask, bool) {
			var pending wire.Mask
			for _, lane := range mask.Lanes() {
				if words[lane].Echo() != 0 {
					pending |= wire.LaneBit(lane)
				}
			}
			return pending, pending == 0
		}
		if err := tx.pollColor(&words, answered); err != nil {
			return err
		}
	}

	for _, lane := range mask.Lanes() {
		bit := wire.LaneBit(lane)
		if wire.FreshnessBand(words[lane].Freshness()) == wire.BandLow {
			r.color |= bit
		} else {
			r.color &^= bit
		}
	}
	logs.Debugf("rank.Tx.SyncColor done rank_id=%q lanes=%s nop=%s color=%s", r.id, mask, nop, r.color&mask)
	return nil
}

func (tx *Tx) pollColor(words *wire.Vector, done func() (wire.Mask, bool)) error {
	budget := tx.r.cfg.ColorRetryBudget
	for attempt := 1; attempt <= budget; attempt++ {
		if err := tx.update(words); err != nil {
			return err
		}
		pending, ok := done()
		if ok {
			return nil
		}
		if attempt == budget {
			return tx.timeout("sync_color", pending, attempt)
		}
	}
	return nil
}
