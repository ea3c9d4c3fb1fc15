package rank

import (
	logs "github.com/danmuck/smplog"

	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
)

// SoftReset resets the lanes of mask to clock division div. Lanes give no
// valid answer while resetting, so the bus is read a fixed number of times
// without any completion test.
func (tx *Tx) SoftReset(mask wire.Mask, div opcode.ClockDivision, cycleAccurate bool) error {
	if err := tx.checkMask(mask); err != nil {
		return err
	}
	if mask == 0 {
		return nil
	}
	r := tx.r
	r.color ^= mask
	if err := tx.commit(wire.Fill(mask, opcode.SoftReset(div, cycleAccurate))); err != nil {
		return err
	}
	iterations := r.cfg.ResetWaitDuration * int(r.cfg.ClockDivision.Factor()) / 2
	var scratch wire.Vector
	for i := 0; i < iterations; i++ {
		if err := tx.update(&scratch); err != nil {
			return err
		}
	}

	r.color &^= mask
	r.faultDecode &^= mask
	r.faultCollide &^= mask
	for lane := 0; lane < r.cfg.Lanes; lane++ {
		lc := &r.lanes[lane]
		lc.target = Target{}
		lc.structure = wire.Empty
		lc.groups = [wire.MaxGroups]uint8{0: lc.enabled}
	}
	logs.Debugf("rank.Tx.SoftReset done rank_id=%q lanes=%s div=%s cycle_accurate=%t reads=%d",
		r.id, mask, div, cycleAccurate, iterations)
	return nil
}
