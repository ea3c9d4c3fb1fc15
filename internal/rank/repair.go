package rank

import (
	"fmt"

	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
)

// Safe memory timings programmed alongside repair data.
const (
	IRAMTimingSafe  uint8 = 1
	RFRAMTimingSafe uint8 = 1
	WRAMTimingSafe  uint8 = 1
	WRAMBanks             = 4
)

// RepairConfig describes the redundant rows of one memory of one lane.
type RepairConfig struct {
	ABMsbs    uint8
	CDMsbs    uint8
	ALsbs     uint8
	BLsbs     uint8
	CLsbs     uint8
	DLsbs     uint8
	EvenIndex uint8
	OddIndex  uint8
}

// DefaultRepairConfig is used when no repair data is known for a lane.
func DefaultRepairConfig() RepairConfig {
	return RepairConfig{OddIndex: 1}
}

// DefaultRepairConfigs returns DefaultRepairConfig for every lane.
func DefaultRepairConfigs() [wire.MaxLanes]RepairConfig {
	var out [wire.MaxLanes]RepairConfig
	for i := range out {
		out[i] = DefaultRepairConfig()
	}
	return out
}

// IRAMRepairConfig programs instruction memory repair on the selected units
// of every lane in mask, then the register file timing.
func (tx *Tx) IRAMRepairConfig(mask wire.Mask, cfgs [wire.MaxLanes]RepairConfig) error {
	if err := tx.checkMask(mask); err != nil {
		return err
	}
	steps := []struct {
		structure wire.Word
		frame     func(RepairConfig) wire.Word
	}{
		{opcode.IRepairABStruct(), func(c RepairConfig) wire.Word { return opcode.IRepairABFrame(c.ABMsbs, c.ALsbs, c.BLsbs) }},
		{opcode.IRepairCDStruct(), func(c RepairConfig) wire.Word { return opcode.IRepairCDFrame(c.CDMsbs, c.CLsbs, c.DLsbs) }},
		{opcode.IRepairOEStruct(), func(c RepairConfig) wire.Word {
			return opcode.IRepairOEFrame(c.OddIndex, c.EvenIndex, IRAMTimingSafe)
		}},
	}
	for _, step := range steps {
		var frames wire.Vector
		for _, lane := range mask.Lanes() {
			frames[lane] = step.frame(cfgs[lane])
		}
		if err := tx.voidFrames(step.structure, frames); err != nil {
			return err
		}
	}
	return tx.VoidFrame(mask, opcode.RegisterFileTimingStruct(), opcode.RegisterFileTimingFrame(RFRAMTimingSafe))
}

// WRAMRepairConfig programs working memory repair of one bank through the
// DMA control repair path.
func (tx *Tx) WRAMRepairConfig(mask wire.Mask, bank uint8, cfgs [wire.MaxLanes]RepairConfig) error {
	if err := tx.checkMask(mask); err != nil {
		return err
	}
	if bank >= WRAMBanks {
		return fmt.Errorf("%w: wram bank %d", ErrInvalidConfig, bank)
	}
	b0 := opcode.Nibble(bank << 2)
	tail := func(b1, b2, b3 uint8) [6]uint8 {
		return [6]uint8{b0, b1, b2, b3, opcode.Nibble(0), opcode.DMAPathRepair}
	}
	rows := []func(RepairConfig) [6]uint8{
		func(c RepairConfig) [6]uint8 {
			return tail(0x60, opcode.Nibble(c.EvenIndex>>1), opcode.Nibble(c.OddIndex>>1))
		},
		func(c RepairConfig) [6]uint8 {
			return tail(0x61, opcode.Nibble(c.ABMsbs>>4), opcode.Nibble(c.ABMsbs))
		},
		func(c RepairConfig) [6]uint8 {
			return tail(0x62, opcode.Nibble(c.ALsbs), opcode.Nibble(c.BLsbs))
		},
		func(c RepairConfig) [6]uint8 {
			return tail(0x63, opcode.Nibble(c.CDMsbs>>4), opcode.Nibble(c.CDMsbs))
		},
		func(c RepairConfig) [6]uint8 {
			return tail(0x64, opcode.Nibble(c.CLsbs), opcode.Nibble(c.DLsbs))
		},
	}
	for _, row := range rows {
		var datas [wire.MaxLanes][6]uint8
		for _, lane := range mask.Lanes() {
			datas[lane] = row(cfgs[lane])
		}
		if err := tx.WriteDMACtrlDatas(mask, datas); err != nil {
			return err
		}
	}
	timing := opcode.DMACtrlWriteFrame(tail(0x65, 0x60, opcode.Nibble(WRAMTimingSafe)))
	if err := tx.VoidFrame(mask, opcode.DMACtrlWriteStruct(), timing); err != nil {
		return err
	}
	return tx.ClearDMACtrl(mask)
}
