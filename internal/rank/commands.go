package rank

import (
	"fmt"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/cictl/internal/protocol/bitorder"
	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
)

// Identity reads the chip id of every lane in mask, corrected through the
// active bit shuffling config.
func (tx *Tx) Identity(mask wire.Mask) ([wire.MaxLanes]uint32, error) {
	ids, err := tx.Exec32(wire.Fill(mask, opcode.Identity()))
	if err != nil {
		return ids, err
	}
	for _, lane := range mask.Lanes() {
		ids[lane] = tx.r.bits.HostToLane(ids[lane])
	}
	return ids, nil
}

// CheckIdentity requires every lane of mask to report the configured chip id.
func (tx *Tx) CheckIdentity(mask wire.Mask) error {
	ids, err := tx.Identity(mask)
	if err != nil {
		return err
	}
	id, err := consistent("identity", mask, ids)
	if err != nil {
		return err
	}
	if mask != 0 && id != tx.r.cfg.ChipID {
		return fmt.Errorf("%w: got 0x%08x want 0x%08x", ErrIdentity, id, tx.r.cfg.ChipID)
	}
	return nil
}

// BitConfig sends a bit order command. With a nil cfg the command is neutral
// and the lanes answer with their raw bit pattern; otherwise cfg is
// programmed and becomes the active config.
func (tx *Tx) BitConfig(mask wire.Mask, cfg *bitorder.Config) ([wire.MaxLanes]uint32, error) {
	if cfg == nil {
		return tx.Exec32(wire.Fill(mask, opcode.BitOrder(0, 0, 0, 0)))
	}
	err := tx.ExecVoid(wire.Fill(mask, opcode.BitOrder(cfg.NibbleSwap, cfg.Stutter, cfg.CPU2DPU, cfg.DPU2CPU)))
	if err == nil {
		tx.r.bits = *cfg
	}
	return [wire.MaxLanes]uint32{}, err
}

// DiscoverBitConfig probes the bit pattern of every lane in mask and derives
// the shuffling config. All lanes must agree.
func (tx *Tx) DiscoverBitConfig(mask wire.Mask) (bitorder.Config, error) {
	results, err := tx.BitConfig(mask, nil)
	if err != nil {
		return bitorder.Config{}, err
	}
	pattern, err := consistent("bit_order", mask, results)
	if err != nil {
		return bitorder.Config{}, err
	}
	cfg := bitorder.Compute(pattern)
	cfg.Stutter = 0
	logs.Debugf("rank.Tx.DiscoverBitConfig rank_id=%q pattern=0x%08x c2d=0x%04x d2c=0x%04x nibble_swap=0x%02x",
		tx.r.id, pattern, cfg.CPU2DPU, cfg.DPU2CPU, cfg.NibbleSwap)
	return cfg, nil
}

// ActiveBitConfig returns the bit shuffling config last programmed.
func (tx *Tx) ActiveBitConfig() bitorder.Config {
	return tx.r.bits
}

// DMA shuffling box registers.
const (
	regD2CHigh    = 0x10
	regD2CLow     = 0x11
	regC2DHigh    = 0x12
	regC2DLow     = 0x13
	regNibbleSwap = 0x14
)

// ShufflingBoxConfig mirrors cfg into the DMA shuffling box of every
// selected unit.
func (tx *Tx) ShufflingBoxConfig(mask wire.Mask, cfg bitorder.Config) error {
	regs := []struct{ addr, data uint8 }{
		{regD2CHigh, uint8(cfg.DPU2CPU >> 8)},
		{regD2CLow, uint8(cfg.DPU2CPU)},
		{regC2DHigh, uint8(cfg.CPU2DPU >> 8)},
		{regC2DLow, uint8(cfg.CPU2DPU)},
		{regNibbleSwap, cfg.NibbleSwap},
	}
	for _, reg := range regs {
		if err := tx.WriteDMACtrl(mask, reg.addr, reg.data); err != nil {
			return err
		}
	}
	return tx.ClearDMACtrl(mask)
}

func (tx *Tx) ThermalConfig(mask wire.Mask, threshold wire.Temperature) error {
	return tx.ExecVoid(wire.Fill(mask, opcode.ThermalConfig(threshold)))
}

// CarouselConfig programs command and result bus timings.
func (tx *Tx) CarouselConfig(mask wire.Mask, c Carousel) error {
	if err := tx.ExecVoid(wire.Fill(mask, opcode.CmdDurationFuture(c.CmdDuration))); err != nil {
		return err
	}
	if err := tx.VoidFrame(mask, opcode.CmdBusDurationStruct(), opcode.CmdBusDurationFrame(c.CmdDuration)); err != nil {
		return err
	}
	if err := tx.VoidFrame(mask, opcode.CmdBusSamplingStruct(), opcode.CmdBusSamplingFrame(c.CmdSampling)); err != nil {
		return err
	}
	if err := tx.VoidFrame(mask, opcode.CmdBusSyncStruct(), opcode.CmdBusSyncFrame()); err != nil {
		return err
	}
	if err := tx.ExecVoid(wire.Fill(mask, opcode.ResDurationFuture(c.ResDuration))); err != nil {
		return err
	}
	if err := tx.ExecVoid(wire.Fill(mask, opcode.ResSamplingFuture(c.ResSampling))); err != nil {
		return err
	}
	if err := tx.VoidFrame(mask, opcode.ResBusDurationStruct(), opcode.ResBusDurationFrame(c.ResDuration)); err != nil {
		return err
	}
	return tx.VoidFrame(mask, opcode.ResBusSyncStruct(), opcode.ResBusSyncFrame())
}

// WriteDMACtrl writes data to DMA control register addr of the selected
// units on every lane of mask.
func (tx *Tx) WriteDMACtrl(mask wire.Mask, addr, data uint8) error {
	return tx.VoidFrame(mask, opcode.DMACtrlWriteStruct(), opcode.DMACtrlWriteFrame(opcode.DMACtrlRegister(addr, data)))
}

// WriteDMACtrlDatas sends raw per-lane DMA control bytes.
func (tx *Tx) WriteDMACtrlDatas(mask wire.Mask, datas [wire.MaxLanes][6]uint8) error {
	if err := tx.checkMask(mask); err != nil {
		return err
	}
	var frames wire.Vector
	for _, lane := range mask.Lanes() {
		frames[lane] = opcode.DMACtrlWriteFrame(datas[lane])
	}
	return tx.voidFrames(opcode.DMACtrlWriteStruct(), frames)
}

// ReadDMACtrl reads the DMA control register last addressed on each lane.
func (tx *Tx) ReadDMACtrl(mask wire.Mask) ([wire.MaxLanes]uint8, error) {
	return tx.Frame8(mask, opcode.DMACtrlReadStruct(), opcode.DMACtrlReadFrame())
}

func (tx *Tx) ClearDMACtrl(mask wire.Mask) error {
	return tx.VoidFrame(mask, opcode.DMACtrlClearStruct(), opcode.DMACtrlClearFrame())
}

// WRAMWrite stores one word per lane at addr in the selected units. Lanes
// acknowledge with the units they wrote, which must match the selection.
func (tx *Tx) WRAMWrite(mask wire.Mask, addr uint16, words [wire.MaxLanes]uint32) error {
	if err := tx.WriteStructure(mask, opcode.WRAMWriteStruct(addr)); err != nil {
		return err
	}
	var frames wire.Vector
	for _, lane := range mask.Lanes() {
		frames[lane] = opcode.WRAMWriteFrame(addr, words[lane])
	}
	_, err := tx.Execute(frames, true)
	return err
}

// WRAMRead reads the word at addr of the first selected unit of each lane.
func (tx *Tx) WRAMRead(mask wire.Mask, addr uint16) ([wire.MaxLanes]uint32, error) {
	return tx.Frame32(mask, opcode.WRAMReadStruct(), opcode.WRAMReadFrame(addr))
}

// Loopback sends one diagnostic frame per lane addressed to unit and returns
// what the lanes echo.
func (tx *Tx) Loopback(mask wire.Mask, unit uint8, payloads [wire.MaxLanes]uint32) ([wire.MaxLanes]uint32, error) {
	if err := tx.checkMask(mask); err != nil {
		return [wire.MaxLanes]uint32{}, err
	}
	if err := tx.checkUnit(unit); err != nil {
		return [wire.MaxLanes]uint32{}, err
	}
	var frames wire.Vector
	for _, lane := range mask.Lanes() {
		frames[lane] = opcode.LoopbackFrame(unit, payloads[lane])
	}
	return tx.frames32(opcode.LoopbackStruct(), frames)
}
