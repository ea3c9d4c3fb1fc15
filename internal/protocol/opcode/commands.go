package opcode

import (
	"fmt"

	"github.com/danmuck/cictl/internal/protocol/wire"
)

// ClockDivision is the lane clock divider programmed by a soft reset.
type ClockDivision uint8

const (
	ClockDiv8 ClockDivision = 0x0
	ClockDiv4 ClockDivision = 0x4
	ClockDiv3 ClockDivision = 0x3
	ClockDiv2 ClockDivision = 0x8
)

// Factor returns the integer division factor.
func (d ClockDivision) Factor() uint32 {
	switch d {
	case ClockDiv8:
		return 8
	case ClockDiv4:
		return 4
	case ClockDiv3:
		return 3
	default:
		return 2
	}
}

func (d ClockDivision) String() string {
	switch d {
	case ClockDiv8, ClockDiv4, ClockDiv3, ClockDiv2:
		return fmt.Sprintf("div%d", d.Factor())
	default:
		return fmt.Sprintf("div_unknown(0x%x)", uint8(d))
	}
}

// DivisionForFactor maps a division factor onto its encoding. Unknown
// factors fall back to division by 2.
func DivisionForFactor(factor uint32) ClockDivision {
	switch factor {
	case 3:
		return ClockDiv3
	case 4:
		return ClockDiv4
	case 8:
		return ClockDiv8
	default:
		return ClockDiv2
	}
}

// ByteOrderResult is what a correctly framed lane answers to ByteOrder.
const ByteOrderResult wire.Word = 0x000103FF0F8FCFEF

func ByteOrder() wire.Word {
	return Encode(KindByteOrder, 0, 0)
}

func SoftReset(div ClockDivision, cycleAccurate bool) wire.Word {
	arg := uint32(div) << 8
	if cycleAccurate {
		arg |= 1
	}
	return Encode(KindSoftReset, arg, 0)
}

// SoftResetArgs decodes a soft reset command.
func SoftResetArgs(c Command) (ClockDivision, bool) {
	return ClockDivision(c.Arg >> 8), c.Arg&1 != 0
}

func BitOrder(nibbleSwap, stutter uint8, cpu2dpu, dpu2cpu uint16) wire.Word {
	return Encode(KindBitOrder, uint32(stutter)<<8|uint32(nibbleSwap), uint32(cpu2dpu)<<16|uint32(dpu2cpu))
}

// BitOrderArgs decodes a bit order command.
func BitOrderArgs(c Command) (nibbleSwap, stutter uint8, cpu2dpu, dpu2cpu uint16) {
	return uint8(c.Arg), uint8(c.Arg >> 8), uint16(c.Payload >> 16), uint16(c.Payload)
}

// DefaultChipID is the identity answered by the lanes this tree targets.
const DefaultChipID uint32 = 0x00000004

func Identity() wire.Word {
	return Encode(KindIdentity, 0, 0)
}

func ThermalConfig(threshold wire.Temperature) wire.Word {
	return Encode(KindThermal, uint32(threshold), 0)
}

func CmdDurationFuture(duration uint8) wire.Word {
	return Encode(KindCmdDuration, uint32(duration), 0)
}

func ResDurationFuture(duration uint8) wire.Word {
	return Encode(KindResDuration, uint32(duration), 0)
}

func ResSamplingFuture(sampling uint8) wire.Word {
	return Encode(KindResSampling, uint32(sampling), 0)
}

// Selection.

func SelectAllStruct() wire.Word         { return Structure(FamilySelectAll, 0) }
func SelectAllFrame() wire.Word          { return Frame(FamilySelectAll, 0, 0) }
func SelectGroupStruct() wire.Word       { return Structure(FamilySelectGroup, 0) }
func SelectGroupFrame(g uint8) wire.Word { return Frame(FamilySelectGroup, uint16(g), 0) }
func SelectUnitStruct() wire.Word        { return Structure(FamilySelectUnit, 0) }
func SelectUnitFrame(u uint8) wire.Word  { return Frame(FamilySelectUnit, uint16(u), 0) }
func WriteGroupStruct() wire.Word        { return Structure(FamilyWriteGroup, 0) }
func WriteGroupFrame(g uint8) wire.Word  { return Frame(FamilyWriteGroup, uint16(g), 0) }

// Carousel.

func CmdBusDurationStruct() wire.Word       { return Structure(FamilyCmdBusDuration, 0) }
func CmdBusDurationFrame(d uint8) wire.Word { return Frame(FamilyCmdBusDuration, 0, uint32(d)) }
func CmdBusSamplingStruct() wire.Word       { return Structure(FamilyCmdBusSampling, 0) }
func CmdBusSamplingFrame(s uint8) wire.Word { return Frame(FamilyCmdBusSampling, 0, uint32(s)) }
func CmdBusSyncStruct() wire.Word           { return Structure(FamilyCmdBusSync, 0) }
func CmdBusSyncFrame() wire.Word            { return Frame(FamilyCmdBusSync, 0, 0) }
func ResBusDurationStruct() wire.Word       { return Structure(FamilyResBusDuration, 0) }
func ResBusDurationFrame(d uint8) wire.Word { return Frame(FamilyResBusDuration, 0, uint32(d)) }
func ResBusSyncStruct() wire.Word           { return Structure(FamilyResBusSync, 0) }
func ResBusSyncFrame() wire.Word            { return Frame(FamilyResBusSync, 0, 0) }

// DMA control.

// DMA control frames carry six bytes, each 0x60 with a nibble in its low
// half. The last byte selects the write path.
const (
	dmaNibbleBase  = 0x60
	DMAPathControl = 0x20
	DMAPathRepair  = 0x40
)

func DMACtrlWriteStruct() wire.Word { return Structure(FamilyDMACtrlWrite, 0) }
func DMACtrlReadStruct() wire.Word  { return Structure(FamilyDMACtrlRead, 0) }
func DMACtrlReadFrame() wire.Word   { return Frame(FamilyDMACtrlRead, 0, 0) }
func DMACtrlClearStruct() wire.Word { return Structure(FamilyDMACtrlClear, 0) }
func DMACtrlClearFrame() wire.Word  { return Frame(FamilyDMACtrlClear, 0, 0) }

// DMACtrlWriteFrame packs six DMA control bytes into a frame.
func DMACtrlWriteFrame(b [6]uint8) wire.Word {
	payload := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return Frame(FamilyDMACtrlWrite, uint16(b[4])<<8|uint16(b[5]), payload)
}

// DMACtrlBytes unpacks the six bytes of a DMA control write frame.
func DMACtrlBytes(c Command) [6]uint8 {
	addr := c.Address()
	return [6]uint8{
		uint8(c.Payload >> 24), uint8(c.Payload >> 16), uint8(c.Payload >> 8), uint8(c.Payload),
		uint8(addr >> 8), uint8(addr),
	}
}

// Nibble prefixes v's low nibble with the DMA control marker.
func Nibble(v uint8) uint8 {
	return dmaNibbleBase | v&0x0F
}

// DMACtrlRegister builds the bytes writing data to DMA control register addr.
func DMACtrlRegister(addr, data uint8) [6]uint8 {
	return [6]uint8{
		Nibble(addr >> 4), Nibble(addr),
		Nibble(data >> 4), Nibble(data),
		dmaNibbleBase, DMAPathControl,
	}
}

// DMACtrlRegisterArgs recovers address and data from register write bytes.
func DMACtrlRegisterArgs(b [6]uint8) (addr, data uint8) {
	return (b[0]&0x0F)<<4 | b[1]&0x0F, (b[2]&0x0F)<<4 | b[3]&0x0F
}

// Memory repair.

func IRepairABStruct() wire.Word { return Structure(FamilyIRepairAB, 0) }
func IRepairCDStruct() wire.Word { return Structure(FamilyIRepairCD, 0) }
func IRepairOEStruct() wire.Word { return Structure(FamilyIRepairOE, 0) }

func IRepairABFrame(msbs, aLsbs, bLsbs uint8) wire.Word {
	return Frame(FamilyIRepairAB, 0, uint32(msbs)<<16|uint32(aLsbs)<<8|uint32(bLsbs))
}

func IRepairCDFrame(msbs, cLsbs, dLsbs uint8) wire.Word {
	return Frame(FamilyIRepairCD, 0, uint32(msbs)<<16|uint32(cLsbs)<<8|uint32(dLsbs))
}

func IRepairOEFrame(odd, even, timing uint8) wire.Word {
	return Frame(FamilyIRepairOE, 0, uint32(odd)<<16|uint32(even)<<8|uint32(timing))
}

func RegisterFileTimingStruct() wire.Word { return Structure(FamilyRegisterFileTiming, 0) }

func RegisterFileTimingFrame(v uint8) wire.Word {
	return Frame(FamilyRegisterFileTiming, 0, uint32(v))
}

// WRAM word access. The write structure carries the target address so the
// structure cache keys on it.

func WRAMWriteStruct(addr uint16) wire.Word { return Structure(FamilyWRAMWrite, addr) }
func WRAMReadStruct() wire.Word             { return Structure(FamilyWRAMRead, 0) }

func WRAMWriteFrame(addr uint16, data uint32) wire.Word {
	return Frame(FamilyWRAMWrite, addr, data)
}

func WRAMReadFrame(addr uint16) wire.Word {
	return Frame(FamilyWRAMRead, addr, 0)
}

// Loopback frames are answered with their own payload.

func LoopbackStruct() wire.Word { return Structure(FamilyLoopback, 0) }

func LoopbackFrame(unit uint8, payload uint32) wire.Word {
	return Frame(FamilyLoopback, uint16(unit), payload)
}
