package opcode

import (
	"fmt"

	"github.com/danmuck/cictl/internal/protocol/wire"
)

// Kind is the top byte of a command word.
type Kind uint8

const (
	KindStructure   Kind = 0x3C
	KindFrame       Kind = 0xC3
	KindByteOrder   Kind = 0x0B
	KindSoftReset   Kind = 0x5E
	KindBitOrder    Kind = 0x0E
	KindIdentity    Kind = 0x1D
	KindThermal     Kind = 0x7E
	KindCmdDuration Kind = 0x4C
	KindResDuration Kind = 0x4D
	KindResSampling Kind = 0x4E
)

func (k Kind) String() string {
	switch k {
	case KindStructure:
		return "structure"
	case KindFrame:
		return "frame"
	case KindByteOrder:
		return "byte_order"
	case KindSoftReset:
		return "soft_reset"
	case KindBitOrder:
		return "bit_order"
	case KindIdentity:
		return "identity"
	case KindThermal:
		return "thermal"
	case KindCmdDuration:
		return "cmd_duration"
	case KindResDuration:
		return "res_duration"
	case KindResSampling:
		return "res_sampling"
	default:
		return fmt.Sprintf("kind(0x%02x)", uint8(k))
	}
}

// Family names the operation a structure register routes frames to.
type Family uint8

const (
	FamilySelectAll Family = iota + 1
	FamilySelectGroup
	FamilySelectUnit
	FamilyWriteGroup
	FamilyCmdBusDuration
	FamilyCmdBusSampling
	FamilyCmdBusSync
	FamilyResBusDuration
	FamilyResBusSync
	FamilyDMACtrlWrite
	FamilyDMACtrlRead
	FamilyDMACtrlClear
	FamilyIRepairAB
	FamilyIRepairCD
	FamilyIRepairOE
	FamilyRegisterFileTiming
	FamilyWRAMWrite
	FamilyWRAMRead
	FamilyLoopback
)

var familyNames = map[Family]string{
	FamilySelectAll:          "select_all",
	FamilySelectGroup:        "select_group",
	FamilySelectUnit:         "select_unit",
	FamilyWriteGroup:         "write_group",
	FamilyCmdBusDuration:     "cmd_bus_duration",
	FamilyCmdBusSampling:     "cmd_bus_sampling",
	FamilyCmdBusSync:         "cmd_bus_sync",
	FamilyResBusDuration:     "res_bus_duration",
	FamilyResBusSync:         "res_bus_sync",
	FamilyDMACtrlWrite:       "dma_ctrl_write",
	FamilyDMACtrlRead:        "dma_ctrl_read",
	FamilyDMACtrlClear:       "dma_ctrl_clear",
	FamilyIRepairAB:          "irepair_ab",
	FamilyIRepairCD:          "irepair_cd",
	FamilyIRepairOE:          "irepair_oe",
	FamilyRegisterFileTiming: "register_file_timing",
	FamilyWRAMWrite:          "wram_write",
	FamilyWRAMRead:           "wram_read",
	FamilyLoopback:           "loopback",
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("family(%d)", uint8(f))
}

// Name labels a command word for logs and metrics.
func Name(w wire.Word) string {
	c := Decode(w)
	switch c.Kind {
	case KindStructure, KindFrame:
		return c.Kind.String() + ":" + c.Family().String()
	default:
		return c.Kind.String()
	}
}

const (
	argShift   = 32
	argMask    = 0xFFFFFF
	familyBits = 16
)

// Command is a decoded command word.
type Command struct {
	Kind    Kind
	Arg     uint32
	Payload uint32
}

// Family returns the family carried in the argument of a structure or frame.
func (c Command) Family() Family {
	return Family(c.Arg >> familyBits)
}

// Address returns the low 16 bits of the argument: the structure operand or
// the frame addressing field.
func (c Command) Address() uint16 {
	return uint16(c.Arg)
}

// Encode builds the command word.
func Encode(kind Kind, arg, payload uint32) wire.Word {
	return wire.Word(kind)<<56 | wire.Word(arg&argMask)<<argShift | wire.Word(payload)
}

// Decode splits a command word into its fields.
func Decode(w wire.Word) Command {
	return Command{
		Kind:    Kind(w >> 56),
		Arg:     uint32(w>>argShift) & argMask,
		Payload: uint32(w),
	}
}

func familyArg(f Family, low uint16) uint32 {
	return uint32(f)<<familyBits | uint32(low)
}

// Structure builds the structure word routing subsequent frames to f.
func Structure(f Family, operand uint16) wire.Word {
	return Encode(KindStructure, familyArg(f, operand), 0)
}

// Frame builds a frame word for family f.
func Frame(f Family, address uint16, payload uint32) wire.Word {
	return Encode(KindFrame, familyArg(f, address), payload)
}
