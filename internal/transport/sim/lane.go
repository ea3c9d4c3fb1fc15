package sim

import (
	"github.com/danmuck/cictl/internal/protocol/bitorder"
	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
)

type selectKind uint8

const (
	selectNone selectKind = iota
	selectAll
	selectGroup
	selectUnit
)

type selection struct {
	kind selectKind
	id   uint8
}

// injection holds the faults armed on one lane.
type injection struct {
	flipBits  int
	flipCount int // responses left to corrupt; negative corrupts forever
	dropValid bool
	stall     bool
}

// lane is the device side of one control interface.
type lane struct {
	units int

	color   bool
	out     wire.Word
	pending bool
	cmd     opcode.Command
	busy    int

	structure    opcode.Command
	hasStructure bool
	target       selection
	groups       [wire.MaxGroups]uint8

	division      opcode.ClockDivision
	cycleAccurate bool
	programmed    bitorder.Config
	threshold     wire.Temperature
	carousel      [4]uint8
	repairFrames  int
	registerTime  uint8

	wram    []map[uint16]uint32
	dma     [][256]uint8
	dmaAddr uint8

	inject injection
}

func newLane(units int) *lane {
	l := &lane{units: units, out: wire.Nop}
	l.groups[0] = wire.UnitMask(units)
	l.wram = make([]map[uint16]uint32, units)
	for i := range l.wram {
		l.wram[i] = make(map[uint16]uint32)
	}
	l.dma = make([][256]uint8, units)
	return l
}

// selected returns the bitmap of units the current target addresses.
func (l *lane) selected() uint8 {
	switch l.target.kind {
	case selectAll:
		return wire.UnitMask(l.units)
	case selectGroup:
		return l.groups[l.target.id]
	case selectUnit:
		return uint8(1) << l.target.id
	default:
		return 0
	}
}

func (l *lane) forSelected(fn func(unit int)) {
	sel := l.selected()
	for unit := 0; unit < l.units; unit++ {
		if sel&(1<<uint(unit)) != 0 {
			fn(unit)
		}
	}
}

func (l *lane) firstSelected() int {
	sel := l.selected()
	for unit := 0; unit < l.units; unit++ {
		if sel&(1<<uint(unit)) != 0 {
			return unit
		}
	}
	return -1
}

func (l *lane) reset(div opcode.ClockDivision, cycleAccurate bool) {
	l.color = false
	l.hasStructure = false
	l.structure = opcode.Command{}
	l.target = selection{}
	l.groups = [wire.MaxGroups]uint8{0: wire.UnitMask(l.units)}
	l.division = div
	l.cycleAccurate = cycleAccurate
	l.dmaAddr = 0
}

// freshness returns the freshness byte of the next answer and flips color.
func (l *lane) freshness() uint8 {
	b := uint8(0x00)
	if l.color {
		b = 0xFF
	}
	l.color = !l.color
	return b
}

// corrupt applies the armed freshness and sentinel faults to an answer.
func (l *lane) corrupt(w wire.Word) wire.Word {
	if l.inject.flipBits > 0 && l.inject.flipCount != 0 {
		flip := uint8(0)
		for i := 0; i < l.inject.flipBits && i < 8; i++ {
			flip |= 1 << uint(i)
		}
		w = w.WithFreshness(w.Freshness() ^ flip)
		if l.inject.flipCount > 0 {
			l.inject.flipCount--
		}
	}
	if l.inject.dropValid {
		w &^= wire.ValidMask
	}
	return w
}
