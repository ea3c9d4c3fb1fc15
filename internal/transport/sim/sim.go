// Package sim is an in-process rank of simulated lanes.
//
// Each lane decodes committed command words, stays busy for a configurable
// number of reads, then answers with a ready result word carrying its
// toggling freshness byte. Faults can be armed per lane to exercise the
// host's glitch classification and timeout paths.
package sim

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/cictl/internal/protocol/bitorder"
	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
	"github.com/danmuck/cictl/internal/transport"
)

const Kind = "sim"

var (
	ErrClosed      = errors.New("sim: rank closed")
	ErrLaneRange   = errors.New("sim: lane out of range")
	ErrUnitRange   = errors.New("sim: unit out of range")
	ErrBadTopology = errors.New("sim: invalid topology")
)

// busyTail fills every byte below the echo so a busy lane never shows an
// all-zero byte.
const busyTail wire.Word = 0x00FFFFFFFFFFFFFF

// Options configures a simulated rank.
type Options struct {
	Lanes        int
	UnitsPerLane int
	// Latency is the number of reads returning the busy word before a lane
	// answers.
	Latency int
	ChipID  uint32
	// BitPattern is the answer to a neutral bit order command and defines
	// the simulated board wiring.
	BitPattern  uint32
	Temperature wire.Temperature
}

func DefaultOptions() Options {
	return Options{
		Lanes:        wire.MaxLanes,
		UnitsPerLane: wire.MaxUnitsPerLane,
		Latency:      1,
		ChipID:       opcode.DefaultChipID,
		BitPattern:   bitorder.IdentityPattern,
		Temperature:  wire.Temp50To60,
	}
}

// Stats counts bus traffic seen by the simulator.
type Stats struct {
	Commits    int
	Updates    int
	Violations int
}

// Rank implements transport.Transport over simulated lanes.
type Rank struct {
	mu     sync.Mutex
	opts   Options
	wiring bitorder.Config
	lanes  []*lane
	stats  Stats
	closed bool
}

// New builds a simulated rank.
func New(opts Options) (*Rank, error) {
	if opts.Lanes < 1 || opts.Lanes > wire.MaxLanes {
		return nil, fmt.Errorf("%w: lanes=%d", ErrBadTopology, opts.Lanes)
	}
	if opts.UnitsPerLane < 1 || opts.UnitsPerLane > wire.MaxUnitsPerLane {
		return nil, fmt.Errorf("%w: units_per_lane=%d", ErrBadTopology, opts.UnitsPerLane)
	}
	if opts.Latency < 0 {
		opts.Latency = 0
	}
	if opts.BitPattern == 0 {
		opts.BitPattern = bitorder.IdentityPattern
	}
	r := &Rank{
		opts:   opts,
		wiring: bitorder.Compute(opts.BitPattern),
		lanes:  make([]*lane, opts.Lanes),
	}
	for i := range r.lanes {
		r.lanes[i] = newLane(opts.UnitsPerLane)
	}
	return r, nil
}

// Commit latches one command per non-empty lane word.
func (r *Rank) Commit(words wire.Vector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	for i, w := range words {
		if w == wire.Empty {
			continue
		}
		if i >= len(r.lanes) {
			return fmt.Errorf("%w: commit on lane %d of %d", ErrLaneRange, i, len(r.lanes))
		}
		l := r.lanes[i]
		c := opcode.Decode(w)
		r.stats.Commits++
		if c.Kind == opcode.KindSoftReset {
			div, ca := opcode.SoftResetArgs(c)
			l.reset(div, ca)
			l.out = wire.Nop
			l.pending = false
			continue
		}
		l.pending = true
		l.cmd = c
		l.busy = r.opts.Latency
		l.out = wire.Word(c.Kind)<<56 | busyTail
	}
	return nil
}

// Update reads every lane, advancing busy lanes by one read.
func (r *Rank) Update(words *wire.Vector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.stats.Updates++
	for i := range words {
		if i >= len(r.lanes) {
			words[i] = wire.Empty
			continue
		}
		l := r.lanes[i]
		if l.pending && !l.inject.stall {
			if l.busy > 0 {
				l.busy--
			} else {
				l.out = r.answer(l, l.cmd)
				l.pending = false
			}
		}
		words[i] = l.out
	}
	return nil
}

func (r *Rank) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Rank) Topology() transport.Topology {
	return transport.Topology{Lanes: r.opts.Lanes, UnitsPerLane: r.opts.UnitsPerLane}
}

func (r *Rank) answer(l *lane, c opcode.Command) wire.Word {
	if c.Kind == opcode.KindByteOrder {
		l.freshness()
		return opcode.ByteOrderResult
	}
	fresh := l.freshness()
	payload := r.execute(l, c)
	return l.corrupt(wire.Result(fresh, wire.TemperatureByte(r.opts.Temperature), payload))
}

func (r *Rank) execute(l *lane, c opcode.Command) uint32 {
	switch c.Kind {
	case opcode.KindBitOrder:
		swap, stutter, c2d, d2c := opcode.BitOrderArgs(c)
		if c2d == 0 && d2c == 0 {
			return r.opts.BitPattern
		}
		l.programmed = bitorder.Config{CPU2DPU: c2d, DPU2CPU: d2c, NibbleSwap: swap, Stutter: stutter}
		return 0
	case opcode.KindIdentity:
		return r.wiring.LaneToHost(r.opts.ChipID)
	case opcode.KindThermal:
		l.threshold = wire.Temperature(c.Arg)
	case opcode.KindCmdDuration:
		l.carousel[0] = uint8(c.Arg)
	case opcode.KindResDuration:
		l.carousel[2] = uint8(c.Arg)
	case opcode.KindResSampling:
		l.carousel[3] = uint8(c.Arg)
	case opcode.KindStructure:
		l.structure = c
		l.hasStructure = true
	case opcode.KindFrame:
		return r.frame(l, c)
	default:
		r.violation("unknown command kind %s", c.Kind)
	}
	return 0
}

func (r *Rank) frame(l *lane, c opcode.Command) uint32 {
	if !l.hasStructure || l.structure.Family() != c.Family() {
		r.violation("frame family %d without matching structure", c.Family())
		return 0
	}
	addr := c.Address()
	switch c.Family() {
	case opcode.FamilySelectAll:
		l.target = selection{kind: selectAll}
	case opcode.FamilySelectGroup:
		if addr >= wire.MaxGroups {
			r.violation("select group %d", addr)
			return 0
		}
		l.target = selection{kind: selectGroup, id: uint8(addr)}
	case opcode.FamilySelectUnit:
		if int(addr) >= l.units {
			r.violation("select unit %d of %d", addr, l.units)
			return 0
		}
		l.target = selection{kind: selectUnit, id: uint8(addr)}
	case opcode.FamilyWriteGroup:
		if addr >= wire.MaxGroups {
			r.violation("write group %d", addr)
			return 0
		}
		sel := l.selected()
		for g := range l.groups {
			l.groups[g] &^= sel
		}
		l.groups[addr] |= sel
	case opcode.FamilyCmdBusDuration:
		l.carousel[0] = uint8(c.Payload)
	case opcode.FamilyCmdBusSampling:
		l.carousel[1] = uint8(c.Payload)
	case opcode.FamilyResBusDuration:
		l.carousel[2] = uint8(c.Payload)
	case opcode.FamilyCmdBusSync, opcode.FamilyResBusSync, opcode.FamilyDMACtrlClear:
	case opcode.FamilyDMACtrlWrite:
		b := opcode.DMACtrlBytes(c)
		switch b[5] {
		case opcode.DMAPathControl:
			reg, data := opcode.DMACtrlRegisterArgs(b)
			l.dmaAddr = reg
			l.forSelected(func(unit int) { l.dma[unit][reg] = data })
		case opcode.DMAPathRepair:
			l.repairFrames++
		default:
			r.violation("dma ctrl path 0x%02x", b[5])
		}
	case opcode.FamilyDMACtrlRead:
		if unit := l.firstSelected(); unit >= 0 {
			return uint32(l.dma[unit][l.dmaAddr])
		}
	case opcode.FamilyIRepairAB, opcode.FamilyIRepairCD, opcode.FamilyIRepairOE:
		l.repairFrames++
	case opcode.FamilyRegisterFileTiming:
		l.registerTime = uint8(c.Payload)
	case opcode.FamilyWRAMWrite:
		l.forSelected(func(unit int) { l.wram[unit][addr] = c.Payload })
		return uint32(l.selected())
	case opcode.FamilyWRAMRead:
		if unit := l.firstSelected(); unit >= 0 {
			return l.wram[unit][addr]
		}
	case opcode.FamilyLoopback:
		return c.Payload
	default:
		r.violation("unknown frame family %d", c.Family())
	}
	return 0
}

func (r *Rank) violation(format string, args ...any) {
	r.stats.Violations++
	logs.Warnf("sim.Rank.frame violation "+format, args...)
}

// Backend opens simulated ranks from transport specs.
type Backend struct {
	Defaults Options
}

func NewBackend() Backend {
	return Backend{Defaults: DefaultOptions()}
}

func (b Backend) Kind() string { return Kind }

// Open builds a rank from spec. Options understood: chip_id, bit_pattern,
// temperature_c.
func (b Backend) Open(spec transport.Spec) (transport.Transport, error) {
	opts := b.Defaults
	opts.Lanes = spec.Lanes
	opts.UnitsPerLane = spec.UnitsPerLane
	opts.Latency = spec.Latency
	if v, ok := spec.Options["chip_id"]; ok {
		n, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("sim: chip_id: %w", err)
		}
		opts.ChipID = uint32(n)
	}
	if v, ok := spec.Options["bit_pattern"]; ok {
		n, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("sim: bit_pattern: %w", err)
		}
		opts.BitPattern = uint32(n)
	}
	if v, ok := spec.Options["temperature_c"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("sim: temperature_c: %w", err)
		}
		opts.Temperature = wire.TemperatureFromCelsius(n)
	}
	return New(opts)
}
