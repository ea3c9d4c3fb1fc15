package sim

import (
	"fmt"

	"github.com/danmuck/cictl/internal/protocol/bitorder"
	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
)

// FlipFreshness corrupts bits low bits of the freshness byte in the next
// count answers of lane ln. A negative count corrupts every answer.
func (r *Rank) FlipFreshness(ln, bits, count int) error {
	return r.withLane(ln, func(l *lane) {
		l.inject.flipBits = bits
		l.inject.flipCount = count
	})
}

// DropValid clears the validity sentinel of every answer on lane ln while on.
func (r *Rank) DropValid(ln int, on bool) error {
	return r.withLane(ln, func(l *lane) { l.inject.dropValid = on })
}

// Stall keeps lane ln busy forever while on.
func (r *Rank) Stall(ln int, on bool) error {
	return r.withLane(ln, func(l *lane) { l.inject.stall = on })
}

// ClearInjections disarms every fault on every lane.
func (r *Rank) ClearInjections() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lanes {
		l.inject = injection{}
	}
}

func (r *Rank) withLane(i int, fn func(*lane)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.lanes) {
		return fmt.Errorf("%w: %d", ErrLaneRange, i)
	}
	fn(r.lanes[i])
	return nil
}

// LaneState is a snapshot of one simulated lane.
type LaneState struct {
	Color              bool
	Selected           uint8
	Groups             [wire.MaxGroups]uint8
	Structure          opcode.Command
	Division           opcode.ClockDivision
	CycleAccurate      bool
	BitConfig          bitorder.Config
	Threshold          wire.Temperature
	Carousel           [4]uint8
	RepairFrames       int
	RegisterFileTiming uint8
}

func (r *Rank) Lane(i int) (LaneState, error) {
	var st LaneState
	err := r.withLane(i, func(l *lane) {
		st = LaneState{
			Color:              l.color,
			Selected:           l.selected(),
			Groups:             l.groups,
			Structure:          l.structure,
			Division:           l.division,
			CycleAccurate:      l.cycleAccurate,
			BitConfig:          l.programmed,
			Threshold:          l.threshold,
			Carousel:           l.carousel,
			RepairFrames:       l.repairFrames,
			RegisterFileTiming: l.registerTime,
		}
	})
	return st, err
}

// WRAM returns the word stored at addr of one unit.
func (r *Rank) WRAM(ln, unit int, addr uint16) (uint32, error) {
	var v uint32
	var unitErr error
	err := r.withLane(ln, func(l *lane) {
		if unit < 0 || unit >= l.units {
			unitErr = fmt.Errorf("%w: %d", ErrUnitRange, unit)
			return
		}
		v = l.wram[unit][addr]
	})
	if err != nil {
		return 0, err
	}
	return v, unitErr
}

// DMARegister returns a DMA control register of one unit.
func (r *Rank) DMARegister(ln, unit int, reg uint8) (uint8, error) {
	var v uint8
	var unitErr error
	err := r.withLane(ln, func(l *lane) {
		if unit < 0 || unit >= l.units {
			unitErr = fmt.Errorf("%w: %d", ErrUnitRange, unit)
			return
		}
		v = l.dma[unit][reg]
	})
	if err != nil {
		return 0, err
	}
	return v, unitErr
}

func (r *Rank) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
