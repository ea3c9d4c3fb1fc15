package rank

import (
	"fmt"

	"github.com/danmuck/cictl/internal/observability"
	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
)

// Exchange is the outcome of one completed frame exchange.
type Exchange struct {
	Lanes    wire.Mask
	Words    wire.Vector
	Faults   [wire.MaxLanes]wire.Fault
	Attempts int
}

// Faulted returns the lanes whose answer carried a glitch.
func (e Exchange) Faulted() wire.Mask {
	var m wire.Mask
	for _, lane := range e.Lanes.Lanes() {
		if e.Faults[lane] != wire.FaultNone {
			m |= wire.LaneBit(lane)
		}
	}
	return m
}

type pollState int

const (
	pollPending pollState = iota
	pollUnstable
	pollStable
)

// pollLane checks one lane word against its completion condition.
func pollLane(w, mask, expected wire.Word, colorBefore bool) (pollState, wire.Fault) {
	if w&mask != expected {
		return pollPending, wire.FaultNone
	}
	want := wire.ExpectedBand(colorBefore)
	switch wire.FreshnessBand(w.Freshness()) {
	case want:
	case wire.BandUnstable:
		return pollUnstable, wire.FaultNone
	default:
		return pollPending, wire.FaultNone
	}
	fault, ok := wire.Classify(wire.Distance(w.Freshness(), want))
	if !ok {
		return pollUnstable, wire.FaultNone
	}
	return pollStable, fault
}

// Execute commits frames and polls until every participating lane answers.
// Lanes are those carrying a non-empty word. With expectAck the low byte of
// each answer must match the units the lane has selected.
func (tx *Tx) Execute(frames wire.Vector, expectAck bool) (Exchange, error) {
	r := tx.r
	if err := tx.checkMask(frames.Mask(wire.MaxLanes)); err != nil {
		return Exchange{}, err
	}
	lanes := frames.Mask(r.cfg.Lanes)
	if lanes == 0 {
		return Exchange{}, nil
	}
	op := opcode.Name(frames[lanes.First()])

	var masks, expected wire.Vector
	for _, lane := range lanes.Lanes() {
		masks[lane] = wire.EchoMask | wire.ValidMask
		expected[lane] = wire.Ready
		if expectAck {
			masks[lane] |= wire.Word(wire.UnitMask(r.cfg.UnitsPerLane))
			expected[lane] |= wire.Word(tx.selectedUnits(lane))
		}
	}

	colorBefore := r.color & lanes
	r.color ^= lanes

	if err := tx.commit(frames); err != nil {
		tx.invalidateStructures(lanes)
		return Exchange{}, err
	}

	ex := Exchange{Lanes: lanes}
	pending := lanes
	var words wire.Vector
	for pending != 0 {
		if ex.Attempts == r.cfg.RetryBudget {
			tx.invalidateStructures(lanes)
			return ex, tx.timeout(op, pending, ex.Attempts)
		}
		ex.Attempts++
		if err := tx.update(&words); err != nil {
			tx.invalidateStructures(lanes)
			return ex, err
		}
		for _, lane := range pending.Lanes() {
			state, fault := pollLane(words[lane], masks[lane], expected[lane], colorBefore.Has(lane))
			switch state {
			case pollStable:
				pending &^= wire.LaneBit(lane)
				ex.Faults[lane] = fault
			case pollPending, pollUnstable:
			}
		}
	}

	// Settle: the answer is the read after every lane has latched.
	if err := tx.update(&words); err != nil {
		tx.invalidateStructures(lanes)
		return ex, err
	}
	ex.Words = words.Only(lanes)

	tx.recordFaults(op, ex)
	observability.RecordExchange(r.id, op, ex.Attempts)
	r.observeTemperature(ex.Words, lanes)
	return ex, nil
}

func (tx *Tx) recordFaults(op string, ex Exchange) {
	r := tx.r
	for _, lane := range ex.Faulted().Lanes() {
		f := ex.Faults[lane]
		bit := wire.LaneBit(lane)
		if f.Decode() {
			r.faultDecode |= bit
			observability.RecordLaneFault(r.id, lane, "decode")
		}
		if f.Collision() {
			r.faultCollide |= bit
			observability.RecordLaneFault(r.id, lane, "collision")
		}
		r.log.Warn().
			Str("op", op).
			Int("lane", lane).
			Str("fault", f.String()).
			Uint8("freshness", ex.Words[lane].Freshness()).
			Msg("lane_fault")
	}
}

func (tx *Tx) timeout(op string, pending wire.Mask, attempts int) error {
	r := tx.r
	r.log.Warn().
		Str("op", op).
		Str("pending", pending.String()).
		Int("attempts", attempts).
		Msg("exchange_timeout")
	r.dumpHistory("timeout")
	observability.RecordTimeout(r.id, op)
	return &TimeoutError{Rank: r.id, Op: op, Pending: pending, Attempts: attempts}
}

// invalidateStructures forgets the cached structure of lanes whose last
// exchange did not complete; the next structured frame rewrites it.
func (tx *Tx) invalidateStructures(lanes wire.Mask) {
	for _, lane := range lanes.Lanes() {
		tx.r.lanes[lane].structure = wire.Empty
	}
}

// ExecVoid runs an exchange whose result carries no data.
func (tx *Tx) ExecVoid(frames wire.Vector) error {
	_, err := tx.Execute(frames, false)
	return err
}

// Exec8 runs an exchange and returns the low byte of each answer.
func (tx *Tx) Exec8(frames wire.Vector) ([wire.MaxLanes]uint8, error) {
	var out [wire.MaxLanes]uint8
	ex, err := tx.Execute(frames, false)
	if err != nil {
		return out, err
	}
	for _, lane := range ex.Lanes.Lanes() {
		out[lane] = ex.Words[lane].Byte()
	}
	return out, nil
}

// Exec32 runs an exchange and returns the 32-bit payload of each answer.
func (tx *Tx) Exec32(frames wire.Vector) ([wire.MaxLanes]uint32, error) {
	var out [wire.MaxLanes]uint32
	ex, err := tx.Execute(frames, false)
	if err != nil {
		return out, err
	}
	for _, lane := range ex.Lanes.Lanes() {
		out[lane] = ex.Words[lane].Payload()
	}
	return out, nil
}

// consistent returns the value every lane of mask agrees on.
func consistent(op string, mask wire.Mask, values [wire.MaxLanes]uint32) (uint32, error) {
	first := mask.First()
	if first < 0 {
		return 0, nil
	}
	for _, lane := range mask.Lanes() {
		if values[lane] != values[first] {
			return 0, fmt.Errorf("%w: %s lane %d=0x%08x lane %d=0x%08x",
				ErrInconsistent, op, first, values[first], lane, values[lane])
		}
	}
	return values[first], nil
}
