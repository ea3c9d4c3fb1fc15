package rank

import (
	"fmt"

	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
)

// TargetKind is what a lane's current selection addresses.
type TargetKind uint8

const (
	TargetNone TargetKind = iota
	TargetAll
	TargetGroup
	TargetUnit
)

func (k TargetKind) String() string {
	switch k {
	case TargetNone:
		return "none"
	case TargetAll:
		return "all"
	case TargetGroup:
		return "group"
	case TargetUnit:
		return "unit"
	default:
		return fmt.Sprintf("target(%d)", uint8(k))
	}
}

// Target is a lane selection. ID names the group or unit.
type Target struct {
	Kind TargetKind
	ID   uint8
}

func (t Target) String() string {
	switch t.Kind {
	case TargetGroup, TargetUnit:
		return fmt.Sprintf("%s(%d)", t.Kind, t.ID)
	default:
		return t.Kind.String()
	}
}

// Groups written by InitGroups.
const (
	EnabledGroup  uint8 = 0
	DisabledGroup uint8 = 1
)

func (tx *Tx) validateTarget(t Target) error {
	switch t.Kind {
	case TargetAll:
		return nil
	case TargetGroup:
		if t.ID >= wire.MaxGroups {
			return fmt.Errorf("%w: %d", ErrInvalidGroup, t.ID)
		}
		return nil
	case TargetUnit:
		return tx.checkUnit(t.ID)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidTarget, t)
	}
}

// targetUnits returns the units t would address on lane from the host's
// point of view.
func (tx *Tx) targetUnits(lane int, t Target, evenDisabled bool) uint8 {
	lc := &tx.r.lanes[lane]
	switch t.Kind {
	case TargetAll:
		if evenDisabled {
			return wire.UnitMask(tx.r.cfg.UnitsPerLane)
		}
		return lc.enabled
	case TargetGroup:
		return lc.groups[t.ID]
	case TargetUnit:
		bit := uint8(1) << t.ID
		if !evenDisabled {
			bit &= lc.enabled
		}
		return bit
	default:
		return 0
	}
}

// selectedUnits returns the units the lane's hardware selection addresses,
// which is what a selection acknowledgement reports.
func (tx *Tx) selectedUnits(lane int) uint8 {
	lc := &tx.r.lanes[lane]
	switch lc.target.Kind {
	case TargetAll:
		return wire.UnitMask(tx.r.cfg.UnitsPerLane)
	case TargetGroup:
		return lc.groups[lc.target.ID]
	case TargetUnit:
		return uint8(1) << lc.target.ID
	default:
		return 0
	}
}

func selectWords(t Target) (structure, frame wire.Word) {
	switch t.Kind {
	case TargetGroup:
		return opcode.SelectGroupStruct(), opcode.SelectGroupFrame(t.ID)
	case TargetUnit:
		return opcode.SelectUnitStruct(), opcode.SelectUnitFrame(t.ID)
	default:
		return opcode.SelectAllStruct(), opcode.SelectAllFrame()
	}
}

// laneTarget is what t selects on lane. Select-all on a lane with disabled
// units falls back to EnabledGroup so the disabled units stay unaddressed.
func (tx *Tx) laneTarget(lane int, t Target, evenDisabled bool) Target {
	if t.Kind != TargetAll || evenDisabled {
		return t
	}
	if tx.r.lanes[lane].enabled == wire.UnitMask(tx.r.cfg.UnitsPerLane) {
		return t
	}
	return Target{Kind: TargetGroup, ID: EnabledGroup}
}

// selectTarget narrows mask to lanes where t addresses at least one unit and
// selects t on those whose cached target differs. Uncached selection also
// rewrites the structure register.
func (tx *Tx) selectTarget(mask wire.Mask, t Target, cached, evenDisabled bool) (wire.Mask, error) {
	if err := tx.checkMask(mask); err != nil {
		return 0, err
	}
	if err := tx.validateTarget(t); err != nil {
		return 0, err
	}
	var narrowed, emit wire.Mask
	var targets [wire.MaxLanes]Target
	var structures, frames wire.Vector
	for _, lane := range mask.Lanes() {
		if tx.targetUnits(lane, t, evenDisabled) == 0 {
			continue
		}
		narrowed |= wire.LaneBit(lane)
		lt := tx.laneTarget(lane, t, evenDisabled)
		if cached && tx.r.lanes[lane].target == lt {
			continue
		}
		emit |= wire.LaneBit(lane)
		targets[lane] = lt
		structures[lane], frames[lane] = selectWords(lt)
	}
	if emit == 0 {
		return narrowed, nil
	}
	if !cached {
		tx.invalidateStructures(emit)
	}
	if err := tx.writeStructures(structures); err != nil {
		return 0, err
	}
	if err := tx.ExecVoid(frames); err != nil {
		return 0, err
	}
	for _, lane := range emit.Lanes() {
		tx.r.lanes[lane].target = targets[lane]
	}
	return narrowed, nil
}

// SelectLanes narrows mask to lanes with at least one enabled unit without
// touching the bus.
func (tx *Tx) SelectLanes(mask wire.Mask) (wire.Mask, error) {
	if err := tx.checkMask(mask); err != nil {
		return 0, err
	}
	var out wire.Mask
	for _, lane := range mask.Lanes() {
		if tx.r.lanes[lane].enabled != 0 {
			out |= wire.LaneBit(lane)
		}
	}
	return out, nil
}

func (tx *Tx) SelectAll(mask wire.Mask) (wire.Mask, error) {
	return tx.selectTarget(mask, Target{Kind: TargetAll}, true, false)
}

func (tx *Tx) SelectAllUncached(mask wire.Mask) (wire.Mask, error) {
	return tx.selectTarget(mask, Target{Kind: TargetAll}, false, false)
}

// SelectAllEvenDisabled selects every unit of every lane in mask, enabled or
// not.
func (tx *Tx) SelectAllEvenDisabled(mask wire.Mask) (wire.Mask, error) {
	return tx.selectTarget(mask, Target{Kind: TargetAll}, true, true)
}

func (tx *Tx) SelectGroup(mask wire.Mask, group uint8) (wire.Mask, error) {
	return tx.selectTarget(mask, Target{Kind: TargetGroup, ID: group}, true, false)
}

func (tx *Tx) SelectGroupUncached(mask wire.Mask, group uint8) (wire.Mask, error) {
	return tx.selectTarget(mask, Target{Kind: TargetGroup, ID: group}, false, false)
}

func (tx *Tx) SelectUnit(mask wire.Mask, unit uint8) (wire.Mask, error) {
	return tx.selectTarget(mask, Target{Kind: TargetUnit, ID: unit}, true, false)
}

func (tx *Tx) SelectUnitUncached(mask wire.Mask, unit uint8) (wire.Mask, error) {
	return tx.selectTarget(mask, Target{Kind: TargetUnit, ID: unit}, false, false)
}

func (tx *Tx) SelectUnitEvenDisabled(mask wire.Mask, unit uint8) (wire.Mask, error) {
	return tx.selectTarget(mask, Target{Kind: TargetUnit, ID: unit}, true, true)
}

// WriteGroup moves the currently selected units of every lane in mask into
// group. Lanes with nothing selected are skipped.
func (tx *Tx) WriteGroup(mask wire.Mask, group uint8) error {
	if err := tx.checkMask(mask); err != nil {
		return err
	}
	var groups [wire.MaxLanes]uint8
	var lanes wire.Mask
	for _, lane := range mask.Lanes() {
		groups[lane] = group
		lanes |= wire.LaneBit(lane)
	}
	return tx.writeGroups(lanes, groups)
}

func (tx *Tx) writeGroups(mask wire.Mask, groups [wire.MaxLanes]uint8) error {
	var frames wire.Vector
	for _, lane := range mask.Lanes() {
		if groups[lane] >= wire.MaxGroups {
			return fmt.Errorf("%w: %d", ErrInvalidGroup, groups[lane])
		}
		if tx.selectedUnits(lane) == 0 {
			continue
		}
		frames[lane] = opcode.WriteGroupFrame(groups[lane])
	}
	lanes := frames.Mask(tx.r.cfg.Lanes)
	if lanes == 0 {
		return nil
	}
	if err := tx.voidFrames(opcode.WriteGroupStruct(), frames); err != nil {
		return err
	}
	for _, lane := range lanes.Lanes() {
		lc := &tx.r.lanes[lane]
		sel := tx.selectedUnits(lane)
		for g := range lc.groups {
			lc.groups[g] &^= sel
		}
		lc.groups[groups[lane]] |= sel
	}
	return nil
}

// SetEnabled marks one unit enabled or disabled. Group membership is not
// rewritten until InitGroups.
func (tx *Tx) SetEnabled(lane int, unit uint8, on bool) error {
	if err := tx.checkLane(lane); err != nil {
		return err
	}
	if err := tx.checkUnit(unit); err != nil {
		return err
	}
	if on {
		tx.r.lanes[lane].enabled |= 1 << unit
	} else {
		tx.r.lanes[lane].enabled &^= 1 << unit
	}
	return nil
}

// EnableAll enables every unit of the lanes in mask.
func (tx *Tx) EnableAll(mask wire.Mask) error {
	if err := tx.checkMask(mask); err != nil {
		return err
	}
	for _, lane := range mask.Lanes() {
		tx.r.lanes[lane].enabled = wire.UnitMask(tx.r.cfg.UnitsPerLane)
	}
	return nil
}

// Enabled returns the enabled-unit bitmap of every lane.
func (tx *Tx) Enabled() [wire.MaxLanes]uint8 {
	var out [wire.MaxLanes]uint8
	for lane := 0; lane < tx.r.cfg.Lanes; lane++ {
		out[lane] = tx.r.lanes[lane].enabled
	}
	return out
}

func (tx *Tx) setEnabled(enabled [wire.MaxLanes]uint8) {
	for lane := 0; lane < tx.r.cfg.Lanes; lane++ {
		tx.r.lanes[lane].enabled = enabled[lane]
	}
}

// InitGroups puts enabled units in EnabledGroup and disabled units in
// DisabledGroup on every lane of mask.
func (tx *Tx) InitGroups(mask wire.Mask) error {
	if err := tx.checkMask(mask); err != nil {
		return err
	}
	all := wire.UnitMask(tx.r.cfg.UnitsPerLane)
	var full, partial wire.Mask
	for _, lane := range mask.Lanes() {
		if tx.r.lanes[lane].enabled == all {
			full |= wire.LaneBit(lane)
		} else {
			partial |= wire.LaneBit(lane)
		}
	}
	if full != 0 {
		lanes, err := tx.SelectAll(full)
		if err != nil {
			return err
		}
		if err := tx.WriteGroup(lanes, EnabledGroup); err != nil {
			return err
		}
	}
	if partial == 0 {
		return nil
	}
	for unit := uint8(0); int(unit) < tx.r.cfg.UnitsPerLane; unit++ {
		lanes, err := tx.SelectUnitEvenDisabled(partial, unit)
		if err != nil {
			return err
		}
		var groups [wire.MaxLanes]uint8
		for _, lane := range lanes.Lanes() {
			groups[lane] = DisabledGroup
			if tx.r.lanes[lane].enabled&(1<<unit) != 0 {
				groups[lane] = EnabledGroup
			}
		}
		if err := tx.writeGroups(lanes, groups); err != nil {
			return err
		}
	}
	return nil
}
