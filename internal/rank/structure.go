package rank

import (
	"github.com/danmuck/cictl/internal/protocol/wire"
)

// WriteStructure sets the structure register of every lane in mask, skipping
// lanes whose cached register already holds it.
func (tx *Tx) WriteStructure(mask wire.Mask, structure wire.Word) error {
	if err := tx.checkMask(mask); err != nil {
		return err
	}
	return tx.writeStructures(wire.Fill(mask, structure))
}

func (tx *Tx) writeStructures(structures wire.Vector) error {
	var stale wire.Vector
	for _, lane := range structures.Mask(tx.r.cfg.Lanes).Lanes() {
		if tx.r.lanes[lane].structure != structures[lane] {
			stale[lane] = structures[lane]
		}
	}
	lanes := stale.Mask(tx.r.cfg.Lanes)
	if lanes == 0 {
		return nil
	}
	if err := tx.ExecVoid(stale); err != nil {
		return err
	}
	for _, lane := range lanes.Lanes() {
		tx.r.lanes[lane].structure = stale[lane]
	}
	return nil
}

// VoidFrame writes structure where needed then sends frame on every lane of
// mask.
func (tx *Tx) VoidFrame(mask wire.Mask, structure, frame wire.Word) error {
	if err := tx.WriteStructure(mask, structure); err != nil {
		return err
	}
	return tx.ExecVoid(wire.Fill(mask, frame))
}

// voidFrames sends one frame per lane behind a shared structure.
func (tx *Tx) voidFrames(structure wire.Word, frames wire.Vector) error {
	mask := frames.Mask(wire.MaxLanes)
	if err := tx.WriteStructure(mask, structure); err != nil {
		return err
	}
	return tx.ExecVoid(frames)
}

func (tx *Tx) Frame8(mask wire.Mask, structure, frame wire.Word) ([wire.MaxLanes]uint8, error) {
	if err := tx.WriteStructure(mask, structure); err != nil {
		return [wire.MaxLanes]uint8{}, err
	}
	return tx.Exec8(wire.Fill(mask, frame))
}

func (tx *Tx) Frame32(mask wire.Mask, structure, frame wire.Word) ([wire.MaxLanes]uint32, error) {
	if err := tx.WriteStructure(mask, structure); err != nil {
		return [wire.MaxLanes]uint32{}, err
	}
	return tx.Exec32(wire.Fill(mask, frame))
}

// frames32 sends one frame per lane behind a shared structure and returns
// the 32-bit answers.
func (tx *Tx) frames32(structure wire.Word, frames wire.Vector) ([wire.MaxLanes]uint32, error) {
	mask := frames.Mask(wire.MaxLanes)
	if err := tx.WriteStructure(mask, structure); err != nil {
		return [wire.MaxLanes]uint32{}, err
	}
	return tx.Exec32(frames)
}
