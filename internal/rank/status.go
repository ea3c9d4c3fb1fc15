package rank

import (
	"github.com/danmuck/cictl/internal/protocol/bitorder"
	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
)

// LaneStatus is a snapshot of one lane context.
type LaneStatus struct {
	Lane        int                   `json:"lane"`
	Target      string                `json:"target"`
	Structure   string                `json:"structure"`
	Groups      [wire.MaxGroups]uint8 `json:"groups"`
	Enabled     uint8                 `json:"enabled"`
	Color       bool                  `json:"color"`
	Decode      bool                  `json:"decode_fault"`
	Collision   bool                  `json:"collision_fault"`
	Temperature string                `json:"temperature"`
}

// Status is a snapshot of a rank.
type Status struct {
	ID           string          `json:"id"`
	Lanes        int             `json:"lanes"`
	UnitsPerLane int             `json:"units_per_lane"`
	Color        wire.Mask       `json:"color"`
	FaultDecode  wire.Mask       `json:"fault_decode"`
	FaultCollide wire.Mask       `json:"fault_collide"`
	BitConfig    bitorder.Config `json:"bit_config"`
	LaneStatus   []LaneStatus    `json:"lane_status"`
}

func (r *Rank) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{
		ID:           r.id,
		Lanes:        r.cfg.Lanes,
		UnitsPerLane: r.cfg.UnitsPerLane,
		Color:        r.color,
		FaultDecode:  r.faultDecode,
		FaultCollide: r.faultCollide,
		BitConfig:    r.bits,
		LaneStatus:   make([]LaneStatus, 0, r.cfg.Lanes),
	}
	for lane := 0; lane < r.cfg.Lanes; lane++ {
		lc := r.lanes[lane]
		bit := wire.LaneBit(lane)
		structure := "none"
		if lc.structure != wire.Empty {
			structure = opcode.Name(lc.structure)
		}
		st.LaneStatus = append(st.LaneStatus, LaneStatus{
			Lane:        lane,
			Target:      lc.target.String(),
			Structure:   structure,
			Groups:      lc.groups,
			Enabled:     lc.enabled,
			Color:       r.color&bit != 0,
			Decode:      r.faultDecode&bit != 0,
			Collision:   r.faultCollide&bit != 0,
			Temperature: r.temps[lane].String(),
		})
	}
	return st
}

// Faults returns the lanes with a latched decode error and those with a
// latched collision.
func (r *Rank) Faults() (decode, collision wire.Mask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.faultDecode, r.faultCollide
}

func (r *Rank) ClearFaults() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faultDecode = 0
	r.faultCollide = 0
}

// History returns up to limit recorded bus vectors, most recent first.
func (r *Rank) History(limit int) []HistoryEntry {
	return r.hist.recent(limit)
}

// Target returns the cached selection of lane.
func (tx *Tx) Target(lane int) (Target, error) {
	if err := tx.checkLane(lane); err != nil {
		return Target{}, err
	}
	return tx.r.lanes[lane].target, nil
}

// Groups returns the cached group membership of lane.
func (tx *Tx) Groups(lane int) ([wire.MaxGroups]uint8, error) {
	if err := tx.checkLane(lane); err != nil {
		return [wire.MaxGroups]uint8{}, err
	}
	return tx.r.lanes[lane].groups, nil
}

// Color returns the host freshness bits.
func (tx *Tx) Color() wire.Mask {
	return tx.r.color
}
