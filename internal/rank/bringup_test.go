package rank

import (
	"errors"
	"testing"

	"github.com/danmuck/cictl/internal/protocol/bitorder"
	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
	"github.com/danmuck/cictl/internal/testutil/testlog"
	"github.com/danmuck/cictl/internal/transport/sim"
)

func TestBringupProgramsSimulatedRank(t *testing.T) {
	testlog.Start(t)
	const pattern = 0x00882442
	cfg := testConfig(4, 8)
	cfg.DisabledUnits[3] = 0b1000_0001
	r, s, _ := newSimRank(t, cfg, func(o *sim.Options) { o.BitPattern = pattern })

	if err := r.Bringup(); err != nil {
		t.Fatalf("Bringup: %v", err)
	}
	if s.Stats().Violations != 0 {
		t.Fatalf("simulator saw %d protocol violations", s.Stats().Violations)
	}

	wantBits := bitorder.Compute(pattern)
	wantBits.Stutter = 0
	do(t, r, func(tx *Tx) error {
		if tx.ActiveBitConfig() != wantBits {
			t.Fatalf("active bit config %+v want %+v", tx.ActiveBitConfig(), wantBits)
		}
		if got := tx.Enabled()[3]; got != 0b0111_1110 {
			t.Fatalf("enabled units not restored: 0x%02x", got)
		}
		return nil
	})

	for lane := 0; lane < cfg.Lanes; lane++ {
		st, err := s.Lane(lane)
		if err != nil {
			t.Fatalf("Lane: %v", err)
		}
		if st.BitConfig != wantBits {
			t.Fatalf("lane %d programmed %+v", lane, st.BitConfig)
		}
		if st.Division != cfg.ClockDivision {
			t.Fatalf("lane %d division %s", lane, st.Division)
		}
		if st.Threshold != cfg.ThermalThreshold {
			t.Fatalf("lane %d threshold %s", lane, st.Threshold)
		}
		c := cfg.Carousel
		if st.Carousel != [4]uint8{c.CmdDuration, c.CmdSampling, c.ResDuration, c.ResSampling} {
			t.Fatalf("lane %d carousel %v", lane, st.Carousel)
		}
		if st.RegisterFileTiming != RFRAMTimingSafe {
			t.Fatalf("lane %d register file timing %d", lane, st.RegisterFileTiming)
		}
		// Three instruction repair frames and six per working memory bank.
		if st.RepairFrames != 3+6*WRAMBanks {
			t.Fatalf("lane %d saw %d repair frames", lane, st.RepairFrames)
		}
		wantGroups := [wire.MaxGroups]uint8{0: 0xFF}
		if lane == 3 {
			wantGroups = [wire.MaxGroups]uint8{0: 0b0111_1110, 1: 0b1000_0001}
		}
		if st.Groups != wantGroups {
			t.Fatalf("lane %d groups %v want %v", lane, st.Groups, wantGroups)
		}

		for unit := 0; unit < cfg.UnitsPerLane; unit++ {
			nibble, _ := s.DMARegister(lane, unit, regNibbleSwap)
			c2dLow, _ := s.DMARegister(lane, unit, regC2DLow)
			if nibble != wantBits.NibbleSwap || c2dLow != uint8(wantBits.CPU2DPU) {
				t.Fatalf("lane %d unit %d shuffling box nibble=0x%02x c2d=0x%02x", lane, unit, nibble, c2dLow)
			}
			refresh, _ := s.DMARegister(lane, unit, regRefreshCtrl)
			if refresh != 1 {
				t.Fatalf("lane %d unit %d refresh ctrl %d", lane, unit, refresh)
			}
		}
	}

	_, wg := FetchDMAAndWavegen(cfg.FrequencyMHz, cfg.ClockDivision, cfg.RefreshMode, cfg.ControlRefresh)
	lo, _ := s.DMARegister(0, 0, regRefreshInfoLo)
	hi, _ := s.DMARegister(0, 0, regRefreshInfoHi)
	if uint16(hi)<<8|uint16(lo) != wg.RefreshInfo {
		t.Fatalf("refresh info 0x%02x%02x want 0x%04x", hi, lo, wg.RefreshInfo)
	}

	// The rank is usable afterwards.
	do(t, r, func(tx *Tx) error {
		lanes, err := tx.SelectGroup(wire.FirstLanes(cfg.Lanes), EnabledGroup)
		if err != nil {
			return err
		}
		return tx.WRAMWrite(lanes, 0x40, [wire.MaxLanes]uint32{1, 2, 3, 4})
	})
	if v, _ := s.WRAM(3, 1, 0x40); v != 4 {
		t.Fatalf("enabled unit missed the write: %d", v)
	}
	if v, _ := s.WRAM(3, 0, 0x40); v != 0 {
		t.Fatalf("disabled unit was written: %d", v)
	}
}

func TestBringupRejectsWrongChip(t *testing.T) {
	testlog.Start(t)
	r, _, _ := newSimRank(t, testConfig(2, 2), func(o *sim.Options) { o.ChipID = 0x5 })
	err := r.Bringup()
	if !errors.Is(err, ErrIdentity) {
		t.Fatalf("expected identity mismatch, got %v", err)
	}
	if Classify(err) != ClassFault {
		t.Fatalf("unexpected class %s", Classify(err))
	}
}

func TestBringupSurfacesStalledLane(t *testing.T) {
	testlog.Start(t)
	r, s, _ := newSimRank(t, testConfig(2, 2), nil)
	if err := s.Stall(1, true); err != nil {
		t.Fatalf("Stall: %v", err)
	}
	err := r.Bringup()
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if te.Pending != wire.LaneBit(1) || te.Op != "byte_order" {
		t.Fatalf("unexpected timeout detail %+v", te)
	}
}

func TestIdentityUsesActiveBitConfig(t *testing.T) {
	testlog.Start(t)
	r, _, _ := newSimRank(t, testConfig(2, 2), func(o *sim.Options) { o.BitPattern = 0x10884422 })
	do(t, r, func(tx *Tx) error {
		bits, err := tx.DiscoverBitConfig(0b11)
		if err != nil {
			return err
		}
		if _, err := tx.BitConfig(0b11, &bits); err != nil {
			return err
		}
		ids, err := tx.Identity(0b11)
		if err != nil {
			return err
		}
		if ids[0] != opcode.DefaultChipID || ids[1] != opcode.DefaultChipID {
			t.Fatalf("identity through swapped nibbles: %x", ids)
		}
		return nil
	})
}
