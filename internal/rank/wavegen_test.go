package rank

import (
	"testing"

	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/testutil/testlog"
)

func TestFetchDMAAndWavegenDiv2(t *testing.T) {
	testlog.Start(t)
	dma, wg := FetchDMAAndWavegen(800, opcode.ClockDiv2, 2, true)
	if dma.RefreshAccess != 24 || dma.ColumnReadLatency != 9 {
		t.Fatalf("unexpected dma timing %+v", dma)
	}
	if wg.Timing.RefreshActiv != 20 || wg.Timing.RefreshPrech != 10 {
		t.Fatalf("unexpected refresh pulses %+v", wg.Timing)
	}
	if wg.Timing.RefreshStart != 2 || wg.Timing.RefreshEnd != 2 {
		t.Fatalf("unexpected refresh bounds %+v", wg.Timing)
	}
	if wg.RefreshInfo != 0x013E {
		t.Fatalf("refresh info 0x%04x", wg.RefreshInfo)
	}
	if wg.RefreshCtrl != 1 || wg.RowHammerConfig != 6 {
		t.Fatalf("unexpected refresh ctrl %d row hammer %d", wg.RefreshCtrl, wg.RowHammerConfig)
	}
}

func TestFetchDMAAndWavegenTables(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		div      opcode.ClockDivision
		activate uint8
		latency  uint8
	}{
		{opcode.ClockDiv2, 0x0A, 9},
		{opcode.ClockDiv3, 0x0F, 8},
		{opcode.ClockDiv4, 0x14, 7},
		{opcode.ClockDiv8, 0x0A, 9},
	}
	for _, tc := range cases {
		dma, wg := FetchDMAAndWavegen(600, tc.div, 1, false)
		if wg.Timing.Activate != tc.activate || dma.ColumnReadLatency != tc.latency {
			t.Fatalf("%s: activate=0x%02x latency=%d", tc.div, wg.Timing.Activate, dma.ColumnReadLatency)
		}
		if wg.RefreshCtrl != 0 {
			t.Fatalf("%s: refresh must stay off when not controlled", tc.div)
		}
		if wg.RefreshInfo>>8&3 != 0 {
			t.Fatalf("%s: refresh mode 1 encodes log2 0, got info 0x%04x", tc.div, wg.RefreshInfo)
		}
	}
}

func TestDMAEnginePackMasksSignedFields(t *testing.T) {
	testlog.Start(t)
	got := DMAEngine{DefaultTimeOrigin: -4}.Pack()
	if got != uint64(0x7C)<<22 {
		t.Fatalf("pack -4: 0x%x", got)
	}
	full := DMAEngine{
		RefreshAccess: 0xFF, ColumnReadLatency: 0xFF, MinimalAccessNumber: 0xFF,
		DefaultTimeOrigin: -1, LDMAToSDMAOrigin: -1,
		XDMAStartActivate: 0xFF, XDMAStartAccess: 0xFF, SDMARWBufferF1: 0xFF,
	}.Pack()
	if full != 1<<43-1 {
		t.Fatalf("all fields set should fill 43 bits: 0x%x", full)
	}
}

func TestRefreshOrderStartsWithUpperHalf(t *testing.T) {
	testlog.Start(t)
	var got []uint8
	for i := 0; i < 8; i++ {
		got = append(got, refreshOrder(i, 8))
	}
	want := []uint8{4, 5, 6, 7, 0, 1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v want %v", got, want)
		}
	}
	if refreshOrder(3, 4) != 3 {
		t.Fatalf("small lanes keep natural order")
	}
}

func TestWavegenRegisterMap(t *testing.T) {
	testlog.Start(t)
	_, wg := FetchDMAAndWavegen(800, opcode.ClockDiv4, 4, true)
	regs := wg.registers()
	if len(regs) != 32+8+5+3 {
		t.Fatalf("unexpected register count %d", len(regs))
	}
	byAddr := map[uint8]uint8{}
	for _, r := range regs {
		byAddr[r.addr] = r.data
	}
	if byAddr[0xC2] != wg.MCBAB.CounterEnable || byAddr[0xDD] != wg.DWBSBEn.Fall {
		t.Fatalf("wavegen block misplaced")
	}
	if byAddr[0xE0] != 0x14 || byAddr[0xE8] != 2 || byAddr[0xFE] != 6 {
		t.Fatalf("timing or sampling misplaced: %v", byAddr)
	}
}
