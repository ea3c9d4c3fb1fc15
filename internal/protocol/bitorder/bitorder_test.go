package bitorder

import (
	"testing"

	"github.com/danmuck/cictl/internal/testutil/testlog"
)

func TestComputeStraightWiringIsIdentity(t *testing.T) {
	testlog.Start(t)
	cfg := Compute(IdentityPattern)
	if !cfg.IsIdentity() {
		t.Fatalf("expected identity config, got %+v", cfg)
	}
	if cfg != Identity() {
		t.Fatalf("identity mismatch: got=%+v want=%+v", cfg, Identity())
	}
	for _, v := range []uint32{0, 1, 0xDEADBEEF, 0xFFFFFFFF, 0x12345678} {
		if got := cfg.HostToLane(v); got != v {
			t.Fatalf("identity changed value 0x%08x -> 0x%08x", v, got)
		}
	}
}

func TestComputeSwappedLinesRoundTrip(t *testing.T) {
	testlog.Start(t)
	// Bits 1 and 2 of every high nibble are crossed.
	cfg := Compute(0x00882442)
	if cfg.IsIdentity() {
		t.Fatalf("expected non-identity config")
	}
	if cfg.NibbleSwap != 0 {
		t.Fatalf("unexpected nibble swap: 0x%02x", cfg.NibbleSwap)
	}
	if got := cfg.HostToLane(0x20); got != 0x40 {
		t.Fatalf("unexpected host to lane: got=0x%08x want=0x40", got)
	}
	if got := cfg.HostToLane(0x02); got != 0x02 {
		t.Fatalf("low nibble must be untouched: got=0x%08x", got)
	}
	for _, v := range []uint32{0, 0x20, 0x40, 0xDEADBEEF, 0x0F0F0F0F, 0xF0F0F0F0} {
		if got := cfg.LaneToHost(cfg.HostToLane(v)); got != v {
			t.Fatalf("round trip of 0x%08x gave 0x%08x", v, got)
		}
	}
}

func TestNibbleSwapMovesNibbles(t *testing.T) {
	testlog.Start(t)
	cfg := Compute(0x10000000 | IdentityPattern)
	if cfg.NibbleSwap == 0 {
		t.Fatalf("expected nibble swap")
	}
	if got := cfg.HostToLane(0x0000001F); got != 0x000000F1 {
		t.Fatalf("unexpected swapped value: 0x%08x", got)
	}
	if got := cfg.LaneToHost(cfg.HostToLane(0xA5C3)); got != 0xA5C3 {
		t.Fatalf("swap round trip gave 0x%08x", got)
	}
}

func TestReciprocalInvertsPermutation(t *testing.T) {
	testlog.Start(t)
	for _, code := range []uint8{identityCode, 0xD8, 0x1B, 0x4E, 0x93} {
		if got := reciprocal(reciprocal(code)); got != code {
			t.Fatalf("reciprocal not involutive for 0x%02x: 0x%02x", code, got)
		}
	}
}
