package opcode

import (
	"testing"

	"github.com/danmuck/cictl/internal/protocol/wire"
	"github.com/danmuck/cictl/internal/testutil/testlog"
)

func TestCommandWordsAreNeverIdleOrNop(t *testing.T) {
	testlog.Start(t)
	words := []wire.Word{
		ByteOrder(), SoftReset(ClockDiv2, false), Identity(), BitOrder(0, 0, 0, 0),
		ThermalConfig(wire.Temp80To90), SelectAllFrame(), SelectUnitStruct(),
		DMACtrlClearFrame(), WRAMReadFrame(0), LoopbackFrame(0, 0),
	}
	for _, w := range words {
		if w == wire.Empty {
			t.Fatalf("command encodes as the empty word")
		}
		if w.Echo() == 0xFF || w.Echo() == 0x00 {
			t.Fatalf("command kind collides with idle/nop echo: %016x", uint64(w))
		}
	}
}

func TestFrameCarriesFamilyAddressAndPayload(t *testing.T) {
	testlog.Start(t)
	c := Decode(LoopbackFrame(2, 0xDEADBEEF))
	if c.Kind != KindFrame || c.Family() != FamilyLoopback {
		t.Fatalf("unexpected kind/family: %s %d", c.Kind, c.Family())
	}
	if c.Address() != 2 || c.Payload != 0xDEADBEEF {
		t.Fatalf("unexpected address/payload: %d 0x%08x", c.Address(), c.Payload)
	}
	if s := Decode(WRAMWriteStruct(0x1234)); s.Kind != KindStructure || s.Address() != 0x1234 {
		t.Fatalf("unexpected structure decode: %+v", s)
	}
}

func TestDMACtrlRegisterNibbles(t *testing.T) {
	testlog.Start(t)
	b := DMACtrlRegister(0xC4, 0x3A)
	want := [6]uint8{0x6C, 0x64, 0x63, 0x6A, 0x60, DMAPathControl}
	if b != want {
		t.Fatalf("unexpected nibbles: got=%x want=%x", b, want)
	}
	got := DMACtrlBytes(Decode(DMACtrlWriteFrame(b)))
	if got != b {
		t.Fatalf("frame lost bytes: got=%x want=%x", got, b)
	}
	addr, data := DMACtrlRegisterArgs(got)
	if addr != 0xC4 || data != 0x3A {
		t.Fatalf("unexpected register args: addr=0x%02x data=0x%02x", addr, data)
	}
}

func TestClockDivisionFactors(t *testing.T) {
	testlog.Start(t)
	for _, factor := range []uint32{2, 3, 4, 8} {
		if got := DivisionForFactor(factor).Factor(); got != factor {
			t.Fatalf("factor %d: got=%d", factor, got)
		}
	}
	if DivisionForFactor(5) != ClockDiv2 {
		t.Fatalf("unknown factor must fall back to div2")
	}
	div, ca := SoftResetArgs(Decode(SoftReset(ClockDiv3, true)))
	if div != ClockDiv3 || !ca {
		t.Fatalf("unexpected soft reset args: %s %v", div, ca)
	}
}

func TestNameLabelsFamilies(t *testing.T) {
	testlog.Start(t)
	if got := Name(WRAMReadFrame(4)); got != "frame:wram_read" {
		t.Fatalf("unexpected name: %q", got)
	}
	if got := Name(SelectAllStruct()); got != "structure:select_all" {
		t.Fatalf("unexpected name: %q", got)
	}
	if got := Name(ByteOrder()); got != "byte_order" {
		t.Fatalf("unexpected name: %q", got)
	}
}
