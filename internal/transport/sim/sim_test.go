package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
	"github.com/danmuck/cictl/internal/testutil/testlog"
	"github.com/danmuck/cictl/internal/transport"
)

func newRank(t *testing.T, lanes, units, latency int) *Rank {
	t.Helper()
	opts := DefaultOptions()
	opts.Lanes, opts.UnitsPerLane, opts.Latency = lanes, units, latency
	r, err := New(opts)
	require.NoError(t, err)
	return r
}

// exchange commits w on lane 0 and reads until the lane answers.
func exchange(t *testing.T, r *Rank, w wire.Word) wire.Word {
	t.Helper()
	require.NoError(t, r.Commit(wire.Fill(wire.LaneBit(0), w)))
	var v wire.Vector
	for i := 0; i < 16; i++ {
		require.NoError(t, r.Update(&v))
		if v[0].Echo() == 0 {
			return v[0]
		}
	}
	t.Fatalf("lane never answered %016x", uint64(w))
	return 0
}

func TestIdleLaneReadsNop(t *testing.T) {
	testlog.Start(t)
	r := newRank(t, 2, 4, 0)
	var v wire.Vector
	require.NoError(t, r.Update(&v))
	assert.Equal(t, wire.Nop, v[0])
	assert.Equal(t, wire.Nop, v[1])
	assert.Equal(t, wire.Empty, v[2])
}

func TestBusyThenAnswerWithAlternatingFreshness(t *testing.T) {
	testlog.Start(t)
	r := newRank(t, 1, 4, 2)
	require.NoError(t, r.Commit(wire.Fill(wire.LaneBit(0), opcode.Identity())))

	var v wire.Vector
	for i := 0; i < 2; i++ {
		require.NoError(t, r.Update(&v))
		assert.False(t, v[0].Consumed())
		assert.False(t, v[0].HasZeroByte())
	}
	require.NoError(t, r.Update(&v))
	require.True(t, v[0].Consumed())
	assert.Equal(t, wire.BandLow, wire.FreshnessBand(v[0].Freshness()))

	second := exchange(t, r, opcode.Identity())
	assert.Equal(t, wire.BandHigh, wire.FreshnessBand(second.Freshness()))
	third := exchange(t, r, opcode.Identity())
	assert.Equal(t, wire.BandLow, wire.FreshnessBand(third.Freshness()))
}

func TestSoftResetReturnsToNopAndClearsColor(t *testing.T) {
	testlog.Start(t)
	r := newRank(t, 1, 4, 0)
	exchange(t, r, opcode.Identity())
	require.NoError(t, r.Commit(wire.Fill(wire.LaneBit(0), opcode.SoftReset(opcode.ClockDiv4, false))))

	var v wire.Vector
	require.NoError(t, r.Update(&v))
	assert.Equal(t, wire.Nop, v[0])
	st, err := r.Lane(0)
	require.NoError(t, err)
	assert.False(t, st.Color)
	assert.Equal(t, opcode.ClockDiv4, st.Division)
}

func TestByteOrderAnswer(t *testing.T) {
	testlog.Start(t)
	r := newRank(t, 1, 4, 1)
	assert.Equal(t, opcode.ByteOrderResult, exchange(t, r, opcode.ByteOrder()))
}

func TestSelectionAndWRAMAck(t *testing.T) {
	testlog.Start(t)
	r := newRank(t, 1, 4, 0)
	exchange(t, r, opcode.SelectUnitStruct())
	exchange(t, r, opcode.SelectUnitFrame(2))
	exchange(t, r, opcode.WRAMWriteStruct(0x10))
	ack := exchange(t, r, opcode.WRAMWriteFrame(0x10, 0xCAFEF00D))
	assert.Equal(t, uint8(1<<2), ack.Byte())

	got, err := r.WRAM(0, 2, 0x10)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xCAFEF00D), got)

	exchange(t, r, opcode.WRAMReadStruct())
	assert.Equal(t, uint32(0xCAFEF00D), exchange(t, r, opcode.WRAMReadFrame(0x10)).Payload())
	assert.Zero(t, r.Stats().Violations)
}

func TestInspectionReadsPerUnitState(t *testing.T) {
	testlog.Start(t)
	r := newRank(t, 2, 4, 0)
	exchange(t, r, opcode.SelectUnitStruct())
	exchange(t, r, opcode.SelectUnitFrame(1))
	exchange(t, r, opcode.DMACtrlWriteStruct())
	exchange(t, r, opcode.DMACtrlWriteFrame(opcode.DMACtrlRegister(0x42, 0x5A)))

	got, err := r.DMARegister(0, 1, 0x42)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x5A), got)
	got, err = r.DMARegister(0, 0, 0x42)
	require.NoError(t, err)
	assert.Zero(t, got)

	_, err = r.DMARegister(0, 4, 0x42)
	assert.ErrorIs(t, err, ErrUnitRange)
	_, err = r.DMARegister(2, 0, 0x42)
	assert.ErrorIs(t, err, ErrLaneRange)
	_, err = r.WRAM(0, -1, 0)
	assert.ErrorIs(t, err, ErrUnitRange)
	_, err = r.WRAM(5, 0, 0)
	assert.ErrorIs(t, err, ErrLaneRange)
	assert.ErrorIs(t, r.FlipFreshness(2, 1, 1), ErrLaneRange)
	assert.ErrorIs(t, r.DropValid(-1, true), ErrLaneRange)
	assert.Zero(t, r.Stats().Violations)
}

func TestFrameWithoutStructureIsViolation(t *testing.T) {
	testlog.Start(t)
	r := newRank(t, 1, 4, 0)
	exchange(t, r, opcode.LoopbackFrame(0, 1))
	assert.Equal(t, 1, r.Stats().Violations)
}

func TestInjectedFaults(t *testing.T) {
	testlog.Start(t)
	r := newRank(t, 1, 4, 0)
	require.NoError(t, r.FlipFreshness(0, 2, 1))
	w := exchange(t, r, opcode.Identity())
	assert.Equal(t, 2, wire.Distance(w.Freshness(), wire.BandLow))
	w = exchange(t, r, opcode.Identity())
	assert.Equal(t, 0, wire.Distance(w.Freshness(), wire.BandHigh))

	require.NoError(t, r.DropValid(0, true))
	w = exchange(t, r, opcode.Identity())
	assert.False(t, w.Consumed())

	r.ClearInjections()
	require.NoError(t, r.Stall(0, true))
	require.NoError(t, r.Commit(wire.Fill(wire.LaneBit(0), opcode.Identity())))
	var v wire.Vector
	for i := 0; i < 4; i++ {
		require.NoError(t, r.Update(&v))
		assert.NotZero(t, v[0].Echo())
	}
	assert.ErrorIs(t, r.Stall(9, true), ErrLaneRange)
}

func TestBackendOpenParsesOptions(t *testing.T) {
	testlog.Start(t)
	reg := transport.NewRegistry()
	require.NoError(t, reg.Register(NewBackend()))
	tr, err := reg.Open(transport.Spec{
		Kind: Kind, Lanes: 2, UnitsPerLane: 8,
		Options: map[string]string{"chip_id": "0x7", "temperature_c": "95"},
	})
	require.NoError(t, err)
	r := tr.(*Rank)
	w := exchange(t, r, opcode.Identity())
	assert.Equal(t, uint32(0x7), w.Payload())
	assert.Equal(t, wire.Temp90To100, wire.TemperatureOf(w))
	require.NoError(t, transport.Close(tr))
	assert.ErrorIs(t, r.Commit(wire.Vector{}), ErrClosed)

	_, err = reg.Open(transport.Spec{Kind: Kind, Lanes: 1, UnitsPerLane: 1, Options: map[string]string{"chip_id": "x"}})
	assert.Error(t, err)
}
