package rank

import (
	"errors"
	"testing"

	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
	"github.com/danmuck/cictl/internal/testutil/testlog"
)

// neverReady answers every read with words that fail the completion test.
type neverReady struct {
	commits int
	updates int
}

func (n *neverReady) Commit(wire.Vector) error { n.commits++; return nil }

func (n *neverReady) Update(words *wire.Vector) error {
	n.updates++
	for i := range words {
		words[i] = wire.Nop
	}
	return nil
}

type failingTransport struct{ err error }

func (f failingTransport) Commit(wire.Vector) error  { return f.err }
func (f failingTransport) Update(*wire.Vector) error { return f.err }

func TestExecuteTimesOutAfterExactBudget(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(4, 8)
	cfg.RetryBudget = 7
	tr := &neverReady{}
	r, err := New(cfg, tr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = r.Do(func(tx *Tx) error {
		_, err := tx.Execute(wire.Fill(0b0110, opcode.Identity()), false)
		return err
	})
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !errors.Is(err, ErrTimeout) || Classify(err) != ClassTimeout {
		t.Fatalf("timeout must match ErrTimeout and classify as timeout: %v", err)
	}
	if tr.updates != 7 || te.Attempts != 7 {
		t.Fatalf("expected exactly 7 reads, got updates=%d attempts=%d", tr.updates, te.Attempts)
	}
	if tr.commits != 1 {
		t.Fatalf("commit must never be retried, got %d", tr.commits)
	}
	if te.Pending != 0b0110 || te.Op != "identity" {
		t.Fatalf("unexpected timeout detail: %+v", te)
	}
	if got := len(r.History(0)); got != 8 {
		t.Fatalf("expected 1 commit and 7 reads in history, got %d", got)
	}
}

func TestExecuteEmptyMaskSendsNothing(t *testing.T) {
	testlog.Start(t)
	tr := &neverReady{}
	r, err := New(testConfig(2, 2), tr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	do(t, r, func(tx *Tx) error {
		_, err := tx.Execute(wire.Vector{}, false)
		return err
	})
	if tr.commits != 0 || tr.updates != 0 {
		t.Fatalf("empty exchange touched the bus: commits=%d updates=%d", tr.commits, tr.updates)
	}
}

func TestTransportErrorsPassThrough(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("link down")
	r, err := New(testConfig(2, 2), failingTransport{err: boom})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = r.Do(func(tx *Tx) error {
		return tx.ExecVoid(wire.Fill(0b11, opcode.Identity()))
	})
	if err != boom {
		t.Fatalf("transport error must be returned unchanged, got %v", err)
	}
	if Classify(err) != ClassTransport {
		t.Fatalf("unexpected class %s", Classify(err))
	}
}

func TestFreshnessBandAlternates(t *testing.T) {
	testlog.Start(t)
	r, _, _ := newSimRank(t, testConfig(3, 2), nil)
	want := wire.BandLow
	do(t, r, func(tx *Tx) error {
		for i := 0; i < 6; i++ {
			ex, err := tx.Execute(wire.Fill(0b101, opcode.Identity()), false)
			if err != nil {
				return err
			}
			for _, lane := range []int{0, 2} {
				if got := wire.FreshnessBand(ex.Words[lane].Freshness()); got != want {
					t.Fatalf("exchange %d lane %d: band %s want %s", i, lane, got, want)
				}
			}
			if ex.Words[1] != wire.Empty {
				t.Fatalf("idle lane leaked into result: %016x", uint64(ex.Words[1]))
			}
			if want == wire.BandLow {
				want = wire.BandHigh
			} else {
				want = wire.BandLow
			}
		}
		if tx.Color() != 0 {
			t.Fatalf("an even number of exchanges must leave color clear, got %s", tx.Color())
		}
		return nil
	})
}

func TestFaultClassification(t *testing.T) {
	cases := []struct {
		bits      int
		fault     wire.Fault
		decode    bool
		collision bool
	}{
		{0, wire.FaultNone, false, false},
		{1, wire.FaultDecode, true, false},
		{2, wire.FaultCollision, false, true},
		{3, wire.FaultDecode | wire.FaultCollision, true, true},
	}
	// Faults are measured against the band the lane is expected to answer in,
	// so each case runs once per band. One clean exchange moves to the high band.
	bands := []struct {
		name  string
		clean int
	}{
		{"low", 0},
		{"high", 1},
	}
	for _, band := range bands {
		for _, tc := range cases {
			t.Run(band.name+"/"+tc.fault.String(), func(t *testing.T) {
				testlog.Start(t)
				r, s, _ := newSimRank(t, testConfig(4, 2), nil)
				do(t, r, func(tx *Tx) error {
					for i := 0; i < band.clean; i++ {
						ex, err := tx.Execute(wire.Fill(0b1111, opcode.Identity()), false)
						if err != nil {
							return err
						}
						if ex.Faulted() != 0 {
							t.Fatalf("clean exchange reported faults on %s", ex.Faulted())
						}
					}
					if band.clean%2 == 1 && tx.Color() != 0b1111 {
						t.Fatalf("expected every lane in the high band, color=%s", tx.Color())
					}
					return nil
				})
				if err := s.FlipFreshness(2, tc.bits, 1); err != nil {
					t.Fatalf("FlipFreshness: %v", err)
				}
				var ex Exchange
				do(t, r, func(tx *Tx) error {
					var err error
					ex, err = tx.Execute(wire.Fill(0b1111, opcode.Identity()), false)
					return err
				})
				if ex.Faults[2] != tc.fault {
					t.Fatalf("lane 2 fault=%s want %s", ex.Faults[2], tc.fault)
				}
				for _, lane := range []int{0, 1, 3} {
					if ex.Faults[lane] != wire.FaultNone {
						t.Fatalf("clean lane %d reported %s", lane, ex.Faults[lane])
					}
				}
				decode, collision := r.Faults()
				if decode.Has(2) != tc.decode || collision.Has(2) != tc.collision {
					t.Fatalf("accumulators decode=%s collision=%s", decode, collision)
				}
				if decode&^wire.LaneBit(2) != 0 || collision&^wire.LaneBit(2) != 0 {
					t.Fatalf("faults leaked to other lanes: decode=%s collision=%s", decode, collision)
				}

				// The exchange completed, so the next one is clean.
				do(t, r, func(tx *Tx) error {
					next, err := tx.Execute(wire.Fill(0b1111, opcode.Identity()), false)
					if err == nil && next.Faulted() != 0 {
						t.Fatalf("unexpected faults after recovery: %s", next.Faulted())
					}
					return err
				})
			})
		}
	}
}

func TestFourBitDifferenceIsUnstable(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(2, 2)
	cfg.RetryBudget = 10
	r, s, rec := newSimRank(t, cfg, nil)
	if err := s.FlipFreshness(1, 4, -1); err != nil {
		t.Fatalf("FlipFreshness: %v", err)
	}
	err := r.Do(func(tx *Tx) error {
		_, err := tx.Execute(wire.Fill(0b11, opcode.Identity()), false)
		return err
	})
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if te.Pending != wire.LaneBit(1) {
		t.Fatalf("only the unstable lane may be pending, got %s", te.Pending)
	}
	if rec.updates != cfg.RetryBudget {
		t.Fatalf("expected %d reads, got %d", cfg.RetryBudget, rec.updates)
	}
	decode, collision := r.Faults()
	if decode != 0 || collision != 0 {
		t.Fatalf("unstable lane must not be classified: decode=%s collision=%s", decode, collision)
	}
}

func TestTxUnusableAfterDo(t *testing.T) {
	testlog.Start(t)
	r, _, _ := newSimRank(t, testConfig(1, 1), nil)
	var leaked *Tx
	do(t, r, func(tx *Tx) error {
		leaked = tx
		return nil
	})
	if err := leaked.ExecVoid(wire.Fill(1, opcode.Identity())); !errors.Is(err, ErrTxDone) {
		t.Fatalf("expected ErrTxDone, got %v", err)
	}
}

func TestExecuteRejectsLanesBeyondTopology(t *testing.T) {
	testlog.Start(t)
	r, _, rec := newSimRank(t, testConfig(2, 2), nil)
	err := r.Do(func(tx *Tx) error {
		return tx.ExecVoid(wire.Fill(0b100, opcode.Identity()))
	})
	if !errors.Is(err, ErrInvalidLane) || Classify(err) != ClassInvariant {
		t.Fatalf("expected invalid lane, got %v", err)
	}
	if len(rec.commits) != 0 {
		t.Fatalf("rejected exchange reached the bus")
	}
}
