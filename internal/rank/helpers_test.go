package rank

import (
	"testing"

	"github.com/danmuck/cictl/internal/protocol/wire"
	"github.com/danmuck/cictl/internal/transport"
	"github.com/danmuck/cictl/internal/transport/sim"
)

// recorder wraps a transport and keeps every committed vector.
type recorder struct {
	inner   transport.Transport
	commits []wire.Vector
	updates int
}

func (r *recorder) Commit(words wire.Vector) error {
	r.commits = append(r.commits, words)
	return r.inner.Commit(words)
}

func (r *recorder) Update(words *wire.Vector) error {
	r.updates++
	return r.inner.Update(words)
}

func (r *recorder) last() wire.Vector {
	if len(r.commits) == 0 {
		return wire.Vector{}
	}
	return r.commits[len(r.commits)-1]
}

func testConfig(lanes, units int) Config {
	cfg := DefaultConfig()
	cfg.ID = "test-rank"
	cfg.Lanes = lanes
	cfg.UnitsPerLane = units
	cfg.RetryBudget = 16
	cfg.ColorRetryBudget = 64
	cfg.ResetWaitDuration = 4
	return cfg
}

// newSimRank builds a rank over a recorded simulator.
func newSimRank(t *testing.T, cfg Config, tweak func(*sim.Options)) (*Rank, *sim.Rank, *recorder) {
	t.Helper()
	opts := sim.DefaultOptions()
	opts.Lanes = cfg.Lanes
	opts.UnitsPerLane = cfg.UnitsPerLane
	if tweak != nil {
		tweak(&opts)
	}
	s, err := sim.New(opts)
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}
	rec := &recorder{inner: s}
	r, err := New(cfg, rec)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, s, rec
}

func do(t *testing.T, r *Rank, fn func(tx *Tx) error) {
	t.Helper()
	if err := r.Do(fn); err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func targetOf(t *testing.T, tx *Tx, lane int) Target {
	t.Helper()
	got, err := tx.Target(lane)
	if err != nil {
		t.Fatalf("Target(%d): %v", lane, err)
	}
	return got
}

func groupsOf(t *testing.T, tx *Tx, lane int) [wire.MaxGroups]uint8 {
	t.Helper()
	got, err := tx.Groups(lane)
	if err != nil {
		t.Fatalf("Groups(%d): %v", lane, err)
	}
	return got
}
