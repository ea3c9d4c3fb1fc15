package rank

import (
	"fmt"
	"sync"
	"time"

	logs "github.com/danmuck/smplog"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danmuck/cictl/internal/logging"
	"github.com/danmuck/cictl/internal/observability"
	"github.com/danmuck/cictl/internal/protocol/bitorder"
	"github.com/danmuck/cictl/internal/protocol/wire"
	"github.com/danmuck/cictl/internal/transport"
)

const temperatureLogInterval = time.Second

// laneContext is the host view of one control interface.
type laneContext struct {
	target    Target
	structure wire.Word
	groups    [wire.MaxGroups]uint8
	enabled   uint8
}

// Rank owns the lane contexts and transport of one rank.
type Rank struct {
	id   string
	cfg  Config
	tr   transport.Transport
	hist *history
	log  zerolog.Logger

	mu           sync.Mutex
	lanes        [wire.MaxLanes]laneContext
	color        wire.Mask
	faultDecode  wire.Mask
	faultCollide wire.Mask
	bits         bitorder.Config
	temps        [wire.MaxLanes]wire.Temperature
	lastTempLog  time.Time
}

// New builds a rank over an already opened transport.
func New(cfg Config, tr transport.Transport) (*Rank, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidConfig)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	r := &Rank{
		id:   cfg.ID,
		cfg:  cfg,
		tr:   tr,
		hist: newHistory(cfg.HistorySize),
		log:  logging.Component("rank").With().Str("rank", cfg.ID).Logger(),
		bits: bitorder.Identity(),
	}
	all := wire.UnitMask(cfg.UnitsPerLane)
	for lane := 0; lane < cfg.Lanes; lane++ {
		enabled := all &^ cfg.DisabledUnits[lane]
		r.lanes[lane] = laneContext{structure: wire.Empty, enabled: enabled}
		r.lanes[lane].groups[0] = enabled
	}
	logs.Infof("rank.New ready rank_id=%q lanes=%d units_per_lane=%d retry_budget=%d", r.id, cfg.Lanes, cfg.UnitsPerLane, cfg.RetryBudget)
	return r, nil
}

// Open resolves spec through reg and builds a rank over the result. Zero
// topology fields in spec are taken from cfg.
func Open(reg *transport.Registry, cfg Config, spec transport.Spec) (*Rank, error) {
	if spec.Lanes == 0 {
		spec.Lanes = cfg.Lanes
	}
	if spec.UnitsPerLane == 0 {
		spec.UnitsPerLane = cfg.UnitsPerLane
	}
	if spec.Lanes != cfg.Lanes || spec.UnitsPerLane != cfg.UnitsPerLane {
		return nil, fmt.Errorf("%w: transport topology %dx%d differs from rank %dx%d",
			ErrInvalidConfig, spec.Lanes, spec.UnitsPerLane, cfg.Lanes, cfg.UnitsPerLane)
	}
	tr, err := reg.Open(spec)
	if err != nil {
		return nil, err
	}
	r, err := New(cfg, tr)
	if err != nil {
		_ = transport.Close(tr)
		return nil, err
	}
	return r, nil
}

func (r *Rank) ID() string     { return r.id }
func (r *Rank) Config() Config { return r.cfg }

// Close releases the transport.
func (r *Rank) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return transport.Close(r.tr)
}

// Tx is the lock-held handle to a rank. It is valid only inside the Do
// callback that received it.
type Tx struct {
	r    *Rank
	done bool
}

// Do runs fn with the rank lock held. Exchanges from other goroutines block
// until fn returns.
func (r *Rank) Do(fn func(tx *Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &Tx{r: r}
	defer func() { tx.done = true }()
	return fn(tx)
}

// topology returns the mask of lanes the rank has.
func (tx *Tx) topology() wire.Mask {
	return wire.FirstLanes(tx.r.cfg.Lanes)
}

func (tx *Tx) checkMask(mask wire.Mask) error {
	if extra := mask &^ tx.topology(); extra != 0 {
		return fmt.Errorf("%w: lanes %s beyond %d lanes", ErrInvalidLane, extra, tx.r.cfg.Lanes)
	}
	return nil
}

func (tx *Tx) checkLane(lane int) error {
	if lane < 0 || lane >= tx.r.cfg.Lanes {
		return fmt.Errorf("%w: %d", ErrInvalidLane, lane)
	}
	return nil
}

func (tx *Tx) checkUnit(unit uint8) error {
	if int(unit) >= tx.r.cfg.UnitsPerLane {
		return fmt.Errorf("%w: %d of %d", ErrInvalidUnit, unit, tx.r.cfg.UnitsPerLane)
	}
	return nil
}

func (tx *Tx) commit(words wire.Vector) error {
	if tx.done {
		return ErrTxDone
	}
	r := tx.r
	r.hist.record(DirWrite, words)
	logs.Tracef("rank.Tx.commit rank_id=%q words=%s", r.id, words)
	if err := r.tr.Commit(words); err != nil {
		observability.RecordTransportError(r.id, "commit")
		r.log.Error().Err(err).Msg("commit_failed")
		return err
	}
	return nil
}

func (tx *Tx) update(words *wire.Vector) error {
	if tx.done {
		return ErrTxDone
	}
	r := tx.r
	if err := r.tr.Update(words); err != nil {
		observability.RecordTransportError(r.id, "update")
		r.log.Error().Err(err).Msg("update_failed")
		return err
	}
	r.hist.record(DirRead, *words)
	logs.Tracef("rank.Tx.update rank_id=%q words=%s", r.id, *words)
	return nil
}

// observeTemperature records the temperature of answered lanes and logs it
// at most once per interval.
func (r *Rank) observeTemperature(words wire.Vector, lanes wire.Mask) {
	for _, lane := range lanes.Lanes() {
		t := wire.TemperatureOf(words[lane])
		r.temps[lane] = t
		observability.SetLaneTemperature(r.id, lane, int(t))
	}
	now := time.Now()
	if now.Sub(r.lastTempLog) < temperatureLogInterval {
		return
	}
	r.lastTempLog = now
	for _, lane := range lanes.Lanes() {
		logs.Debugf("rank.Rank.temperature rank_id=%q lane=%d range=%q", r.id, lane, r.temps[lane])
	}
}

func (r *Rank) dumpHistory(op string) {
	entries := r.hist.recent(0)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		logs.Warnf("rank.Tx.%s history rank_id=%q seq=%d dir=%c words=%s", op, r.id, e.Seq, e.Dir, e.Words)
	}
}
