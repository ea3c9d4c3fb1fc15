package rank

import (
	"fmt"

	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
)

// Carousel holds the command and result bus timings.
type Carousel struct {
	CmdDuration uint8
	CmdSampling uint8
	ResDuration uint8
	ResSampling uint8
}

// Config parameterizes one rank.
type Config struct {
	// ID names the rank in logs and metrics; Open fills a random one when empty.
	ID           string
	Lanes        int
	UnitsPerLane int

	// RetryBudget bounds the reads of one exchange.
	RetryBudget int
	// ColorRetryBudget bounds the reads of color recovery.
	ColorRetryBudget int
	HistorySize      int

	ClockDivision     opcode.ClockDivision
	CycleAccurate     bool
	ResetWaitDuration int
	ChipID            uint32
	ThermalThreshold  wire.Temperature
	Carousel          Carousel

	FrequencyMHz   int
	RefreshMode    int
	ControlRefresh bool

	// DisabledUnits is a per-lane bitmap of units kept out of selection.
	DisabledUnits [wire.MaxLanes]uint8
}

func DefaultConfig() Config {
	return Config{
		Lanes:             wire.MaxLanes,
		UnitsPerLane:      wire.MaxUnitsPerLane,
		RetryBudget:       100,
		ColorRetryBudget:  100000,
		HistorySize:       64,
		ClockDivision:     opcode.ClockDiv2,
		ResetWaitDuration: 20,
		ChipID:            opcode.DefaultChipID,
		ThermalThreshold:  wire.Temp90To100,
		Carousel:          Carousel{CmdDuration: 2, CmdSampling: 1, ResDuration: 2, ResSampling: 1},
		FrequencyMHz:      800,
		RefreshMode:       2,
		ControlRefresh:    true,
	}
}

// Validate checks topology and budgets.
func (c Config) Validate() error {
	if c.Lanes < 1 || c.Lanes > wire.MaxLanes {
		return fmt.Errorf("%w: lanes must be 1..%d, got %d", ErrInvalidConfig, wire.MaxLanes, c.Lanes)
	}
	if c.UnitsPerLane < 1 || c.UnitsPerLane > wire.MaxUnitsPerLane {
		return fmt.Errorf("%w: units_per_lane must be 1..%d, got %d", ErrInvalidConfig, wire.MaxUnitsPerLane, c.UnitsPerLane)
	}
	if c.RetryBudget < 1 {
		return fmt.Errorf("%w: retry_budget must be positive", ErrInvalidConfig)
	}
	if c.ColorRetryBudget < 1 {
		return fmt.Errorf("%w: color_retry_budget must be positive", ErrInvalidConfig)
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("%w: history_size must not be negative", ErrInvalidConfig)
	}
	if c.ResetWaitDuration < 0 {
		return fmt.Errorf("%w: reset_wait_duration must not be negative", ErrInvalidConfig)
	}
	if c.ThermalThreshold > wire.TempAbove110 {
		return fmt.Errorf("%w: thermal threshold %d", ErrInvalidConfig, c.ThermalThreshold)
	}
	if c.FrequencyMHz < 100 {
		return fmt.Errorf("%w: frequency_mhz must be at least 100", ErrInvalidConfig)
	}
	if c.RefreshMode < 1 || c.RefreshMode > 4 {
		return fmt.Errorf("%w: refresh_mode must be 1..4, got %d", ErrInvalidConfig, c.RefreshMode)
	}
	switch c.ClockDivision {
	case opcode.ClockDiv2, opcode.ClockDiv3, opcode.ClockDiv4, opcode.ClockDiv8:
	default:
		return fmt.Errorf("%w: clock division %s", ErrInvalidConfig, c.ClockDivision)
	}
	for lane := c.Lanes; lane < wire.MaxLanes; lane++ {
		if c.DisabledUnits[lane] != 0 {
			return fmt.Errorf("%w: disabled units on lane %d beyond %d lanes", ErrInvalidConfig, lane, c.Lanes)
		}
	}
	return nil
}
