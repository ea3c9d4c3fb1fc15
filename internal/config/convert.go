package config

import (
	"fmt"
	"time"

	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
	"github.com/danmuck/cictl/internal/rank"
	"github.com/danmuck/cictl/internal/transport"
	"github.com/danmuck/cictl/internal/transport/sim"
)

// DefaultRankConfig mirrors rank.DefaultConfig over an in-process simulator.
func DefaultRankConfig() RankConfig {
	d := rank.DefaultConfig()
	return RankConfig{
		Lanes:             d.Lanes,
		UnitsPerLane:      d.UnitsPerLane,
		RetryBudget:       d.RetryBudget,
		ColorRetryBudget:  d.ColorRetryBudget,
		HistorySize:       d.HistorySize,
		ClockDivision:     d.ClockDivision.Factor(),
		CycleAccurate:     d.CycleAccurate,
		ResetWaitDuration: d.ResetWaitDuration,
		ChipID:            d.ChipID,
		ThermalThresholdC: CelsiusOf(d.ThermalThreshold),
		FrequencyMHz:      d.FrequencyMHz,
		RefreshMode:       d.RefreshMode,
		ControlRefresh:    d.ControlRefresh,
		Bringup:           true,
		Carousel: CarouselConfig{
			CmdDuration: d.Carousel.CmdDuration,
			CmdSampling: d.Carousel.CmdSampling,
			ResDuration: d.Carousel.ResDuration,
			ResSampling: d.Carousel.ResSampling,
		},
		Transport: TransportConfig{Kind: sim.Kind, Latency: 1},
	}
}

func DefaultSimConfig() SimConfig {
	d := sim.DefaultOptions()
	return SimConfig{
		Addr:         "127.0.0.1:7100",
		Lanes:        d.Lanes,
		UnitsPerLane: d.UnitsPerLane,
		Latency:      d.Latency,
		ChipID:       d.ChipID,
		TemperatureC: CelsiusOf(d.Temperature),
	}
}

// CelsiusOf returns the lower bound of a temperature range.
func CelsiusOf(t wire.Temperature) int {
	if t == wire.TempBelow50 {
		return 0
	}
	return 40 + 10*int(t)
}

// Rank converts the file shape into a rank configuration.
func (c RankConfig) Rank() (rank.Config, error) {
	switch c.ClockDivision {
	case 2, 3, 4, 8:
	default:
		return rank.Config{}, fmt.Errorf("%w: clock_division must be 2, 3, 4 or 8, got %d", rank.ErrInvalidConfig, c.ClockDivision)
	}
	if len(c.DisabledUnits) > wire.MaxLanes {
		return rank.Config{}, fmt.Errorf("%w: disabled_units lists %d lanes", rank.ErrInvalidConfig, len(c.DisabledUnits))
	}
	out := rank.Config{
		ID:                c.ID,
		Lanes:             c.Lanes,
		UnitsPerLane:      c.UnitsPerLane,
		RetryBudget:       c.RetryBudget,
		ColorRetryBudget:  c.ColorRetryBudget,
		HistorySize:       c.HistorySize,
		ClockDivision:     opcode.DivisionForFactor(c.ClockDivision),
		CycleAccurate:     c.CycleAccurate,
		ResetWaitDuration: c.ResetWaitDuration,
		ChipID:            c.ChipID,
		ThermalThreshold:  wire.TemperatureFromCelsius(c.ThermalThresholdC),
		Carousel: rank.Carousel{
			CmdDuration: c.Carousel.CmdDuration,
			CmdSampling: c.Carousel.CmdSampling,
			ResDuration: c.Carousel.ResDuration,
			ResSampling: c.Carousel.ResSampling,
		},
		FrequencyMHz:   c.FrequencyMHz,
		RefreshMode:    c.RefreshMode,
		ControlRefresh: c.ControlRefresh,
	}
	for lane, units := range c.DisabledUnits {
		if units < 0 || units > 0xFF {
			return rank.Config{}, fmt.Errorf("%w: disabled_units[%d] = %d is not a unit bitmap", rank.ErrInvalidConfig, lane, units)
		}
		out.DisabledUnits[lane] = uint8(units)
	}
	return out, nil
}

// Spec converts the transport section into a backend spec for the rank
// topology.
func (c RankConfig) Spec() (transport.Spec, error) {
	timeout, err := parseDuration(c.Transport.DialTimeout)
	if err != nil {
		return transport.Spec{}, fmt.Errorf("dial_timeout: %w", err)
	}
	return transport.Spec{
		Kind:         c.Transport.Kind,
		Address:      c.Transport.Address,
		Lanes:        c.Lanes,
		UnitsPerLane: c.UnitsPerLane,
		Latency:      c.Transport.Latency,
		DialTimeout:  timeout,
		Options:      c.Transport.Options,
	}, nil
}

// Options converts a lanesim config into simulator options.
func (c SimConfig) Options() sim.Options {
	return sim.Options{
		Lanes:        c.Lanes,
		UnitsPerLane: c.UnitsPerLane,
		Latency:      c.Latency,
		ChipID:       c.ChipID,
		BitPattern:   c.BitPattern,
		Temperature:  wire.TemperatureFromCelsius(c.TemperatureC),
	}
}

// IdleTimeoutDuration is zero when unset. Call after validation.
func (c SimConfig) IdleTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.IdleTimeout)
	return d
}
