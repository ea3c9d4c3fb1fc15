package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/cictl/internal/config"
	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
	"github.com/danmuck/cictl/internal/rank"
	"github.com/danmuck/cictl/internal/transport"
	"github.com/danmuck/cictl/internal/transport/sim"
)

// runtimeConfig is everything the host runtime needs to start.
type runtimeConfig struct {
	Rank        rank.Config
	Transport   transport.Spec
	AdminAddr   string
	CorsOrigins []string
	Bringup     bool
}

func defaultRuntimeConfig() runtimeConfig {
	rc := rank.DefaultConfig()
	return runtimeConfig{
		Rank: rc,
		Transport: transport.Spec{
			Kind:         sim.Kind,
			Lanes:        rc.Lanes,
			UnitsPerLane: rc.UnitsPerLane,
			Latency:      1,
		},
		AdminAddr: "127.0.0.1:7020",
		Bringup:   true,
	}
}

// loadRuntimeConfig applies the keys present in path over the defaults.
func loadRuntimeConfig(path string) (runtimeConfig, error) {
	cfg := defaultRuntimeConfig()

	var raw config.RankConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runtimeConfig{}, fmt.Errorf("load cictl config: %w", err)
	}

	if meta.IsDefined("id") {
		cfg.Rank.ID = strings.TrimSpace(raw.ID)
	}
	if meta.IsDefined("lanes") {
		cfg.Rank.Lanes = raw.Lanes
	}
	if meta.IsDefined("units_per_lane") {
		cfg.Rank.UnitsPerLane = raw.UnitsPerLane
	}
	if meta.IsDefined("retry_budget") {
		cfg.Rank.RetryBudget = raw.RetryBudget
	}
	if meta.IsDefined("color_retry_budget") {
		cfg.Rank.ColorRetryBudget = raw.ColorRetryBudget
	}
	if meta.IsDefined("history_size") {
		cfg.Rank.HistorySize = raw.HistorySize
	}
	if meta.IsDefined("clock_division") {
		switch raw.ClockDivision {
		case 2, 3, 4, 8:
			cfg.Rank.ClockDivision = opcode.DivisionForFactor(raw.ClockDivision)
		default:
			return runtimeConfig{}, fmt.Errorf("parse clock_division: unsupported factor %d", raw.ClockDivision)
		}
	}
	if meta.IsDefined("cycle_accurate") {
		cfg.Rank.CycleAccurate = raw.CycleAccurate
	}
	if meta.IsDefined("reset_wait_duration") {
		cfg.Rank.ResetWaitDuration = raw.ResetWaitDuration
	}
	if meta.IsDefined("chip_id") {
		cfg.Rank.ChipID = raw.ChipID
	}
	if meta.IsDefined("thermal_threshold_c") {
		cfg.Rank.ThermalThreshold = wire.TemperatureFromCelsius(raw.ThermalThresholdC)
	}
	if meta.IsDefined("frequency_mhz") {
		cfg.Rank.FrequencyMHz = raw.FrequencyMHz
	}
	if meta.IsDefined("refresh_mode") {
		cfg.Rank.RefreshMode = raw.RefreshMode
	}
	if meta.IsDefined("control_refresh") {
		cfg.Rank.ControlRefresh = raw.ControlRefresh
	}
	if meta.IsDefined("disabled_units") {
		if len(raw.DisabledUnits) > wire.MaxLanes {
			return runtimeConfig{}, fmt.Errorf("parse disabled_units: %d lanes listed", len(raw.DisabledUnits))
		}
		cfg.Rank.DisabledUnits = [wire.MaxLanes]uint8{}
		for lane, units := range raw.DisabledUnits {
			if units < 0 || units > 0xFF {
				return runtimeConfig{}, fmt.Errorf("parse disabled_units[%d]: %d is not a unit bitmap", lane, units)
			}
			cfg.Rank.DisabledUnits[lane] = uint8(units)
		}
	}
	if meta.IsDefined("bringup") {
		cfg.Bringup = raw.Bringup
	}

	if meta.IsDefined("carousel", "cmd_duration") {
		cfg.Rank.Carousel.CmdDuration = raw.Carousel.CmdDuration
	}
	if meta.IsDefined("carousel", "cmd_sampling") {
		cfg.Rank.Carousel.CmdSampling = raw.Carousel.CmdSampling
	}
	if meta.IsDefined("carousel", "res_duration") {
		cfg.Rank.Carousel.ResDuration = raw.Carousel.ResDuration
	}
	if meta.IsDefined("carousel", "res_sampling") {
		cfg.Rank.Carousel.ResSampling = raw.Carousel.ResSampling
	}

	if meta.IsDefined("transport", "kind") {
		cfg.Transport.Kind = strings.TrimSpace(raw.Transport.Kind)
	}
	if meta.IsDefined("transport", "address") {
		cfg.Transport.Address = strings.TrimSpace(raw.Transport.Address)
	}
	if meta.IsDefined("transport", "latency") {
		cfg.Transport.Latency = raw.Transport.Latency
	}
	if meta.IsDefined("transport", "dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Transport.DialTimeout))
		if err != nil {
			return runtimeConfig{}, fmt.Errorf("parse transport.dial_timeout: %w", err)
		}
		cfg.Transport.DialTimeout = d
	}
	if meta.IsDefined("transport", "options") {
		cfg.Transport.Options = raw.Transport.Options
	}

	if meta.IsDefined("admin", "addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.Admin.Addr)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.CorsOrigins = normalizeOrigins(raw.Admin.CorsOrigins)
	}

	cfg.Transport.Lanes = cfg.Rank.Lanes
	cfg.Transport.UnitsPerLane = cfg.Rank.UnitsPerLane
	if err := cfg.Rank.Validate(); err != nil {
		return runtimeConfig{}, err
	}
	if err := transport.ValidateSpec(cfg.Transport); err != nil {
		return runtimeConfig{}, err
	}
	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
