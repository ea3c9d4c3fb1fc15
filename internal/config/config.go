package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/cictl/internal/transport"
)

// RankConfig is the on-disk shape of a host runtime config.
type RankConfig struct {
	ID                string          `toml:"id"`
	Lanes             int             `toml:"lanes"`
	UnitsPerLane      int             `toml:"units_per_lane"`
	RetryBudget       int             `toml:"retry_budget"`
	ColorRetryBudget  int             `toml:"color_retry_budget"`
	HistorySize       int             `toml:"history_size"`
	ClockDivision     uint32          `toml:"clock_division"`
	CycleAccurate     bool            `toml:"cycle_accurate"`
	ResetWaitDuration int             `toml:"reset_wait_duration"`
	ChipID            uint32          `toml:"chip_id"`
	ThermalThresholdC int             `toml:"thermal_threshold_c"`
	FrequencyMHz      int             `toml:"frequency_mhz"`
	RefreshMode       int             `toml:"refresh_mode"`
	ControlRefresh    bool            `toml:"control_refresh"`
	DisabledUnits     []int           `toml:"disabled_units"`
	Bringup           bool            `toml:"bringup"`
	Carousel          CarouselConfig  `toml:"carousel"`
	Transport         TransportConfig `toml:"transport"`
	Admin             AdminConfig     `toml:"admin"`
}

type CarouselConfig struct {
	CmdDuration uint8 `toml:"cmd_duration"`
	CmdSampling uint8 `toml:"cmd_sampling"`
	ResDuration uint8 `toml:"res_duration"`
	ResSampling uint8 `toml:"res_sampling"`
}

type TransportConfig struct {
	Kind        string            `toml:"kind"`
	Address     string            `toml:"address"`
	Latency     int               `toml:"latency"`
	DialTimeout string            `toml:"dial_timeout"`
	Options     map[string]string `toml:"options"`
}

type AdminConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

// SimConfig is the on-disk shape of a lane simulator daemon config.
type SimConfig struct {
	Addr         string `toml:"addr"`
	Lanes        int    `toml:"lanes"`
	UnitsPerLane int    `toml:"units_per_lane"`
	Latency      int    `toml:"latency"`
	ChipID       uint32 `toml:"chip_id"`
	BitPattern   uint32 `toml:"bit_pattern"`
	TemperatureC int    `toml:"temperature_c"`
	IdleTimeout  string `toml:"idle_timeout"`
}

func LoadRankConfig(path string) (RankConfig, error) {
	cfg := DefaultRankConfig()
	if err := loadToml(path, &cfg); err != nil {
		return RankConfig{}, err
	}
	if err := ValidateRankConfig(cfg); err != nil {
		return RankConfig{}, err
	}
	return cfg, nil
}

func LoadSimConfig(path string) (SimConfig, error) {
	cfg := DefaultSimConfig()
	if err := loadToml(path, &cfg); err != nil {
		return SimConfig{}, err
	}
	if err := ValidateSimConfig(cfg); err != nil {
		return SimConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateRankConfig(cfg RankConfig) error {
	rc, err := cfg.Rank()
	if err != nil {
		return err
	}
	if err := rc.Validate(); err != nil {
		return err
	}
	if err := ValidateTransport(cfg.Transport); err != nil {
		return fmt.Errorf("transport invalid: %w", err)
	}
	if strings.TrimSpace(cfg.Admin.Addr) == "" && len(cfg.Admin.CorsOrigins) > 0 {
		return fmt.Errorf("admin cors_origins set without admin addr")
	}
	return nil
}

func ValidateTransport(cfg TransportConfig) error {
	kind := strings.TrimSpace(cfg.Kind)
	if kind == "" {
		return fmt.Errorf("kind is required")
	}
	if kind == "remote" && strings.TrimSpace(cfg.Address) == "" {
		return fmt.Errorf("address required for remote transport")
	}
	if cfg.Latency < 0 {
		return fmt.Errorf("latency must not be negative")
	}
	if _, err := parseDuration(cfg.DialTimeout); err != nil {
		return fmt.Errorf("dial_timeout: %w", err)
	}
	return nil
}

func ValidateSimConfig(cfg SimConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("lanesim config missing addr")
	}
	if err := transport.ValidateSpec(transport.Spec{
		Kind: "sim", Lanes: cfg.Lanes, UnitsPerLane: cfg.UnitsPerLane, Latency: cfg.Latency,
	}); err != nil {
		return err
	}
	if _, err := parseDuration(cfg.IdleTimeout); err != nil {
		return fmt.Errorf("idle_timeout: %w", err)
	}
	return nil
}

// parseDuration accepts an empty string as zero.
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", raw)
	}
	return d, nil
}
