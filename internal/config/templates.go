package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "rank":
		return rankTemplate, nil
	case "lanesim":
		return simTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const rankTemplate = `id = "rank0"
lanes = 8
units_per_lane = 8
retry_budget = 100
color_retry_budget = 100000
history_size = 64
# division factor: 2, 3, 4 or 8
clock_division = 2
cycle_accurate = false
reset_wait_duration = 20
chip_id = 4
thermal_threshold_c = 90
frequency_mhz = 800
refresh_mode = 2
control_refresh = true
# one unit bitmap per lane
disabled_units = [0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00]
bringup = true

[carousel]
cmd_duration = 2
cmd_sampling = 1
res_duration = 2
res_sampling = 1

[transport]
kind = "sim"
latency = 1
# kind = "remote"
# address = "127.0.0.1:7100"
# dial_timeout = "5s"

[admin]
addr = "127.0.0.1:7020"
cors_origins = ["http://localhost:3000"]
`

const simTemplate = `addr = "127.0.0.1:7100"
lanes = 8
units_per_lane = 8
latency = 1
chip_id = 4
# answer to the neutral bit order command; 0 keeps straight wiring
bit_pattern = 0x00000000
temperature_c = 55
idle_timeout = "0s"
`
