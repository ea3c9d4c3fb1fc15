package rank

import (
	"fmt"
	"time"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
)

// Bringup runs the full rank reset and configuration sequence.
func (r *Rank) Bringup() error {
	return r.Do(func(tx *Tx) error { return tx.Bringup() })
}

// Bringup resets every lane with at least one enabled unit and programs it
// from the rank config. Disabled units take part in the configuration and
// are put back in DisabledGroup at the end.
func (tx *Tx) Bringup() error {
	r := tx.r
	started := time.Now()
	saved := tx.Enabled()
	mask, err := tx.SelectLanes(tx.topology())
	if err != nil {
		return err
	}
	if err := tx.EnableAll(mask); err != nil {
		return err
	}
	restore := func() { tx.setEnabled(saved) }

	step := func(name string, fn func() error) error {
		if err := fn(); err != nil {
			restore()
			r.log.Error().Err(err).Str("step", name).Str("lanes", mask.String()).Msg("bringup_failed")
			return fmt.Errorf("bringup %s: %w", name, err)
		}
		logs.Debugf("rank.Tx.Bringup step=%s rank_id=%q lanes=%s", name, r.id, mask)
		return nil
	}
	selectAll := func() (wire.Mask, error) { return tx.SelectAll(mask) }

	if err := step("byte_order", func() error {
		words, err := tx.ByteOrder(mask)
		if err != nil {
			return err
		}
		return CheckByteOrder(words, mask)
	}); err != nil {
		return err
	}
	if err := step("soft_reset_div8", func() error {
		return tx.SoftReset(mask, opcode.ClockDiv8, false)
	}); err != nil {
		return err
	}
	bits, err := tx.DiscoverBitConfig(mask)
	if err != nil {
		restore()
		return fmt.Errorf("bringup bit_order: %w", err)
	}
	if err := step("bit_config", func() error {
		_, err := tx.BitConfig(mask, &bits)
		return err
	}); err != nil {
		return err
	}
	if err := step("soft_reset", func() error {
		return tx.SoftReset(mask, r.cfg.ClockDivision, r.cfg.CycleAccurate)
	}); err != nil {
		return err
	}
	if err := step("bit_config_after_reset", func() error {
		_, err := tx.BitConfig(mask, &bits)
		return err
	}); err != nil {
		return err
	}
	if err := step("identity", func() error { return tx.CheckIdentity(mask) }); err != nil {
		return err
	}
	if err := step("thermal", func() error { return tx.ThermalConfig(mask, r.cfg.ThermalThreshold) }); err != nil {
		return err
	}
	if err := step("carousel", func() error {
		lanes, err := selectAll()
		if err != nil {
			return err
		}
		return tx.CarouselConfig(lanes, r.cfg.Carousel)
	}); err != nil {
		return err
	}
	if err := step("iram_repair", func() error {
		lanes, err := selectAll()
		if err != nil {
			return err
		}
		return tx.IRAMRepairConfig(lanes, DefaultRepairConfigs())
	}); err != nil {
		return err
	}
	if err := step("wram_repair", func() error {
		for bank := uint8(0); bank < WRAMBanks; bank++ {
			lanes, err := selectAll()
			if err != nil {
				return err
			}
			if err := tx.WRAMRepairConfig(lanes, bank, DefaultRepairConfigs()); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	dma, wg := FetchDMAAndWavegen(r.cfg.FrequencyMHz, r.cfg.ClockDivision, r.cfg.RefreshMode, r.cfg.ControlRefresh)
	if r.cfg.CycleAccurate {
		dma = CycleAccurateDMA()
	}
	if err := step("dma_config", func() error {
		lanes, err := selectAll()
		if err != nil {
			return err
		}
		return tx.DMAConfig(lanes, dma)
	}); err != nil {
		return err
	}
	if err := step("shuffling_box", func() error {
		lanes, err := selectAll()
		if err != nil {
			return err
		}
		return tx.ShufflingBoxConfig(lanes, bits)
	}); err != nil {
		return err
	}
	if err := step("wavegen", func() error { return tx.WavegenConfig(mask, wg) }); err != nil {
		return err
	}

	restore()
	if err := step("init_groups", func() error { return tx.InitGroups(mask) }); err != nil {
		return err
	}
	r.log.Info().
		Str("lanes", mask.String()).
		Str("division", r.cfg.ClockDivision.String()).
		Bool("bit_identity", bits.IsIdentity()).
		Dur("took", time.Since(started)).
		Msg("bringup_done")
	return nil
}
