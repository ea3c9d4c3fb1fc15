package rank

import (
	logs "github.com/danmuck/smplog"

	"github.com/danmuck/cictl/internal/protocol/opcode"
	"github.com/danmuck/cictl/internal/protocol/wire"
)

// DMAEngine holds the DMA engine timing fields.
type DMAEngine struct {
	RefreshAccess       uint8
	ColumnReadLatency   uint8
	MinimalAccessNumber uint8
	DefaultTimeOrigin   int8
	LDMAToSDMAOrigin    int8
	XDMAStartActivate   uint8
	XDMAStartAccess     uint8
	SDMARWBufferF1      uint8
}

// Pack returns the 43-bit timing word the engine registers hold.
func (d DMAEngine) Pack() uint64 {
	return uint64(d.RefreshAccess&0x7F)<<36 |
		uint64(d.ColumnReadLatency&0x0F)<<32 |
		uint64(d.MinimalAccessNumber&0x07)<<29 |
		uint64(uint8(d.DefaultTimeOrigin)&0x7F)<<22 |
		uint64(uint8(d.LDMAToSDMAOrigin)&0x7F)<<15 |
		uint64(d.XDMAStartActivate&0x1F)<<10 |
		uint64(d.XDMAStartAccess&0x1F)<<5 |
		uint64(d.SDMARWBufferF1&0x1F)
}

// WavegenReg is one waveform generator signal.
type WavegenReg struct {
	Rise           uint8
	Fall           uint8
	CounterEnable  uint8
	CounterDisable uint8
}

type VectorSampling struct {
	RAB       uint8
	CAT       uint8
	DWBSB     uint8
	DRBSB     uint8
	DRBSBFine uint8
}

// WavegenTiming holds row cycle timings, in lane clock cycles minus one.
type WavegenTiming struct {
	Activate     uint8
	Read         uint8
	Write        uint8
	Precharge    uint8
	RefreshStart uint8
	RefreshActiv uint8
	RefreshPrech uint8
	RefreshEnd   uint8
}

// Wavegen is the full waveform generator configuration of a unit.
type Wavegen struct {
	MCBAB    WavegenReg
	RCYCLKB  WavegenReg
	WCYCLKB  WavegenReg
	DWCLKB   WavegenReg
	DWAEB    WavegenReg
	DRAPB    WavegenReg
	DRAOB    WavegenReg
	DWBSBEn  WavegenReg
	Sampling VectorSampling
	Timing   WavegenTiming
	// RefreshInfo packs the refresh cycle count and the refresh mode.
	RefreshInfo     uint16
	RowHammerConfig uint8
	RefreshCtrl     uint8
}

func (w Wavegen) regs() []WavegenReg {
	return []WavegenReg{w.MCBAB, w.RCYCLKB, w.WCYCLKB, w.DWCLKB, w.DWAEB, w.DRAPB, w.DRAOB, w.DWBSBEn}
}

// Reference DMA engine timings. RefreshAccess is filled by FetchDMAAndWavegen.
var (
	dmaCycleAccurate = DMAEngine{RefreshAccess: 53, ColumnReadLatency: 7, DefaultTimeOrigin: -4, LDMAToSDMAOrigin: -10, XDMAStartActivate: 9, XDMAStartAccess: 18}
	dmaDiv2          = DMAEngine{ColumnReadLatency: 9, DefaultTimeOrigin: -4, LDMAToSDMAOrigin: -10, XDMAStartActivate: 9, XDMAStartAccess: 18}
	dmaDiv3          = DMAEngine{ColumnReadLatency: 8, DefaultTimeOrigin: -4, LDMAToSDMAOrigin: -10, XDMAStartActivate: 9, XDMAStartAccess: 18}
	dmaDiv4          = DMAEngine{ColumnReadLatency: 7, DefaultTimeOrigin: -4, LDMAToSDMAOrigin: -10, XDMAStartActivate: 9, XDMAStartAccess: 18}
)

// Reference waveforms per clock division.
var (
	wavegenDiv2 = Wavegen{
		MCBAB:           WavegenReg{0x00, 0x39, 1, 1},
		RCYCLKB:         WavegenReg{0x33, 0x39, 1, 3},
		WCYCLKB:         WavegenReg{0x31, 0x00, 2, 3},
		DWCLKB:          WavegenReg{0x31, 0x00, 1, 2},
		DWAEB:           WavegenReg{0x31, 0x08, 2, 4},
		DRAPB:           WavegenReg{0x33, 0x39, 1, 3},
		DRAOB:           WavegenReg{0x31, 0x39, 3, 4},
		DWBSBEn:         WavegenReg{0x3C, 0x3E, 1, 3},
		Sampling:        VectorSampling{1, 1, 1, 1, 2},
		Timing:          WavegenTiming{Activate: 0x0A, Read: 3, Write: 3, Precharge: 0x0B},
		RowHammerConfig: 6,
		RefreshCtrl:     1,
	}
	wavegenDiv3 = Wavegen{
		MCBAB:           WavegenReg{0x00, 0x39, 2, 2},
		RCYCLKB:         WavegenReg{0x33, 0x39, 2, 4},
		WCYCLKB:         WavegenReg{0x31, 0x00, 3, 4},
		DWCLKB:          WavegenReg{0x31, 0x00, 2, 3},
		DWAEB:           WavegenReg{0x31, 0x08, 3, 5},
		DRAPB:           WavegenReg{0x33, 0x39, 2, 4},
		DRAOB:           WavegenReg{0x31, 0x39, 4, 5},
		DWBSBEn:         WavegenReg{0x3C, 0x3E, 2, 4},
		Sampling:        VectorSampling{1, 1, 1, 1, 2},
		Timing:          WavegenTiming{Activate: 0x0F, Read: 5, Write: 5, Precharge: 0x0B},
		RowHammerConfig: 6,
		RefreshCtrl:     1,
	}
	wavegenDiv4 = Wavegen{
		MCBAB:           WavegenReg{0x00, 0x39, 3, 3},
		RCYCLKB:         WavegenReg{0x33, 0x39, 3, 5},
		WCYCLKB:         WavegenReg{0x31, 0x00, 4, 5},
		DWCLKB:          WavegenReg{0x31, 0x00, 3, 4},
		DWAEB:           WavegenReg{0x31, 0x08, 4, 6},
		DRAPB:           WavegenReg{0x33, 0x39, 3, 5},
		DRAOB:           WavegenReg{0x31, 0x39, 5, 6},
		DWBSBEn:         WavegenReg{0x3C, 0x3E, 3, 5},
		Sampling:        VectorSampling{2, 2, 1, 1, 2},
		Timing:          WavegenTiming{Activate: 0x14, Read: 7, Write: 7, Precharge: 0x0B},
		RowHammerConfig: 6,
		RefreshCtrl:     1,
	}
)

func nrCycles(duration, freq uint32) uint32 {
	return (duration*freq + 999) / 1000
}

// fillTiming derives the refresh timings for a lane clock of freqMHz divided
// by div. Refresh pulses are shortened until the DMA engine's refresh window
// outlasts the refresh sequence.
func fillTiming(dma *DMAEngine, wg *Wavegen, freqMHz, div uint32, refreshMode int) {
	half := freqMHz / 20
	activate := nrCycles(512, half) - 1
	precharge := nrCycles(269, half) - 1
	const start, end = 2, 2
	pulses := uint32(4 / refreshMode)

	var tRFC, log2Mode uint32
	switch refreshMode {
	case 1:
		tRFC, log2Mode = 345, 0
	case 2:
		tRFC, log2Mode = 255, 1
	default:
		tRFC, log2Mode = 155, 2
	}

	var refresh, refreshDMA uint32
	for {
		refresh = start + 1 + pulses*(activate+1) + (pulses-1)*(precharge+1) + nrCycles(140, half)
		refreshDMA = 0
		if q := tRFC * freqMHz / (4 * div * 1000); q > 0 {
			refreshDMA = q - 1
		}
		total := 1 + start + 1 + pulses*(activate+1) + pulses*(precharge+1) + end + 1
		dmaCycles := (refreshDMA + 1) * 4 * div / 2
		if dmaCycles > total || activate == 0 || precharge == 0 {
			break
		}
		activate--
		precharge--
	}

	dma.RefreshAccess = uint8(refreshDMA)
	wg.Timing.RefreshStart = start
	wg.Timing.RefreshActiv = uint8(activate)
	wg.Timing.RefreshPrech = uint8(precharge)
	wg.Timing.RefreshEnd = end
	wg.RefreshInfo = uint16((refresh>>8)&1)<<15 | uint16(log2Mode&3)<<8 | uint16(refresh&0xFF)
}

// FetchDMAAndWavegen returns the reference DMA engine and waveform timings
// for a lane clock of freqMHz under division div.
func FetchDMAAndWavegen(freqMHz int, div opcode.ClockDivision, refreshMode int, controlRefresh bool) (DMAEngine, Wavegen) {
	var dma DMAEngine
	var wg Wavegen
	factor := div.Factor()
	switch factor {
	case 4:
		dma, wg = dmaDiv4, wavegenDiv4
	case 3:
		dma, wg = dmaDiv3, wavegenDiv3
	default:
		dma, wg = dmaDiv2, wavegenDiv2
		factor = 2
	}
	fillTiming(&dma, &wg, uint32(freqMHz), factor, refreshMode)
	if !controlRefresh {
		wg.RefreshCtrl = 0
	}
	return dma, wg
}

// CycleAccurateDMA is the DMA engine timing of lanes reset in cycle accurate
// mode.
func CycleAccurateDMA() DMAEngine {
	return dmaCycleAccurate
}

// DMA engine and wavegen register map.
const (
	regDMATiming     = 0x20
	regWavegenBase   = 0xC0
	regWavegenTiming = 0xE0
	regWavegenVector = 0xE8
	regRefreshInfoLo = 0xFC
	regRefreshInfoHi = 0xFD
	regRowHammer     = 0xFE
	regRefreshCtrl   = 0x83
)

// DMAConfig programs the DMA engine timing of the selected units.
func (tx *Tx) DMAConfig(mask wire.Mask, dma DMAEngine) error {
	timing := dma.Pack()
	for i := 0; i < 6; i++ {
		if err := tx.WriteDMACtrl(mask, regDMATiming+uint8(i), uint8(timing>>(8*i))); err != nil {
			return err
		}
	}
	return tx.ClearDMACtrl(mask)
}

type dmaReg struct{ addr, data uint8 }

func (w Wavegen) registers() []dmaReg {
	out := make([]dmaReg, 0, 48)
	for i, reg := range w.regs() {
		base := uint8(regWavegenBase + 4*i)
		out = append(out,
			dmaReg{base, reg.Rise},
			dmaReg{base + 1, reg.Fall},
			dmaReg{base + 2, reg.CounterEnable},
			dmaReg{base + 3, reg.CounterDisable},
		)
	}
	t := w.Timing
	for i, v := range []uint8{t.Activate, t.Read, t.Write, t.Precharge, t.RefreshStart, t.RefreshActiv, t.RefreshPrech, t.RefreshEnd} {
		out = append(out, dmaReg{regWavegenTiming + uint8(i), v})
	}
	s := w.Sampling
	for i, v := range []uint8{s.RAB, s.CAT, s.DWBSB, s.DRBSB, s.DRBSBFine} {
		out = append(out, dmaReg{regWavegenVector + uint8(i), v})
	}
	return append(out,
		dmaReg{regRefreshInfoLo, uint8(w.RefreshInfo)},
		dmaReg{regRefreshInfoHi, uint8(w.RefreshInfo >> 8)},
		dmaReg{regRowHammer, w.RowHammerConfig},
	)
}

// refreshOrder returns the unit visited at step i. With more than four units
// the upper half is configured first.
func refreshOrder(i, units int) uint8 {
	if units <= 4 {
		return uint8(i)
	}
	if i >= 4 {
		return uint8(i - 4)
	}
	return uint8(i + 4)
}

// WavegenConfig programs the waveform generator of the selected units, then
// enables refresh unit by unit.
func (tx *Tx) WavegenConfig(mask wire.Mask, wg Wavegen) error {
	for _, reg := range wg.registers() {
		if err := tx.WriteDMACtrl(mask, reg.addr, reg.data); err != nil {
			return err
		}
	}
	if err := tx.ClearDMACtrl(mask); err != nil {
		return err
	}
	units := tx.r.cfg.UnitsPerLane
	for i := 0; i < units; i++ {
		lanes, err := tx.SelectUnit(mask, refreshOrder(i, units))
		if err != nil {
			return err
		}
		if err := tx.WriteDMACtrl(lanes, regRefreshCtrl, wg.RefreshCtrl); err != nil {
			return err
		}
		if err := tx.ClearDMACtrl(lanes); err != nil {
			return err
		}
	}
	logs.Debugf("rank.Tx.WavegenConfig done rank_id=%q lanes=%s refresh_info=0x%04x refresh_ctrl=%d",
		tx.r.id, mask, wg.RefreshInfo, wg.RefreshCtrl)
	return nil
}
