// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"math"

	"github.com/go-daq/pixie16/crate/internal/regs"
	"github.com/go-daq/pixie16/errs"
	"github.com/go-daq/pixie16/param"
)

const dacVoltageRange = 3.0 // offset-DAC swing, volts

// filterClockMHz returns the filter clock the trigger and energy
// filters run on. The 250 MSPS variants decimate by two, the 500 MSPS
// ones by five.
func (mod *Module) filterClockMHz() float64 {
	switch mod.ADCMsps {
	case 250:
		return 125
	case 500:
		return 100
	default:
		return float64(mod.ADCMsps)
	}
}

func clampU32(v float64) (uint32, error) {
	if v < 0 || v > math.MaxUint32 || math.IsNaN(v) {
		return 0, errs.New(errs.InvalidValue, "value %g out of range", v)
	}
	return uint32(math.Round(v)), nil
}

// ReadModuleParam reads a user-facing module parameter from the host
// cache.
func (mod *Module) ReadModuleParam(par param.ModuleParam) (uint32, error) {
	v, off, err := param.MapModuleParam(par)
	if err != nil {
		return 0, err
	}
	return mod.ReadModuleVar(v, off)
}

// WriteModuleParam writes a user-facing module parameter to the host
// cache with its dirty flag set; SyncVars flushes it to the DSP.
func (mod *Module) WriteModuleParam(par param.ModuleParam, value uint32) error {
	v, off, err := param.MapModuleParam(par)
	if err != nil {
		return err
	}
	switch par {
	case param.SynchWait, param.InSynch:
		if value > 1 {
			return errs.New(errs.InvalidValue,
				"module %d: %s must be 0 or 1 (got %d)",
				mod.Number, param.ModuleParamName(par), value,
			)
		}
	case param.SlowFilterRange:
		if value > 6 {
			return errs.New(errs.InvalidValue,
				"module %d: SLOW_FILTER_RANGE must be <= 6 (got %d)", mod.Number, value,
			)
		}
	case param.FastFilterRange:
		if value > 3 {
			return errs.New(errs.InvalidValue,
				"module %d: FAST_FILTER_RANGE must be <= 3 (got %d)", mod.Number, value,
			)
		}
	}
	return mod.WriteModuleVar(v, off, value)
}

func (mod *Module) fastFilterRange() uint32 {
	v, err := mod.ReadModuleVar(param.VarFastFilterRange, 0)
	if err != nil {
		return 0
	}
	return v
}

func (mod *Module) slowFilterRange() uint32 {
	v, err := mod.ReadModuleVar(param.VarSlowFilterRange, 0)
	if err != nil {
		return 0
	}
	return v
}

// WriteChannelParam converts a user-facing channel parameter (times in
// microseconds, voltages in volts, thresholds in ADC units) into its
// DSP variables and stores them in the host cache.
func (mod *Module) WriteChannelParam(par param.ChannelParam, ch int, v float64) error {
	if err := mod.checkChannel(ch); err != nil {
		return err
	}

	clk := mod.filterClockMHz()
	wvar := func(cv param.ChannelVar, x float64) error {
		w, err := clampU32(x)
		if err != nil {
			return err
		}
		return mod.WriteChannelVar(cv, ch, 0, w)
	}

	switch par {
	case param.TriggerRisetime:
		ffr := float64(uint32(1) << mod.fastFilterRange())
		return wvar(param.FastLength, v*clk/ffr)
	case param.TriggerFlattop:
		ffr := float64(uint32(1) << mod.fastFilterRange())
		return wvar(param.FastGap, v*clk/ffr)
	case param.TriggerThreshold:
		fl, err := mod.ReadChannelVar(param.FastLength, ch, 0)
		if err != nil {
			return err
		}
		if fl == 0 {
			fl = 1
		}
		return wvar(param.FastThresh, v*float64(fl))
	case param.EnergyRisetime, param.EnergyFlattop:
		sfr := float64(uint32(1) << mod.slowFilterRange())
		cv := param.SlowLength
		if par == param.EnergyFlattop {
			cv = param.SlowGap
		}
		err := wvar(cv, v*clk/sfr)
		if err != nil {
			return err
		}
		// keep the peaking point consistent with the new filter
		sl, err := mod.ReadChannelVar(param.SlowLength, ch, 0)
		if err != nil {
			return err
		}
		sg, err := mod.ReadChannelVar(param.SlowGap, ch, 0)
		if err != nil {
			return err
		}
		err = mod.WriteChannelVar(param.PeakSep, ch, 0, sl+sg)
		if err != nil {
			return err
		}
		return mod.WriteChannelVar(param.PeakSample, ch, 0, sl+sg-4)
	case param.Tau:
		return mod.WriteChannelVar(param.PreampTau, ch, 0, math.Float32bits(float32(v)))
	case param.TraceLength:
		return wvar(param.VarTraceLength, v*float64(mod.ADCMsps))
	case param.TraceDelay:
		delay := v * float64(mod.ADCMsps)
		err := wvar(param.TriggerDelay, delay)
		if err != nil {
			return err
		}
		return wvar(param.PAFlength, delay+8)
	case param.VOffset:
		return wvar(param.OffsetDAC, 65536*(v/dacVoltageRange+0.5))
	case param.XDT:
		return wvar(param.Xwait, v*float64(mod.ADCMsps))
	case param.BaselinePercent:
		return wvar(param.VarBaselinePercent, v)
	case param.EMin:
		return wvar(param.EnergyLow, v)
	case param.BinFactor:
		w, err := clampU32(v)
		if err != nil {
			return err
		}
		return mod.WriteChannelVar(param.Log2Ebin, ch, 0, uint32(-int32(w)))
	case param.BaselineAverage:
		w, err := clampU32(v)
		if err != nil {
			return err
		}
		return mod.WriteChannelVar(param.Log2Bweight, ch, 0, uint32(-int32(w)))
	case param.ChannelCSRA:
		return wvar(param.ChanCSRa, v)
	case param.ChannelCSRB:
		return wvar(param.ChanCSRb, v)
	case param.BLCut:
		return wvar(param.VarBLcut, v)
	case param.Integrator:
		return wvar(param.VarIntegrator, v)
	case param.FastTrigBackLen:
		return wvar(param.VarFastTrigBackLen, v*clk)
	case param.CFDDelay:
		return wvar(param.VarCFDDelay, v*float64(mod.ADCMsps))
	case param.CFDScale:
		return wvar(param.VarCFDScale, v)
	case param.CFDThresh:
		return wvar(param.VarCFDThresh, v)
	case param.QDCLen0, param.QDCLen1, param.QDCLen2, param.QDCLen3,
		param.QDCLen4, param.QDCLen5, param.QDCLen6, param.QDCLen7:
		cv := param.VarQDCLen0 + param.ChannelVar(par-param.QDCLen0)
		return wvar(cv, v*float64(mod.ADCMsps))
	case param.ExtTrigStretch:
		return wvar(param.VarExtTrigStretch, v*clk)
	case param.VetoStretch:
		return wvar(param.VarVetoStretch, v*clk)
	case param.ChanTrigStretch:
		return wvar(param.VarChanTrigStretch, v*clk)
	case param.MultiplicityMaskL:
		return wvar(param.VarMultiplicityMaskL, v)
	case param.MultiplicityMaskH:
		return wvar(param.VarMultiplicityMaskH, v)
	case param.ExternDelayLen:
		return wvar(param.VarExternDelayLen, v*clk)
	case param.FtrigoutDelay:
		return wvar(param.VarFtrigoutDelay, v*clk)
	default:
		return errs.New(errs.ChannelInvalidParam,
			"module %d: invalid channel parameter %d", mod.Number, par,
		)
	}
}

// ReadChannelParam converts the DSP variables of a user-facing channel
// parameter back into user units.
func (mod *Module) ReadChannelParam(par param.ChannelParam, ch int) (float64, error) {
	if err := mod.checkChannel(ch); err != nil {
		return 0, err
	}

	clk := mod.filterClockMHz()
	rvar := func(cv param.ChannelVar) (float64, error) {
		w, err := mod.ReadChannelVar(cv, ch, 0)
		if err != nil {
			return 0, err
		}
		return float64(w), nil
	}

	switch par {
	case param.TriggerRisetime:
		w, err := rvar(param.FastLength)
		if err != nil {
			return 0, err
		}
		return w * float64(uint32(1)<<mod.fastFilterRange()) / clk, nil
	case param.TriggerFlattop:
		w, err := rvar(param.FastGap)
		if err != nil {
			return 0, err
		}
		return w * float64(uint32(1)<<mod.fastFilterRange()) / clk, nil
	case param.TriggerThreshold:
		ft, err := rvar(param.FastThresh)
		if err != nil {
			return 0, err
		}
		fl, err := rvar(param.FastLength)
		if err != nil {
			return 0, err
		}
		if fl == 0 {
			fl = 1
		}
		return ft / fl, nil
	case param.EnergyRisetime:
		w, err := rvar(param.SlowLength)
		if err != nil {
			return 0, err
		}
		return w * float64(uint32(1)<<mod.slowFilterRange()) / clk, nil
	case param.EnergyFlattop:
		w, err := rvar(param.SlowGap)
		if err != nil {
			return 0, err
		}
		return w * float64(uint32(1)<<mod.slowFilterRange()) / clk, nil
	case param.Tau:
		w, err := mod.ReadChannelVar(param.PreampTau, ch, 0)
		if err != nil {
			return 0, err
		}
		return float64(math.Float32frombits(w)), nil
	case param.TraceLength:
		w, err := rvar(param.VarTraceLength)
		if err != nil {
			return 0, err
		}
		return w / float64(mod.ADCMsps), nil
	case param.TraceDelay:
		w, err := rvar(param.PAFlength)
		if err != nil {
			return 0, err
		}
		return (w - 8) / float64(mod.ADCMsps), nil
	case param.VOffset:
		w, err := rvar(param.OffsetDAC)
		if err != nil {
			return 0, err
		}
		return (w/65536 - 0.5) * dacVoltageRange, nil
	case param.XDT:
		w, err := rvar(param.Xwait)
		if err != nil {
			return 0, err
		}
		return w / float64(mod.ADCMsps), nil
	case param.BaselinePercent:
		return rvar(param.VarBaselinePercent)
	case param.EMin:
		return rvar(param.EnergyLow)
	case param.BinFactor:
		w, err := mod.ReadChannelVar(param.Log2Ebin, ch, 0)
		if err != nil {
			return 0, err
		}
		return float64(-int32(w)), nil
	case param.BaselineAverage:
		w, err := mod.ReadChannelVar(param.Log2Bweight, ch, 0)
		if err != nil {
			return 0, err
		}
		return float64(-int32(w)), nil
	case param.ChannelCSRA:
		return rvar(param.ChanCSRa)
	case param.ChannelCSRB:
		return rvar(param.ChanCSRb)
	case param.BLCut:
		return rvar(param.VarBLcut)
	case param.Integrator:
		return rvar(param.VarIntegrator)
	case param.FastTrigBackLen:
		w, err := rvar(param.VarFastTrigBackLen)
		if err != nil {
			return 0, err
		}
		return w / clk, nil
	case param.CFDDelay:
		w, err := rvar(param.VarCFDDelay)
		if err != nil {
			return 0, err
		}
		return w / float64(mod.ADCMsps), nil
	case param.CFDScale:
		return rvar(param.VarCFDScale)
	case param.CFDThresh:
		return rvar(param.VarCFDThresh)
	case param.QDCLen0, param.QDCLen1, param.QDCLen2, param.QDCLen3,
		param.QDCLen4, param.QDCLen5, param.QDCLen6, param.QDCLen7:
		cv := param.VarQDCLen0 + param.ChannelVar(par-param.QDCLen0)
		w, err := rvar(cv)
		if err != nil {
			return 0, err
		}
		return w / float64(mod.ADCMsps), nil
	case param.ExtTrigStretch:
		w, err := rvar(param.VarExtTrigStretch)
		if err != nil {
			return 0, err
		}
		return w / clk, nil
	case param.VetoStretch:
		w, err := rvar(param.VarVetoStretch)
		if err != nil {
			return 0, err
		}
		return w / clk, nil
	case param.ChanTrigStretch:
		w, err := rvar(param.VarChanTrigStretch)
		if err != nil {
			return 0, err
		}
		return w / clk, nil
	case param.MultiplicityMaskL:
		return rvar(param.VarMultiplicityMaskL)
	case param.MultiplicityMaskH:
		return rvar(param.VarMultiplicityMaskH)
	case param.ExternDelayLen:
		w, err := rvar(param.VarExternDelayLen)
		if err != nil {
			return 0, err
		}
		return w / clk, nil
	case param.FtrigoutDelay:
		w, err := rvar(param.VarFtrigoutDelay)
		if err != nil {
			return 0, err
		}
		return w / clk, nil
	default:
		return 0, errs.New(errs.ChannelInvalidParam,
			"module %d: invalid channel parameter %d", mod.Number, par,
		)
	}
}

// SyncHW applies the parameter-derived hardware side effects: the
// FiPPI filter registers and the offset DACs.
func (mod *Module) SyncHW() error {
	err := mod.controlTask(regs.CTRL_TASK_PROGRAM_FIPPI, controlTaskTimeout)
	if err != nil {
		return err
	}
	return mod.controlTask(regs.CTRL_TASK_SET_DACS, controlTaskTimeout)
}
