// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package param

import (
	"github.com/go-daq/pixie16/errs"
)

// Copy filter masks. The mask bits select which filter groups a
// channel-to-channel parameter copy carries over.
const (
	EnergyMask            uint32 = 1 << 0
	TriggerMask           uint32 = 1 << 1
	AnalogSignalCondMask  uint32 = 1 << 2
	HistogramControlMask  uint32 = 1 << 3
	DecayTimeMask         uint32 = 1 << 4
	PulseShapeMask        uint32 = 1 << 5
	BaselineControlMask   uint32 = 1 << 6
	ChannelCSRAMask       uint32 = 1 << 7
	CFDTriggerMask        uint32 = 1 << 8
	TriggerStretchLenMask uint32 = 1 << 9
	FIFODelaysMask        uint32 = 1 << 10
	MultiplicityMaskBit   uint32 = 1 << 11
	QDCMask               uint32 = 1 << 12

	AllMask uint32 = 1<<13 - 1
)

// chanCSRaCopyMask keeps the slot-wired control bits of ChanCSRa out
// of a copy.
const chanCSRaCopyMask = 0x00ffffff

type filterVar struct {
	v    ChannelVar
	mask uint32
}

var copyFilters = []struct {
	group uint32
	vars  []filterVar
}{
	{EnergyMask, []filterVar{
		{SlowLength, ^uint32(0)},
		{SlowGap, ^uint32(0)},
		{PeakSample, ^uint32(0)},
		{PeakSep, ^uint32(0)},
	}},
	{TriggerMask, []filterVar{
		{FastLength, ^uint32(0)},
		{FastGap, ^uint32(0)},
		{FastThresh, ^uint32(0)},
		{ThreshWidth, ^uint32(0)},
	}},
	{AnalogSignalCondMask, []filterVar{
		{OffsetDAC, ^uint32(0)},
		{GainDAC, ^uint32(0)},
		{DigGain, ^uint32(0)},
	}},
	{HistogramControlMask, []filterVar{
		{EnergyLow, ^uint32(0)},
		{Log2Ebin, ^uint32(0)},
	}},
	{DecayTimeMask, []filterVar{
		{PreampTau, ^uint32(0)},
	}},
	{PulseShapeMask, []filterVar{
		{VarTraceLength, ^uint32(0)},
		{TriggerDelay, ^uint32(0)},
		{PAFlength, ^uint32(0)},
		{PSAoffset, ^uint32(0)},
		{PSAlength, ^uint32(0)},
	}},
	{BaselineControlMask, []filterVar{
		{VarBLcut, ^uint32(0)},
		{VarBaselinePercent, ^uint32(0)},
		{Log2Bweight, ^uint32(0)},
	}},
	{ChannelCSRAMask, []filterVar{
		{ChanCSRa, chanCSRaCopyMask},
		{ChanCSRb, ^uint32(0)},
	}},
	{CFDTriggerMask, []filterVar{
		{VarCFDThresh, ^uint32(0)},
		{VarCFDDelay, ^uint32(0)},
		{VarCFDScale, ^uint32(0)},
	}},
	{TriggerStretchLenMask, []filterVar{
		{VarExtTrigStretch, ^uint32(0)},
		{VarVetoStretch, ^uint32(0)},
		{VarChanTrigStretch, ^uint32(0)},
	}},
	{FIFODelaysMask, []filterVar{
		{VarExternDelayLen, ^uint32(0)},
		{VarFtrigoutDelay, ^uint32(0)},
		{VarFastTrigBackLen, ^uint32(0)},
	}},
	{MultiplicityMaskBit, []filterVar{
		{VarMultiplicityMaskL, ^uint32(0)},
		{VarMultiplicityMaskH, ^uint32(0)},
	}},
	{QDCMask, []filterVar{
		{VarQDCLen0, ^uint32(0)},
		{VarQDCLen1, ^uint32(0)},
		{VarQDCLen2, ^uint32(0)},
		{VarQDCLen3, ^uint32(0)},
		{VarQDCLen4, ^uint32(0)},
		{VarQDCLen5, ^uint32(0)},
		{VarQDCLen6, ^uint32(0)},
		{VarQDCLen7, ^uint32(0)},
	}},
}

// CopyParameters copies the channel variables whose filter group is
// selected by mask from src to dst. Per-variable word masks preserve
// reserved bits. Copies are atomic per descriptor: a failure leaves
// already copied variables dirty so a later flush re-synchronises the
// DSP.
func CopyParameters(mask uint32, src, dst []Variable) error {
	if len(src) != len(dst) {
		return errs.New(errs.ChannelInvalidVar,
			"param: copy across mismatched variable sets (%d != %d)",
			len(src), len(dst),
		)
	}
	for _, grp := range copyFilters {
		if mask&grp.group == 0 {
			continue
		}
		for _, fv := range grp.vars {
			sv := &src[fv.v]
			dv := &dst[fv.v]
			if !sv.Desc.Enabled || !dv.Desc.Enabled {
				continue
			}
			for i := range dv.Data {
				v := dv.Data[i].Value &^ fv.mask
				v |= sv.Data[i].Value & fv.mask
				dv.Data[i].Value = v
				dv.Data[i].Dirty = true
			}
		}
	}
	return nil
}
