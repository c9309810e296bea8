// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package param models the user-facing parameters and the raw DSP
// variables of a Pixie-16 module.
//
// Parameters are the names users read and write (TRIGGER_THRESHOLD).
// Variables are word cells at fixed addresses in DSP memory
// (FastThresh). Parameters map onto one or more variables through
// conversions that live with the module runtime, since they depend on
// module properties such as the ADC sampling rate.
package param // import "github.com/go-daq/pixie16/param"

import (
	"github.com/go-daq/pixie16/errs"
)

// Mode is a variable's input/output mode.
type Mode int

const (
	RW Mode = iota // read-write
	RO             // read-only
	WR             // write-only
)

// SystemParam names a crate-level setting.
type SystemParam int

const (
	NumberModules SystemParam = iota
	OfflineAnalysis
	PxiSlotMap

	nSystemParams
)

// ModuleParam names a user-facing module setting.
type ModuleParam int

const (
	ModuleNumber ModuleParam = iota
	ModuleCSRA
	ModuleCSRB
	ModuleFormat
	MaxEvents
	SynchWait
	InSynch
	SlowFilterRange
	FastFilterRange
	FastTrigBackplaneEna
	CrateID
	SlotID
	ModID
	TrigConfig0
	TrigConfig1
	TrigConfig2
	TrigConfig3
	HostRTPreset

	nModuleParams
)

// ChannelParam names a user-facing channel setting.
type ChannelParam int

const (
	TriggerRisetime ChannelParam = iota
	TriggerFlattop
	TriggerThreshold
	EnergyRisetime
	EnergyFlattop
	Tau
	TraceLength
	TraceDelay
	VOffset
	XDT
	BaselinePercent
	EMin
	BinFactor
	BaselineAverage
	ChannelCSRA
	ChannelCSRB
	BLCut
	Integrator
	FastTrigBackLen
	CFDDelay
	CFDScale
	CFDThresh
	QDCLen0
	QDCLen1
	QDCLen2
	QDCLen3
	QDCLen4
	QDCLen5
	QDCLen6
	QDCLen7
	ExtTrigStretch
	VetoStretch
	MultiplicityMaskL
	MultiplicityMaskH
	ExternDelayLen
	FtrigoutDelay
	ChanTrigStretch

	nChannelParams
)

// ModuleVar names a module-level DSP variable.
type ModuleVar int

const (
	ModNum ModuleVar = iota
	ModCSRA
	ModCSRB
	ModFormat
	RunTask
	ControlTask
	VarMaxEvents
	CoincPattern
	CoincWait
	VarSynchWait
	VarInSynch
	Resume
	VarSlowFilterRange
	VarFastFilterRange
	ChanNum
	HostIO
	UserIn
	VarFastTrigBackplaneEna
	VarCrateID
	VarSlotID
	VarModID
	VarTrigConfig
	HostRunTimePreset
	PowerUpInitDone
	U00

	RealTimeA
	RealTimeB
	RunTimeA
	RunTimeB
	GSLTtime
	DSPerror
	SynchDone
	UserOut
	AOutBuffer
	AECorr
	LECorr
	HardwareID
	HardVariant
	FIFOLength
	DSPrelease
	DSPbuild
	NumEventsA
	NumEventsB
	BufHeadLen
	EventHeadLen
	ChanHeadLen
	LOutBuffer
	FippiID
	FippiVariant
	DSPVariant
	U20

	nModuleVars
)

// ChannelVar names a channel-level DSP variable.
type ChannelVar int

const (
	ChanCSRa ChannelVar = iota
	ChanCSRb
	GainDAC
	OffsetDAC
	DigGain
	SlowLength
	SlowGap
	FastLength
	FastGap
	PeakSample
	PeakSep
	VarCFDThresh
	FastThresh
	ThreshWidth
	PAFlength
	TriggerDelay
	ResetDelay
	VarChanTrigStretch
	VarTraceLength
	Xwait
	TrigOutLen
	EnergyLow
	Log2Ebin
	VarMultiplicityMaskL
	VarMultiplicityMaskH
	PSAoffset
	PSAlength
	VarIntegrator
	VarBLcut
	VarBaselinePercent
	VarFtrigoutDelay
	Log2Bweight
	PreampTau
	Xavg
	VarFastTrigBackLen
	VarCFDDelay
	VarCFDScale
	VarExternDelayLen
	VarExtTrigStretch
	VarVetoStretch
	VarQDCLen0
	VarQDCLen1
	VarQDCLen2
	VarQDCLen3
	VarQDCLen4
	VarQDCLen5
	VarQDCLen6
	VarQDCLen7

	LiveTimeA
	LiveTimeB
	FastPeaksA
	FastPeaksB
	OverflowA
	OverflowB
	InSpecA
	InSpecB
	UnderflowA
	UnderflowB
	ChanEventsA
	ChanEventsB
	AutoTau
	U30

	nChannelVars
)

// NumModuleVars and NumChannelVars size the descriptor tables.
const (
	NumModuleVars  = int(nModuleVars)
	NumChannelVars = int(nChannelVars)
)

// Desc describes one variable: its enumeration tag is the index of the
// descriptor inside its table.
type Desc struct {
	Mode    Mode
	Size    int // DSP words
	Enabled bool
	Name    string
	Address uint32 // DSP memory address, set by Load
}

func (d *Desc) writeable() bool { return d.Enabled && d.Mode != RO }

func in(name string, size int) Desc  { return Desc{Mode: RW, Size: size, Enabled: true, Name: name} }
func out(name string, size int) Desc { return Desc{Mode: RO, Size: size, Enabled: true, Name: name} }
func wr(name string, size int) Desc  { return Desc{Mode: WR, Size: size, Enabled: true, Name: name} }

// ModuleVarDescs returns a fresh copy of the default module variable
// descriptor table, indexed by ModuleVar.
func ModuleVarDescs() []Desc {
	return []Desc{
		ModNum:                  in("ModNum", 1),
		ModCSRA:                 in("ModCSRA", 1),
		ModCSRB:                 in("ModCSRB", 1),
		ModFormat:               in("ModFormat", 1),
		RunTask:                 in("RunTask", 1),
		ControlTask:             in("ControlTask", 1),
		VarMaxEvents:            in("MaxEvents", 1),
		CoincPattern:            in("CoincPattern", 1),
		CoincWait:               in("CoincWait", 1),
		VarSynchWait:            in("SynchWait", 1),
		VarInSynch:              in("InSynch", 1),
		Resume:                  in("Resume", 1),
		VarSlowFilterRange:      in("SlowFilterRange", 1),
		VarFastFilterRange:      in("FastFilterRange", 1),
		ChanNum:                 in("ChanNum", 1),
		HostIO:                  wr("HostIO", 16),
		UserIn:                  in("UserIn", 16),
		VarFastTrigBackplaneEna: in("FastTrigBackplaneEna", 1),
		VarCrateID:              in("CrateID", 1),
		VarSlotID:               in("SlotID", 1),
		VarModID:                in("ModID", 1),
		VarTrigConfig:           in("TrigConfig", 4),
		HostRunTimePreset:       in("HostRunTimePreset", 1),
		PowerUpInitDone:         in("PowerUpInitDone", 1),
		U00:                     Desc{Mode: RW, Size: 7, Name: "U00"},

		RealTimeA:    out("RealTimeA", 1),
		RealTimeB:    out("RealTimeB", 1),
		RunTimeA:     out("RunTimeA", 1),
		RunTimeB:     out("RunTimeB", 1),
		GSLTtime:     out("GSLTtime", 1),
		DSPerror:     out("DSPerror", 1),
		SynchDone:    out("SynchDone", 1),
		UserOut:      out("UserOut", 16),
		AOutBuffer:   out("AOutBuffer", 16),
		AECorr:       out("AECorr", 1),
		LECorr:       out("LECorr", 1),
		HardwareID:   out("HardwareID", 1),
		HardVariant:  out("HardVariant", 1),
		FIFOLength:   out("FIFOLength", 1),
		DSPrelease:   out("DSPrelease", 1),
		DSPbuild:     out("DSPbuild", 1),
		NumEventsA:   out("NumEventsA", 1),
		NumEventsB:   out("NumEventsB", 1),
		BufHeadLen:   out("BufHeadLen", 1),
		EventHeadLen: out("EventHeadLen", 1),
		ChanHeadLen:  out("ChanHeadLen", 1),
		LOutBuffer:   out("LOutBuffer", 16),
		FippiID:      out("FippiID", 1),
		FippiVariant: out("FippiVariant", 1),
		DSPVariant:   out("DSPVariant", 1),
		U20:          Desc{Mode: RO, Size: 4, Name: "U20"},
	}
}

// ChannelVarDescs returns a fresh copy of the default channel variable
// descriptor table, indexed by ChannelVar. Addresses refer to the first
// channel block; see AddressMap.
func ChannelVarDescs() []Desc {
	return []Desc{
		ChanCSRa:             in("ChanCSRa", 1),
		ChanCSRb:             in("ChanCSRb", 1),
		GainDAC:              in("GainDAC", 1),
		OffsetDAC:            in("OffsetDAC", 1),
		DigGain:              in("DigGain", 1),
		SlowLength:           in("SlowLength", 1),
		SlowGap:              in("SlowGap", 1),
		FastLength:           in("FastLength", 1),
		FastGap:              in("FastGap", 1),
		PeakSample:           in("PeakSample", 1),
		PeakSep:              in("PeakSep", 1),
		VarCFDThresh:         in("CFDThresh", 1),
		FastThresh:           in("FastThresh", 1),
		ThreshWidth:          in("ThreshWidth", 1),
		PAFlength:            in("PAFlength", 1),
		TriggerDelay:         in("TriggerDelay", 1),
		ResetDelay:           in("ResetDelay", 1),
		VarChanTrigStretch:   in("ChanTrigStretch", 1),
		VarTraceLength:       in("TraceLength", 1),
		Xwait:                in("Xwait", 1),
		TrigOutLen:           in("TrigOutLen", 1),
		EnergyLow:            in("EnergyLow", 1),
		Log2Ebin:             in("Log2Ebin", 1),
		VarMultiplicityMaskL: in("MultiplicityMaskL", 1),
		VarMultiplicityMaskH: in("MultiplicityMaskH", 1),
		PSAoffset:            in("PSAoffset", 1),
		PSAlength:            in("PSAlength", 1),
		VarIntegrator:        in("Integrator", 1),
		VarBLcut:             in("BLcut", 1),
		VarBaselinePercent:   in("BaselinePercent", 1),
		VarFtrigoutDelay:     in("FtrigoutDelay", 1),
		Log2Bweight:          in("Log2Bweight", 1),
		PreampTau:            in("PreampTau", 1),
		Xavg:                 in("Xavg", 1),
		VarFastTrigBackLen:   in("FastTrigBackLen", 1),
		VarCFDDelay:          in("CFDDelay", 1),
		VarCFDScale:          in("CFDScale", 1),
		VarExternDelayLen:    in("ExternDelayLen", 1),
		VarExtTrigStretch:    in("ExtTrigStretch", 1),
		VarVetoStretch:       in("VetoStretch", 1),
		VarQDCLen0:           in("QDCLen0", 1),
		VarQDCLen1:           in("QDCLen1", 1),
		VarQDCLen2:           in("QDCLen2", 1),
		VarQDCLen3:           in("QDCLen3", 1),
		VarQDCLen4:           in("QDCLen4", 1),
		VarQDCLen5:           in("QDCLen5", 1),
		VarQDCLen6:           in("QDCLen6", 1),
		VarQDCLen7:           in("QDCLen7", 1),

		LiveTimeA:   out("LiveTimeA", 1),
		LiveTimeB:   out("LiveTimeB", 1),
		FastPeaksA:  out("FastPeaksA", 1),
		FastPeaksB:  out("FastPeaksB", 1),
		OverflowA:   out("OverflowA", 1),
		OverflowB:   out("OverflowB", 1),
		InSpecA:     out("InSpecA", 1),
		InSpecB:     out("InSpecB", 1),
		UnderflowA:  out("UnderflowA", 1),
		UnderflowB:  out("UnderflowB", 1),
		ChanEventsA: out("ChanEventsA", 1),
		ChanEventsB: out("ChanEventsB", 1),
		AutoTau:     out("AutoTau", 1),
		U30:         Desc{Mode: RO, Size: 1, Name: "U30"},
	}
}

var systemParamNames = map[string]SystemParam{
	"NUMBER_MODULES":   NumberModules,
	"OFFLINE_ANALYSIS": OfflineAnalysis,
	"PXI_SLOT_MAP":     PxiSlotMap,
}

var moduleParamNames = map[string]ModuleParam{
	"MODULE_NUMBER":        ModuleNumber,
	"MODULE_CSRA":          ModuleCSRA,
	"MODULE_CSRB":          ModuleCSRB,
	"MODULE_FORMAT":        ModuleFormat,
	"MAX_EVENTS":           MaxEvents,
	"SYNCH_WAIT":           SynchWait,
	"IN_SYNCH":             InSynch,
	"SLOW_FILTER_RANGE":    SlowFilterRange,
	"FAST_FILTER_RANGE":    FastFilterRange,
	"FastTrigBackplaneEna": FastTrigBackplaneEna,
	"CrateID":              CrateID,
	"SlotID":               SlotID,
	"ModID":                ModID,
	"TrigConfig0":          TrigConfig0,
	"TrigConfig1":          TrigConfig1,
	"TrigConfig2":          TrigConfig2,
	"TrigConfig3":          TrigConfig3,
	"HOST_RT_PRESET":       HostRTPreset,
}

var channelParamNames = map[string]ChannelParam{
	"TRIGGER_RISETIME":    TriggerRisetime,
	"TRIGGER_FLATTOP":     TriggerFlattop,
	"TRIGGER_THRESHOLD":   TriggerThreshold,
	"ENERGY_RISETIME":     EnergyRisetime,
	"ENERGY_FLATTOP":      EnergyFlattop,
	"TAU":                 Tau,
	"TRACE_LENGTH":        TraceLength,
	"TRACE_DELAY":         TraceDelay,
	"VOFFSET":             VOffset,
	"XDT":                 XDT,
	"BASELINE_PERCENT":    BaselinePercent,
	"EMIN":                EMin,
	"BINFACTOR":           BinFactor,
	"BASELINE_AVERAGE":    BaselineAverage,
	"CHANNEL_CSRA":        ChannelCSRA,
	"CHANNEL_CSRB":        ChannelCSRB,
	"BLCUT":               BLCut,
	"INTEGRATOR":          Integrator,
	"FASTTRIGBACKLEN":     FastTrigBackLen,
	"CFDDelay":            CFDDelay,
	"CFDScale":            CFDScale,
	"CFDThresh":           CFDThresh,
	"QDCLen0":             QDCLen0,
	"QDCLen1":             QDCLen1,
	"QDCLen2":             QDCLen2,
	"QDCLen3":             QDCLen3,
	"QDCLen4":             QDCLen4,
	"QDCLen5":             QDCLen5,
	"QDCLen6":             QDCLen6,
	"QDCLen7":             QDCLen7,
	"ExtTrigStretch":      ExtTrigStretch,
	"VetoStretch":         VetoStretch,
	"MultiplicityMaskL":   MultiplicityMaskL,
	"MultiplicityMaskH":   MultiplicityMaskH,
	"ExternDelayLen":      ExternDelayLen,
	"FtrigoutDelay":       FtrigoutDelay,
	"ChanTrigStretch":     ChanTrigStretch,
}

// LookupSystemParam maps a label to its system parameter.
func LookupSystemParam(label string) (SystemParam, error) {
	p, ok := systemParamNames[label]
	if !ok {
		return 0, errs.New(errs.CrateInvalidParam,
			"param: invalid system parameter %q", label,
		)
	}
	return p, nil
}

// LookupModuleParam maps a label to its module parameter.
func LookupModuleParam(label string) (ModuleParam, error) {
	p, ok := moduleParamNames[label]
	if !ok {
		return 0, errs.New(errs.ModuleInvalidParam,
			"param: invalid module parameter %q", label,
		)
	}
	return p, nil
}

// LookupChannelParam maps a label to its channel parameter.
func LookupChannelParam(label string) (ChannelParam, error) {
	p, ok := channelParamNames[label]
	if !ok {
		return 0, errs.New(errs.ChannelInvalidParam,
			"param: invalid channel parameter %q", label,
		)
	}
	return p, nil
}

// IsModuleParam reports whether label names a module parameter.
func IsModuleParam(label string) bool {
	_, ok := moduleParamNames[label]
	return ok
}

// IsChannelParam reports whether label names a channel parameter.
func IsChannelParam(label string) bool {
	_, ok := channelParamNames[label]
	return ok
}

// ModuleParamName returns the label of par.
func ModuleParamName(par ModuleParam) string {
	for k, v := range moduleParamNames {
		if v == par {
			return k
		}
	}
	return ""
}

// ChannelParamName returns the label of par.
func ChannelParamName(par ChannelParam) string {
	for k, v := range channelParamNames {
		if v == par {
			return k
		}
	}
	return ""
}

var moduleParamVars = []ModuleVar{
	ModuleNumber:         ModNum,
	ModuleCSRA:           ModCSRA,
	ModuleCSRB:           ModCSRB,
	ModuleFormat:         ModFormat,
	MaxEvents:            VarMaxEvents,
	SynchWait:            VarSynchWait,
	InSynch:              VarInSynch,
	SlowFilterRange:      VarSlowFilterRange,
	FastFilterRange:      VarFastFilterRange,
	FastTrigBackplaneEna: VarFastTrigBackplaneEna,
	CrateID:              VarCrateID,
	SlotID:               VarSlotID,
	ModID:                VarModID,
	TrigConfig0:          VarTrigConfig,
	TrigConfig1:          VarTrigConfig,
	TrigConfig2:          VarTrigConfig,
	TrigConfig3:          VarTrigConfig,
	HostRTPreset:         HostRunTimePreset,
}

// MapModuleParam routes a user-facing module parameter to its DSP
// variable. The TrigConfig parameters all land in the TrigConfig
// variable at word offsets 0 to 3.
func MapModuleParam(par ModuleParam) (ModuleVar, int, error) {
	if par < 0 || par >= nModuleParams {
		return 0, 0, errs.New(errs.ModuleInvalidParam,
			"param: invalid module parameter %d", par,
		)
	}
	v := moduleParamVars[par]
	off := 0
	switch par {
	case TrigConfig1:
		off = 1
	case TrigConfig2:
		off = 2
	case TrigConfig3:
		off = 3
	}
	return v, off, nil
}
