// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crate implements the Pixie-16 crate runtime: the modules,
// their firmware boot state machine, the typed parameter interface on
// top of the DSP memory map, the backplane coordination protocol and
// the crate facade.
package crate // import "github.com/go-daq/pixie16/crate"

import (
	"bytes"
	"log"
	"sync"
	"sync/atomic"

	"github.com/go-daq/pixie16/crate/internal/regs"
	"github.com/go-daq/pixie16/errs"
	"github.com/go-daq/pixie16/firmware"
	"github.com/go-daq/pixie16/hwio"
	"github.com/go-daq/pixie16/param"
)

// Crate and module limits.
const (
	MaxNumModules = 32 // modules a single crate object addresses
	MaxNumSlots   = 14 // physical slots of a PXI chassis
	NumChannels   = 16 // channels per Pixie-16 module

	MaxADCTraceLength  = 8192  // words of one ADC trace capture
	MaxNumBaselines    = 3640  // baseline samples of one capture
	MaxHistogramLength = 32768 // bins of one MCA spectrum
)

// TestMode selects a module self-test.
type TestMode int

const (
	TestOff    TestMode = iota
	TestLMFifo          // continuously generate FIFO traffic
)

// RunStats is the per-module statistics block decoded from the DSP
// output variables plus the host-side FIFO accounting.
type RunStats struct {
	RealTime        float64
	LiveTime        [NumChannels]float64
	InputCountRate  [NumChannels]float64
	OutputCountRate [NumChannels]float64

	HwOverflows uint64 // external FIFO overflows counted by the FPGA
	Overflows   uint64 // host-side drops (buffer pool exhausted)
	FifoIn      uint64 // words drained from the external FIFO
	FifoOut     uint64 // words handed to the output sink
}

// Module is one Pixie-16 board of the crate.
type Module struct {
	Number  int // module number, the crate index
	Slot    int // physical PXI slot
	PCIBus  int
	PCISlot int

	Revision    int
	Serial      int
	ADCBits     int
	ADCMsps     int
	NumChannels int

	drv hwio.Driver
	mu  sync.Mutex // module bus lock
	msg *log.Logger

	fw firmware.Module

	mdescs []param.Desc
	cdescs []param.Desc
	mvars  []param.Variable
	cvars  [][]param.Variable
	admap  *param.AddressMap

	opened bool
	booted bool
	probed bool
	online bool

	runActive int32 // atomic, mirrors CSR_RUNACTIVE
	test      TestMode

	crate *Crate // non-owning backref for backplane access

	stats struct {
		mu          sync.Mutex
		hwOverflows uint64
		overflows   uint64
		fifoIn      uint64
		fifoOut     uint64
	}

	offsets [NumChannels]uint32 // offset-DAC cache from the last adjust
}

// NewModule builds an offline module bound to its bus driver.
func NewModule(number, slot int, drv hwio.Driver, msg *log.Logger) *Module {
	if msg == nil {
		msg = log.New(log.Writer(), "pixie16: ", 0)
	}
	return &Module{
		Number:      number,
		Slot:        slot,
		NumChannels: NumChannels,
		drv:         drv,
		msg:         msg,
	}
}

// Open binds the module to the PCI device and reads its EEPROM
// identity: revision, serial number and ADC configuration.
func (mod *Module) Open() error {
	if mod.opened {
		return errs.New(errs.ModuleAlreadyOpen,
			"module %d: already open", mod.Number,
		)
	}
	guard := hwio.NewGuard(&mod.mu)
	defer guard.Release()

	w0, err := mod.drv.ReadWord(regs.I2C_EEPROM)
	if err != nil {
		return errs.Wrap(errs.DeviceEepromFailure, err,
			"module %d: could not read EEPROM id", mod.Number,
		)
	}
	w1, err := mod.drv.ReadWord(regs.I2C_EEPROM + 4)
	if err != nil {
		return errs.Wrap(errs.DeviceEepromFailure, err,
			"module %d: could not read EEPROM ADC info", mod.Number,
		)
	}
	mod.Serial = int(w0 >> 8)
	mod.Revision = int(w0 & 0xff)
	mod.ADCBits = int(w1 >> 16)
	mod.ADCMsps = int(w1 & 0xffff)
	if mod.Revision == 0 {
		return errs.New(errs.ModuleInfoFailure,
			"module %d: invalid EEPROM content (rev=0)", mod.Number,
		)
	}
	mod.opened = true
	mod.msg.Printf(
		"module %d: slot=%d rev=%d serial=%d adc=%d bits %d MSPS",
		mod.Number, mod.Slot, mod.Revision, mod.Serial, mod.ADCBits, mod.ADCMsps,
	)
	return nil
}

// Close returns the module to the offline state.
func (mod *Module) Close() error {
	if !mod.opened {
		return nil
	}
	if mod.RunActive() {
		return errs.New(errs.ModuleCloseFailure,
			"module %d: close with an active run", mod.Number,
		)
	}
	mod.opened = false
	mod.booted = false
	mod.probed = false
	mod.online = false
	return nil
}

// Online reports whether the module is booted, probed and usable.
func (mod *Module) Online() bool { return mod.online }

// SetFirmware binds the module to its firmware references.
func (mod *Module) SetFirmware(fw firmware.Module) { mod.fw = fw }

// Firmware returns the bound firmware references.
func (mod *Module) Firmware() firmware.Module { return mod.fw }

// Probe loads the DSP variable descriptors from the bound VAR
// firmware, derives the address map and allocates the host-side value
// cells.
func (mod *Module) Probe() error {
	if !mod.opened {
		return errs.New(errs.ModuleOffline, "module %d: not open", mod.Number)
	}
	fw, err := firmware.Find(mod.fw, firmware.Var, mod.Slot)
	if err != nil {
		return errs.Wrap(errs.ModuleInvalidFirmware, err,
			"module %d: no DSP VAR firmware", mod.Number,
		)
	}
	raw, err := fw.Bytes()
	if err != nil {
		return err
	}

	mod.mdescs = param.ModuleVarDescs()
	mod.cdescs = param.ChannelVarDescs()
	err = param.Load(bytes.NewReader(raw), mod.mdescs, mod.cdescs)
	if err != nil {
		return errs.Wrap(errs.ModuleInitializeFailure, err,
			"module %d: could not load DSP variables", mod.Number,
		)
	}
	mod.admap, err = param.NewAddressMap(mod.NumChannels, mod.mdescs, mod.cdescs)
	if err != nil {
		return err
	}
	mod.mvars = param.NewVariables(mod.mdescs)
	mod.cvars = make([][]param.Variable, mod.NumChannels)
	for ch := range mod.cvars {
		mod.cvars[ch] = param.NewVariables(mod.cdescs)
	}
	mod.initVarDefaults()
	mod.probed = true
	return nil
}

// AddressMap returns the address map derived at probe time.
func (mod *Module) AddressMap() *param.AddressMap { return mod.admap }

// initVarDefaults seeds the host cache with workable filter settings
// so a freshly booted module triggers and histograms sanely before any
// configuration is imported.
func (mod *Module) initVarDefaults() {
	set := func(v param.ModuleVar, val uint32) {
		if mod.mdescs[v].Enabled {
			mod.mvars[v].Data[0].Value = val
			mod.mvars[v].Data[0].Dirty = true
		}
	}
	set(param.ModNum, uint32(mod.Number))
	set(param.VarSlotID, uint32(mod.Slot))
	set(param.VarModID, uint32(mod.Serial))
	set(param.ChanNum, uint32(mod.NumChannels))
	set(param.VarSlowFilterRange, 2)
	set(param.VarFastFilterRange, 0)
	set(param.VarMaxEvents, 0)

	for ch := range mod.cvars {
		cset := func(v param.ChannelVar, val uint32) {
			if mod.cdescs[v].Enabled {
				mod.cvars[ch][v].Data[0].Value = val
				mod.cvars[ch][v].Data[0].Dirty = true
			}
		}
		cset(param.FastLength, 10)
		cset(param.FastGap, 10)
		cset(param.FastThresh, 1000)
		cset(param.SlowLength, 20)
		cset(param.SlowGap, 10)
		cset(param.PeakSample, 26)
		cset(param.PeakSep, 30)
		cset(param.OffsetDAC, 0x8000)
		cset(param.Log2Ebin, ^uint32(0)) // 2^-1 binning
		cset(param.VarBaselinePercent, 10)
		cset(param.VarTraceLength, 250)
		cset(param.PAFlength, 258)
		cset(param.TriggerDelay, 250)
	}
}

func (mod *Module) checkChannel(ch int) error {
	if ch < 0 || ch >= mod.NumChannels {
		return errs.New(errs.ChannelNumberInvalid,
			"module %d: invalid channel %d", mod.Number, ch,
		)
	}
	return nil
}

func (mod *Module) checkOnline() error {
	if !mod.online {
		return errs.New(errs.ModuleOffline, "module %d: offline", mod.Number)
	}
	return nil
}

func (mod *Module) checkProbed() error {
	if !mod.probed {
		return errs.New(errs.CrateNotReady, "module %d: not probed", mod.Number)
	}
	return nil
}

// RunActive reports whether a data-acquisition run is in progress.
// It is a lock-free status probe.
func (mod *Module) RunActive() bool {
	return atomic.LoadInt32(&mod.runActive) != 0
}

func (mod *Module) setRunActive(v bool) {
	if v {
		atomic.StoreInt32(&mod.runActive, 1)
		return
	}
	atomic.StoreInt32(&mod.runActive, 0)
}

// DirtyCount returns the number of host cells not yet flushed to the
// DSP.
func (mod *Module) DirtyCount() int {
	n := 0
	for i := range mod.mvars {
		for j := range mod.mvars[i].Data {
			if mod.mvars[i].Data[j].Dirty {
				n++
			}
		}
	}
	for ch := range mod.cvars {
		for i := range mod.cvars[ch] {
			for j := range mod.cvars[ch][i].Data {
				if mod.cvars[ch][i].Data[j].Dirty {
					n++
				}
			}
		}
	}
	return n
}
