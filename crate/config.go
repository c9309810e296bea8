// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"os"

	"github.com/go-daq/pixie16/errs"
	"github.com/go-daq/pixie16/firmware"
	"github.com/go-daq/pixie16/param"
)

// DSPConfig holds the DSP firmware paths of one module.
type DSPConfig struct {
	Ldr string `json:"ldr"`
	Par string `json:"par,omitempty"`
	Var string `json:"var"`
}

// FPGAConfig holds the FPGA firmware paths of one module.
type FPGAConfig struct {
	Sys   string `json:"sys"`
	Fippi string `json:"fippi"`
}

// FWConfig pins the firmware identity of one module.
type FWConfig struct {
	Version  string `json:"version"`
	Revision int    `json:"revision"`
	ADCMsps  int    `json:"adc_msps"`
	ADCBits  int    `json:"adc_bits"`
}

// ModuleConfig is one element of the JSON crate configuration.
type ModuleConfig struct {
	Slot int        `json:"slot"`
	DSP  DSPConfig  `json:"dsp"`
	FPGA FPGAConfig `json:"fpga"`
	FW   *FWConfig  `json:"fw,omitempty"`

	// Parameter state. Module variables map a name to its words,
	// channel variables to one word set per channel.
	ModuleVars  map[string][]uint32   `json:"module,omitempty"`
	ChannelVars map[string][][]uint32 `json:"channel,omitempty"`
}

// ReadConfig decodes and validates a JSON crate configuration.
func ReadConfig(r io.Reader) ([]ModuleConfig, error) {
	var cfg []ModuleConfig
	err := json.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, errs.Wrap(errs.ConfigJSONError, err,
			"config: could not decode JSON configuration",
		)
	}
	if len(cfg) == 0 || len(cfg) > MaxNumModules {
		return nil, errs.New(errs.ConfigInvalidParam,
			"config: invalid module count %d", len(cfg),
		)
	}
	for i, mc := range cfg {
		if mc.Slot <= 0 {
			return nil, errs.New(errs.ConfigInvalidParam,
				"config: module %d: missing slot", i,
			)
		}
		if mc.DSP.Ldr == "" || mc.DSP.Var == "" {
			return nil, errs.New(errs.ConfigInvalidParam,
				"config: slot %d: missing dsp firmware path", mc.Slot,
			)
		}
		if mc.FPGA.Sys == "" || mc.FPGA.Fippi == "" {
			return nil, errs.New(errs.ConfigInvalidParam,
				"config: slot %d: missing fpga firmware path", mc.Slot,
			)
		}
	}
	return cfg, nil
}

// ImportConfig restores a crate configuration: firmware bindings and
// the full parameter state. Imported variables land in the host cache;
// InitializeAFE pushes them to the DSPs and re-syncs the hardware.
// It returns the slots the configuration addressed.
func (crt *Crate) ImportConfig(path string) ([]int, error) {
	if err := crt.checkOpen(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.FileOpenFailure, err,
			"config: could not open %q", path,
		)
	}
	defer f.Close()

	cfg, err := ReadConfig(f)
	if err != nil {
		return nil, err
	}

	var slots []int
	for _, mc := range cfg {
		mod, err := crt.ModuleInSlot(mc.Slot)
		if err != nil {
			return nil, err
		}
		slots = append(slots, mc.Slot)

		err = crt.registerConfigFirmware(mod, mc)
		if err != nil {
			return nil, err
		}
		err = mod.applyVars(mc)
		if err != nil {
			return nil, err
		}
	}

	err = crt.InitializeAFE()
	if err != nil {
		return nil, err
	}
	return slots, nil
}

func (crt *Crate) registerConfigFirmware(mod *Module, mc ModuleConfig) error {
	version := "site"
	rev := mod.Revision
	if mc.FW != nil {
		version = mc.FW.Version
		rev = mc.FW.Revision
	}
	add := func(device, fname string) error {
		if fname == "" {
			return nil
		}
		fw := &firmware.Firmware{
			Version:     version,
			ModRevision: rev,
			Device:      device,
			Filename:    fname,
			Slots:       []int{mc.Slot},
		}
		if firmware.Check(crt.Firmwares, fw) {
			return nil
		}
		return firmware.Add(crt.Firmwares, fw)
	}
	for _, item := range []struct{ device, fname string }{
		{firmware.Sys, mc.FPGA.Sys},
		{firmware.Fippi, mc.FPGA.Fippi},
		{firmware.DSP, mc.DSP.Ldr},
		{firmware.Var, mc.DSP.Var},
	} {
		err := add(item.device, item.fname)
		if err != nil {
			return err
		}
	}
	mod.SetFirmware(crt.Firmwares[rev])
	return nil
}

func (mod *Module) applyVars(mc ModuleConfig) error {
	if err := mod.checkProbed(); err != nil {
		return err
	}
	for name, words := range mc.ModuleVars {
		idx := -1
		for i := range mod.mdescs {
			if mod.mdescs[i].Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return errs.New(errs.ConfigParamNotFound,
				"config: module %d: unknown variable %q", mod.Number, name,
			)
		}
		mv := &mod.mvars[idx]
		if !mv.Desc.Enabled || mv.Desc.Mode == param.RO {
			continue
		}
		for j := 0; j < len(words) && j < len(mv.Data); j++ {
			mv.Data[j].Value = words[j]
			mv.Data[j].Dirty = true
		}
	}
	for name, chans := range mc.ChannelVars {
		idx := -1
		for i := range mod.cdescs {
			if mod.cdescs[i].Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return errs.New(errs.ConfigParamNotFound,
				"config: module %d: unknown channel variable %q", mod.Number, name,
			)
		}
		for ch := 0; ch < len(chans) && ch < mod.NumChannels; ch++ {
			cv := &mod.cvars[ch][idx]
			if !cv.Desc.Enabled || cv.Desc.Mode == param.RO {
				continue
			}
			for j := 0; j < len(chans[ch]) && j < len(cv.Data); j++ {
				cv.Data[j].Value = chans[ch][j]
				cv.Data[j].Dirty = true
			}
		}
	}
	return nil
}

// ExportConfig persists the crate configuration and the full parameter
// state as JSON.
func (crt *Crate) ExportConfig(path string) error {
	if err := crt.checkOpen(); err != nil {
		return err
	}
	cfg := make([]ModuleConfig, 0, len(crt.Modules))
	for _, mod := range crt.Modules {
		mc := ModuleConfig{Slot: mod.Slot}
		fwOf := func(device string) string {
			fw, err := firmware.Find(mod.fw, device, mod.Slot)
			if err != nil {
				return ""
			}
			return fw.Filename
		}
		mc.FPGA.Sys = fwOf(firmware.Sys)
		mc.FPGA.Fippi = fwOf(firmware.Fippi)
		mc.DSP.Ldr = fwOf(firmware.DSP)
		mc.DSP.Var = fwOf(firmware.Var)
		if fw, err := firmware.Find(mod.fw, firmware.DSP, mod.Slot); err == nil {
			mc.FW = &FWConfig{
				Version:  fw.Version,
				Revision: mod.Revision,
				ADCMsps:  mod.ADCMsps,
				ADCBits:  mod.ADCBits,
			}
		}

		if mod.probed {
			mc.ModuleVars = make(map[string][]uint32)
			for i := range mod.mvars {
				mv := &mod.mvars[i]
				if !mv.Desc.Enabled || mv.Desc.Mode == param.RO {
					continue
				}
				words := make([]uint32, len(mv.Data))
				for j := range mv.Data {
					words[j] = mv.Data[j].Value
				}
				mc.ModuleVars[mv.Desc.Name] = words
			}
			mc.ChannelVars = make(map[string][][]uint32)
			for i := range mod.cdescs {
				if !mod.cdescs[i].Enabled || mod.cdescs[i].Mode == param.RO {
					continue
				}
				chans := make([][]uint32, mod.NumChannels)
				for ch := 0; ch < mod.NumChannels; ch++ {
					cv := &mod.cvars[ch][i]
					words := make([]uint32, len(cv.Data))
					for j := range cv.Data {
						words[j] = cv.Data[j].Value
					}
					chans[ch] = words
				}
				mc.ChannelVars[mod.cdescs[i].Name] = chans
			}
		}
		cfg = append(cfg, mc)
	}

	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(errs.FileCreateFailure, err,
			"config: could not create %q", path,
		)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	err = enc.Encode(cfg)
	if err != nil {
		return errs.Wrap(errs.ConfigJSONError, err,
			"config: could not encode %q", path,
		)
	}
	return f.Close()
}

// SaveDSPParsFile persists the DSP parameter blobs of every module,
// concatenated in module-number order, as little-endian words.
func (crt *Crate) SaveDSPParsFile(path string) error {
	if err := crt.checkOpen(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(errs.FileCreateFailure, err,
			"crate: could not create %q", path,
		)
	}
	defer f.Close()

	for _, mod := range crt.Modules {
		blob, err := mod.SaveDSPPars()
		if err != nil {
			return err
		}
		err = binary.Write(f, binary.LittleEndian, blob)
		if err != nil {
			return errs.Wrap(errs.FileCreateFailure, err,
				"crate: could not write %q", path,
			)
		}
	}
	return f.Close()
}

// LoadDSPParsFile restores the DSP parameter blobs written by
// SaveDSPParsFile into the host caches and flushes them to the DSPs.
func (crt *Crate) LoadDSPParsFile(path string) error {
	if err := crt.checkOpen(); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return errs.Wrap(errs.FileOpenFailure, err,
			"crate: could not open %q", path,
		)
	}
	defer f.Close()

	for _, mod := range crt.Modules {
		am := mod.admap
		if am == nil {
			return errs.New(errs.CrateNotReady,
				"crate: module %d not probed", mod.Number,
			)
		}
		blob := make([]uint32, am.ModuleIn.Size()+am.Channels.Size())
		err = binary.Read(f, binary.LittleEndian, blob)
		if err != nil {
			return errs.Wrap(errs.FileReadFailure, err,
				"crate: could not read %q", path,
			)
		}
		err = mod.LoadDSPPars(blob)
		if err != nil {
			return err
		}
		err = mod.SyncVars()
		if err != nil {
			return err
		}
	}
	return nil
}
