// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcrate builds crates for the command front-ends, either from
// a configuration file over real hardware or fully simulated.
package xcrate // import "github.com/go-daq/pixie16/internal/xcrate"

import (
	"fmt"
	"log"
	"os"

	"github.com/go-daq/pixie16/crate"
	"github.com/go-daq/pixie16/errs"
	"github.com/go-daq/pixie16/firmware"
	"github.com/go-daq/pixie16/hwio"
)

const plxWinSize = 0x100000 // BAR window of one module

// Options selects how the crate is put together.
type Options struct {
	Sim    int     // number of simulated modules; 0 selects hardware
	Rate   float64 // simulated FIFO rate, words per second
	Config string  // JSON configuration path
	Legacy string  // legacy text configuration path
	Boot   byte
	Trace  bool
}

// New builds, initializes and boots a crate according to opts.
func New(msg *log.Logger, opts Options) (*crate.Crate, error) {
	if opts.Boot == 0 {
		opts.Boot = crate.BootAll
	}
	if opts.Sim > 0 {
		if opts.Rate <= 0 {
			opts.Rate = 1000
		}
		return crate.NewSimCrate(opts.Sim, opts.Rate)
	}

	cfg, err := readConfig(opts)
	if err != nil {
		return nil, err
	}

	crt := crate.New(msg)
	err = crt.Initialize(pciFinder(cfg), len(cfg), opts.Trace)
	if err != nil {
		return nil, err
	}

	for _, mc := range cfg {
		rev := 0
		if mc.FW != nil {
			rev = mc.FW.Revision
		}
		if rev == 0 {
			mod, err := crt.ModuleInSlot(mc.Slot)
			if err != nil {
				return nil, err
			}
			rev = mod.Revision
		}
		version := "site"
		if mc.FW != nil {
			version = mc.FW.Version
		}
		for _, item := range []struct{ device, fname string }{
			{firmware.Sys, mc.FPGA.Sys},
			{firmware.Fippi, mc.FPGA.Fippi},
			{firmware.DSP, mc.DSP.Ldr},
			{firmware.Var, mc.DSP.Var},
		} {
			fw := &firmware.Firmware{
				Version:     version,
				ModRevision: rev,
				Device:      item.device,
				Filename:    item.fname,
				Slots:       []int{mc.Slot},
			}
			if firmware.Check(crt.Firmwares, fw) {
				continue
			}
			err = firmware.Add(crt.Firmwares, fw)
			if err != nil {
				return nil, err
			}
		}
	}

	err = crt.SetFirmware()
	if err != nil {
		return nil, err
	}
	err = crt.Boot(opts.Boot)
	if err != nil {
		return nil, err
	}
	return crt, nil
}

func readConfig(opts Options) ([]crate.ModuleConfig, error) {
	switch {
	case opts.Config != "":
		f, err := os.Open(opts.Config)
		if err != nil {
			return nil, errs.Wrap(errs.FileOpenFailure, err,
				"xcrate: could not open %q", opts.Config,
			)
		}
		defer f.Close()
		return crate.ReadConfig(f)
	case opts.Legacy != "":
		f, err := os.Open(opts.Legacy)
		if err != nil {
			return nil, errs.Wrap(errs.FileOpenFailure, err,
				"xcrate: could not open %q", opts.Legacy,
			)
		}
		defer f.Close()
		return crate.ReadLegacyConfig(f)
	}
	return nil, errs.New(errs.ConfigInvalidParam, "xcrate: no configuration given")
}

func pciFinder(cfg []crate.ModuleConfig) crate.Finder {
	return func() ([]crate.Device, error) {
		devs := make([]crate.Device, 0, len(cfg))
		for _, mc := range cfg {
			drv, err := hwio.OpenPLX(
				fmt.Sprintf("/dev/pixie16/slot%02d", mc.Slot),
				0, plxWinSize,
			)
			if err != nil {
				return nil, fmt.Errorf("xcrate: could not open slot %d: %w", mc.Slot, err)
			}
			devs = append(devs, crate.Device{
				Slot:    mc.Slot,
				PCIBus:  1,
				PCISlot: mc.Slot,
				Driver:  drv,
			})
		}
		return devs, nil
	}
}

// ExitCode maps err onto the process exit code: zero on success, the
// negated API result otherwise.
func ExitCode(err error) int {
	return -errs.ApiResult(err)
}
