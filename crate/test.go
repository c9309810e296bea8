// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"github.com/go-daq/pixie16/crate/internal/regs"
	"github.com/go-daq/pixie16/errs"
	"github.com/go-daq/pixie16/hwio"
)

// StartTest starts a module self-test. TestLMFifo makes the FPGA
// generate continuous FIFO traffic for throughput measurements.
func (mod *Module) StartTest(mode TestMode) error {
	if err := mod.checkOnline(); err != nil {
		return err
	}
	if mod.RunActive() {
		return errs.New(errs.ModuleInvalidOperation,
			"module %d: test start with an active run", mod.Number,
		)
	}
	if mod.test != TestOff {
		return errs.New(errs.ModuleTestInvalid,
			"module %d: test already running", mod.Number,
		)
	}
	switch mode {
	case TestOff:
		return nil
	case TestLMFifo:
		guard := hwio.NewGuard(&mod.mu)
		defer guard.Release()
		err := mod.drv.WriteWord(regs.TEST_CTRL, 1)
		if err != nil {
			return errs.Wrap(errs.DeviceHwFailure, err,
				"module %d: could not start lm-fifo test", mod.Number,
			)
		}
		mod.test = mode
		return nil
	default:
		return errs.New(errs.ModuleTestInvalid,
			"module %d: unknown test mode %d", mod.Number, mode,
		)
	}
}

// EndTest stops an active self-test.
func (mod *Module) EndTest() error {
	if mod.test == TestOff {
		return nil
	}
	guard := hwio.NewGuard(&mod.mu)
	defer guard.Release()
	err := mod.drv.WriteWord(regs.TEST_CTRL, 0)
	if err != nil {
		return errs.Wrap(errs.DeviceHwFailure, err,
			"module %d: could not stop test", mod.Number,
		)
	}
	mod.test = TestOff
	return nil
}

// Test returns the active test mode.
func (mod *Module) Test() TestMode { return mod.test }
