// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hwio provides word and block access to the memory-mapped
// register window of a Pixie-16 module sitting on a PCI/PXI bus.
package hwio // import "github.com/go-daq/pixie16/hwio"

import (
	"sync"

	"github.com/go-daq/pixie16/errs"
)

// Driver gives word-at-a-time and block-DMA access to the register
// window of a single module.
type Driver interface {
	// ReadWord reads the 32b register at offset off.
	ReadWord(off uint32) (uint32, error)
	// WriteWord writes v to the 32b register at offset off.
	WriteWord(off uint32, v uint32) error
	// DMARead block-reads len(dst) words from the device address addr.
	DMARead(addr uint32, dst []uint32) error
	// DMAWrite block-writes src to the device address addr.
	DMAWrite(addr uint32, src []uint32) error

	Close() error
}

// Guard is the scoped acquisition of a module's bus lock. All register
// accesses for a module must be made while holding its guard.
type Guard struct {
	mu   *sync.Mutex
	held bool
}

// NewGuard locks mu and returns the guard owning it.
func NewGuard(mu *sync.Mutex) *Guard {
	mu.Lock()
	return &Guard{mu: mu, held: true}
}

// Release unlocks the guarded bus. Release is idempotent so the guard
// may be released early and still deferred.
func (g *Guard) Release() {
	if !g.held {
		return
	}
	g.held = false
	g.mu.Unlock()
}

// DryRun wraps a driver so that all writes and DMA transfers
// short-circuit with a success return and no side effect.
// Reads go through to the wrapped driver.
type DryRun struct {
	Drv Driver
}

func (dry *DryRun) ReadWord(off uint32) (uint32, error) { return dry.Drv.ReadWord(off) }

func (dry *DryRun) WriteWord(off uint32, v uint32) error { return nil }

func (dry *DryRun) DMARead(addr uint32, dst []uint32) error { return dry.Drv.DMARead(addr, dst) }

func (dry *DryRun) DMAWrite(addr uint32, src []uint32) error { return nil }

func (dry *DryRun) Close() error { return dry.Drv.Close() }

var (
	_ Driver = (*DryRun)(nil)
	_ Driver = (*PLX)(nil)
	_ Driver = (*Sim)(nil)
)

func errHw(cause error, format string, args ...interface{}) error {
	return errs.Wrap(errs.DeviceHwFailure, cause, format, args...)
}

func errDMA(cause error, format string, args ...interface{}) error {
	return errs.Wrap(errs.DeviceDmaFailure, cause, format, args...)
}

func errDMABusy(format string, args ...interface{}) error {
	return errs.New(errs.DeviceDmaBusy, format, args...)
}
