// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"log"
	"sort"
	"sync/atomic"

	"github.com/go-daq/pixie16/buffer"
	"github.com/go-daq/pixie16/errs"
	"github.com/go-daq/pixie16/firmware"
	"github.com/go-daq/pixie16/hwio"
	"golang.org/x/sync/errgroup"
)

// Device is one module found on the bus by a Finder.
type Device struct {
	Slot    int
	PCIBus  int
	PCISlot int
	Driver  hwio.Driver
}

// Finder discovers the modules present on the PCI/PXI bus. The
// low-level bus scan lives with the driver; the crate only consumes
// its result.
type Finder func() ([]Device, error)

// The hardware library keeps a process-wide open-module table: only
// one crate can be live per process. Construction of the crate facade
// is the single entry point, Close the single exit.
var crateOpen int32

// Crate owns the modules of one PXI chassis, their shared firmware
// registry, the backplane coordinator and the event buffer pool.
type Crate struct {
	msg *log.Logger

	Modules   []*Module
	Firmwares firmware.Crate
	Backplane *Backplane
	Pool      *buffer.Pool

	slotMap map[int]int // slot -> module number
	trace   bool
	open    bool
}

// New returns an idle crate.
func New(msg *log.Logger) *Crate {
	if msg == nil {
		msg = log.New(log.Writer(), "pixie16: ", 0)
	}
	return &Crate{
		msg:       msg,
		Firmwares: make(firmware.Crate),
		Pool:      &buffer.Pool{},
		slotMap:   make(map[int]int),
	}
}

// Initialize discovers the modules with find and opens them. When
// numModules is non-zero a discovery mismatch fails. With
// registerTrace set, every register access is logged.
func (crt *Crate) Initialize(find Finder, numModules int, registerTrace bool) error {
	if crt.open || !atomic.CompareAndSwapInt32(&crateOpen, 0, 1) {
		return errs.New(errs.CrateAlreadyOpen, "crate: already open")
	}
	ok := false
	defer func() {
		if !ok {
			atomic.StoreInt32(&crateOpen, 0)
		}
	}()

	devs, err := find()
	if err != nil {
		return errs.Wrap(errs.ModuleNotFound, err, "crate: bus scan failed")
	}
	if numModules != 0 && len(devs) != numModules {
		return errs.New(errs.ModuleTotalInvalid,
			"crate: found %d modules (want %d)", len(devs), numModules,
		)
	}
	if len(devs) == 0 || len(devs) > MaxNumModules {
		return errs.New(errs.ModuleTotalInvalid,
			"crate: invalid module count %d", len(devs),
		)
	}

	crt.trace = registerTrace
	crt.Backplane = NewBackplane(len(devs), crt.msg)
	crt.Modules = crt.Modules[:0]
	for i, dev := range devs {
		drv := dev.Driver
		if crt.trace {
			drv = &hwio.Trace{Drv: drv, Msg: crt.msg, Name: dev.Slot}
		}
		mod := NewModule(i, dev.Slot, drv, crt.msg)
		mod.PCIBus = dev.PCIBus
		mod.PCISlot = dev.PCISlot
		mod.crate = crt
		err := mod.Open()
		if err != nil {
			return err
		}
		crt.Modules = append(crt.Modules, mod)
		crt.slotMap[dev.Slot] = i
	}

	crt.open = true
	ok = true
	crt.msg.Printf("crate: %d module(s) initialized", len(crt.Modules))
	return nil
}

// Assign applies an explicit slot-to-number mapping: slotMap[i] is the
// physical slot of module number i. The mapping must be a bijection
// over the discovered slots.
func (crt *Crate) Assign(slotMap []int) error {
	if err := crt.checkOpen(); err != nil {
		return err
	}
	if len(slotMap) != len(crt.Modules) {
		return errs.New(errs.SlotMapInvalid,
			"crate: slot map size %d (want %d)", len(slotMap), len(crt.Modules),
		)
	}
	bySlot := make(map[int]*Module, len(crt.Modules))
	for _, mod := range crt.Modules {
		bySlot[mod.Slot] = mod
	}
	seen := make(map[int]bool, len(slotMap))
	mods := make([]*Module, len(slotMap))
	for num, slot := range slotMap {
		if seen[slot] {
			return errs.New(errs.SlotMapInvalid,
				"crate: duplicate slot %d in slot map", slot,
			)
		}
		seen[slot] = true
		mod, found := bySlot[slot]
		if !found {
			return errs.New(errs.ModuleInvalidSlot,
				"crate: no module in slot %d", slot,
			)
		}
		mod.Number = num
		mods[num] = mod
	}
	crt.Modules = mods
	crt.slotMap = make(map[int]int, len(mods))
	for _, mod := range crt.Modules {
		crt.slotMap[mod.Slot] = mod.Number
	}
	return nil
}

// SetFirmware binds each module to the firmware references of its
// revision.
func (crt *Crate) SetFirmware() error {
	if err := crt.checkOpen(); err != nil {
		return err
	}
	for _, mod := range crt.Modules {
		fw, ok := crt.Firmwares[mod.Revision]
		if !ok {
			return errs.New(errs.ModuleInvalidFirmware,
				"crate: no firmware for module %d (rev=%d)", mod.Number, mod.Revision,
			)
		}
		mod.SetFirmware(fw)
	}
	return nil
}

// Probe loads the variable descriptors and address maps of every
// module and brings them online for parameter access.
func (crt *Crate) Probe() error {
	if err := crt.checkOpen(); err != nil {
		return err
	}
	for _, mod := range crt.Modules {
		err := mod.Probe()
		if err != nil {
			return err
		}
		mod.online = true
	}
	return nil
}

// Boot boots every module in parallel with the given pattern.
func (crt *Crate) Boot(pattern byte) error {
	if err := crt.checkOpen(); err != nil {
		return err
	}
	var grp errgroup.Group
	for _, mod := range crt.Modules {
		mod := mod
		grp.Go(func() error {
			return mod.Boot(pattern)
		})
	}
	return grp.Wait()
}

// InitializeAFE pushes the host parameter cache to the DSPs and
// re-syncs the analog front-end hardware.
func (crt *Crate) InitializeAFE() error {
	if err := crt.checkOpen(); err != nil {
		return err
	}
	for _, mod := range crt.Modules {
		err := mod.SyncVars()
		if err != nil {
			return err
		}
		err = mod.SyncHW()
		if err != nil {
			return err
		}
	}
	return nil
}

// Module returns module number num.
func (crt *Crate) Module(num int) (*Module, error) {
	if num < 0 || num >= len(crt.Modules) {
		return nil, errs.New(errs.ModuleNumberInvalid,
			"crate: invalid module number %d", num,
		)
	}
	return crt.Modules[num], nil
}

// ModuleInSlot returns the module sitting in the physical slot.
func (crt *Crate) ModuleInSlot(slot int) (*Module, error) {
	num, ok := crt.slotMap[slot]
	if !ok {
		return nil, errs.New(errs.ModuleInvalidSlot,
			"crate: no module in slot %d", slot,
		)
	}
	return crt.Modules[num], nil
}

// Slots returns the physical slots in ascending slot order.
func (crt *Crate) Slots() []int {
	slots := make([]int, 0, len(crt.Modules))
	for _, mod := range crt.Modules {
		slots = append(slots, mod.Slot)
	}
	sort.Ints(slots)
	return slots
}

func (crt *Crate) checkOpen() error {
	if !crt.open {
		return errs.New(errs.CrateNotReady, "crate: not initialized")
	}
	return nil
}

// Close shuts the crate down, closing every module and releasing the
// process-wide registration.
func (crt *Crate) Close() error {
	if !crt.open {
		return nil
	}
	var first error
	for _, mod := range crt.Modules {
		err := mod.Close()
		if err != nil && first == nil {
			first = err
		}
		err = mod.drv.Close()
		if err != nil && first == nil {
			first = err
		}
	}
	crt.open = false
	atomic.StoreInt32(&crateOpen, 0)
	return first
}
