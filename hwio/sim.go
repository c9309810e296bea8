// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hwio

import (
	"sync"
)

// Sim is an in-memory driver for offline crates and tests. The register
// window and the DMA address space are sparse word maps; hooks may
// intercept individual accesses to model device behaviour.
//
// Hooks run outside the driver lock so they may call Peek/Poke.
type Sim struct {
	mu  sync.Mutex
	reg map[uint32]uint32
	ram map[uint32]uint32

	// OnRead, if set, may override the value read at off.
	OnRead func(off uint32, v uint32) (uint32, bool)
	// OnWrite, if set, may consume the write at off.
	OnWrite func(off uint32, v uint32) bool
	// OnDMARead, if set, may serve the whole block transfer.
	OnDMARead func(addr uint32, dst []uint32) bool

	// Fail, if set, is returned by every access.
	Fail error
}

// NewSim returns an empty simulated module.
func NewSim() *Sim {
	return &Sim{
		reg: make(map[uint32]uint32),
		ram: make(map[uint32]uint32),
	}
}

func (sim *Sim) ReadWord(off uint32) (uint32, error) {
	if sim.Fail != nil {
		return 0, errHw(sim.Fail, "hwio: could not read register 0x%x", off)
	}
	v := sim.Peek(off)
	if sim.OnRead != nil {
		if o, ok := sim.OnRead(off, v); ok {
			return o, nil
		}
	}
	return v, nil
}

func (sim *Sim) WriteWord(off uint32, v uint32) error {
	if sim.Fail != nil {
		return errHw(sim.Fail, "hwio: could not write register 0x%x", off)
	}
	if sim.OnWrite != nil && sim.OnWrite(off, v) {
		return nil
	}
	sim.Poke(off, v)
	return nil
}

func (sim *Sim) DMARead(addr uint32, dst []uint32) error {
	if sim.Fail != nil {
		return errDMA(sim.Fail, "hwio: DMA read failed at 0x%x", addr)
	}
	if sim.OnDMARead != nil && sim.OnDMARead(addr, dst) {
		return nil
	}
	sim.mu.Lock()
	defer sim.mu.Unlock()
	for i := range dst {
		dst[i] = sim.ram[addr+uint32(i)]
	}
	return nil
}

func (sim *Sim) DMAWrite(addr uint32, src []uint32) error {
	if sim.Fail != nil {
		return errDMA(sim.Fail, "hwio: DMA write failed at 0x%x", addr)
	}
	sim.mu.Lock()
	defer sim.mu.Unlock()
	for i, v := range src {
		sim.ram[addr+uint32(i)] = v
	}
	return nil
}

func (sim *Sim) Close() error { return nil }

// Peek returns the register cell at off without driver bookkeeping.
func (sim *Sim) Peek(off uint32) uint32 {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.reg[off]
}

// Poke sets the register cell at off without driver bookkeeping.
func (sim *Sim) Poke(off uint32, v uint32) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.reg[off] = v
}

// PeekRAM returns the DMA-space cell at addr.
func (sim *Sim) PeekRAM(addr uint32) uint32 {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.ram[addr]
}

// PokeRAM sets the DMA-space cell at addr.
func (sim *Sim) PokeRAM(addr uint32, v uint32) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.ram[addr] = v
}
