// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hwio

import (
	"os"
	"sync"
	"testing"

	"github.com/go-daq/pixie16/errs"
)

func TestGuard(t *testing.T) {
	var mu sync.Mutex
	g := NewGuard(&mu)
	if mu.TryLock() {
		t.Fatalf("bus not locked while guarded")
	}
	g.Release()
	if !mu.TryLock() {
		t.Fatalf("bus still locked after release")
	}
	mu.Unlock()

	// release is idempotent
	g = NewGuard(&mu)
	g.Release()
	g.Release()
	if !mu.TryLock() {
		t.Fatalf("double release corrupted the lock")
	}
	mu.Unlock()
}

func TestSim(t *testing.T) {
	sim := NewSim()
	err := sim.WriteWord(0x48, 0xdead)
	if err != nil {
		t.Fatalf("could not write word: %+v", err)
	}
	v, err := sim.ReadWord(0x48)
	if err != nil {
		t.Fatalf("could not read word: %+v", err)
	}
	if v != 0xdead {
		t.Fatalf("invalid word: got=0x%x", v)
	}

	src := []uint32{1, 2, 3, 4}
	err = sim.DMAWrite(0x4a000, src)
	if err != nil {
		t.Fatalf("could not DMA write: %+v", err)
	}
	dst := make([]uint32, 4)
	err = sim.DMARead(0x4a000, dst)
	if err != nil {
		t.Fatalf("could not DMA read: %+v", err)
	}
	for i := range src {
		if src[i] != dst[i] {
			t.Fatalf("DMA word %d: got=%d, want=%d", i, dst[i], src[i])
		}
	}

	sim.Fail = os.ErrInvalid
	_, err = sim.ReadWord(0x48)
	if errs.CodeOf(err) != errs.DeviceHwFailure {
		t.Fatalf("forced failure: got=%v", errs.CodeOf(err))
	}
	err = sim.DMARead(0x4a000, dst)
	if errs.CodeOf(err) != errs.DeviceDmaFailure {
		t.Fatalf("forced DMA failure: got=%v", errs.CodeOf(err))
	}
}

func TestSimHooks(t *testing.T) {
	sim := NewSim()
	sim.OnRead = func(off, v uint32) (uint32, bool) {
		if off == 0x10 {
			return 0x42, true
		}
		return 0, false
	}
	var wrote []uint32
	sim.OnWrite = func(off, v uint32) bool {
		if off == 0x20 {
			wrote = append(wrote, v)
			return true
		}
		return false
	}

	v, err := sim.ReadWord(0x10)
	if err != nil || v != 0x42 {
		t.Fatalf("read hook not honoured: v=0x%x err=%v", v, err)
	}
	err = sim.WriteWord(0x20, 7)
	if err != nil {
		t.Fatalf("could not write hooked word: %+v", err)
	}
	if len(wrote) != 1 || wrote[0] != 7 {
		t.Fatalf("write hook not honoured: %v", wrote)
	}
	if sim.Peek(0x20) != 0 {
		t.Fatalf("consumed write reached the register file")
	}
}

func TestDryRun(t *testing.T) {
	sim := NewSim()
	sim.Poke(0x48, 0x1)
	dry := &DryRun{Drv: sim}

	err := dry.WriteWord(0x48, 0xffff)
	if err != nil {
		t.Fatalf("dry-run write failed: %+v", err)
	}
	v, err := dry.ReadWord(0x48)
	if err != nil {
		t.Fatalf("dry-run read failed: %+v", err)
	}
	if v != 0x1 {
		t.Fatalf("dry-run write had a side effect: 0x%x", v)
	}
	err = dry.DMAWrite(0x1000, []uint32{1, 2, 3})
	if err != nil {
		t.Fatalf("dry-run DMA write failed: %+v", err)
	}
	if sim.PeekRAM(0x1000) != 0 {
		t.Fatalf("dry-run DMA write had a side effect")
	}
}
