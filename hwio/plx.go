// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hwio

import (
	"fmt"
	"os"
	"sync/atomic"
)

// PLX-9054 local-bus registers, relative to the module BAR window.
const (
	plxDMAMode = 0x080 // DMA channel 0 mode
	plxDMAAddr = 0x084 // local (DSP) address of the transfer
	plxDMASize = 0x088 // transfer size, in bytes
	plxDMADesc = 0x090 // descriptor pointer: direction bit
	plxDMACSR  = 0x0a8 // command/status

	plxDMAPort = 0x0c0 // data port the DMA engine streams through

	plxDMARead  = 0x1 << 3
	plxDMAStart = 0x3
)

// PLX drives one module through the BAR window of its PLX-9054
// PCI bridge.
type PLX struct {
	f    *os.File
	win  *handle
	busy int32
}

// OpenPLX maps the module register window of size bytes at offset off
// inside the device file devpath (usually the UIO or /dev/mem node the
// PCI driver exposes).
func OpenPLX(devpath string, off int64, size int) (*PLX, error) {
	f, err := os.OpenFile(devpath, os.O_RDWR|os.O_SYNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("hwio: could not open %q: %w", devpath, err)
	}
	win, err := mmapRegion(f, off, size)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("hwio: could not map PLX window: %w", err)
	}
	return &PLX{f: f, win: win}, nil
}

func (plx *PLX) ReadWord(off uint32) (uint32, error) {
	v, err := plx.win.u32(off)
	if err != nil {
		return 0, errHw(err, "hwio: could not read register 0x%x", off)
	}
	return v, nil
}

func (plx *PLX) WriteWord(off uint32, v uint32) error {
	err := plx.win.setU32(off, v)
	if err != nil {
		return errHw(err, "hwio: could not write register 0x%x", off)
	}
	return nil
}

func (plx *PLX) DMARead(addr uint32, dst []uint32) error {
	if !atomic.CompareAndSwapInt32(&plx.busy, 0, 1) {
		return errDMABusy("hwio: DMA read of 0x%x words at 0x%x", len(dst), addr)
	}
	defer atomic.StoreInt32(&plx.busy, 0)

	err := plx.armDMA(addr, len(dst), plxDMARead)
	if err != nil {
		return errDMA(err, "hwio: could not arm DMA read at 0x%x", addr)
	}
	for i := range dst {
		v, err := plx.win.u32(plxDMAPort)
		if err != nil {
			return errDMA(err, "hwio: DMA read failed at 0x%x word %d", addr, i)
		}
		dst[i] = v
	}
	return nil
}

func (plx *PLX) DMAWrite(addr uint32, src []uint32) error {
	if !atomic.CompareAndSwapInt32(&plx.busy, 0, 1) {
		return errDMABusy("hwio: DMA write of 0x%x words at 0x%x", len(src), addr)
	}
	defer atomic.StoreInt32(&plx.busy, 0)

	err := plx.armDMA(addr, len(src), 0)
	if err != nil {
		return errDMA(err, "hwio: could not arm DMA write at 0x%x", addr)
	}
	for i, v := range src {
		err = plx.win.setU32(plxDMAPort, v)
		if err != nil {
			return errDMA(err, "hwio: DMA write failed at 0x%x word %d", addr, i)
		}
	}
	return nil
}

func (plx *PLX) armDMA(addr uint32, words int, dir uint32) error {
	var err error
	set := func(off, v uint32) {
		if err != nil {
			return
		}
		err = plx.win.setU32(off, v)
	}
	set(plxDMAAddr, addr)
	set(plxDMASize, uint32(words)*4)
	set(plxDMADesc, dir)
	set(plxDMACSR, plxDMAStart)
	return err
}

func (plx *PLX) Close() error {
	if plx.f == nil {
		return nil
	}
	var (
		errWin = plx.win.Close()
		errMem = plx.f.Close()
	)
	plx.f = nil
	plx.win = nil
	if errMem != nil {
		return fmt.Errorf("hwio: could not close device file: %w", errMem)
	}
	if errWin != nil {
		return fmt.Errorf("hwio: could not unmap PLX window: %w", errWin)
	}
	return nil
}
