// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"bytes"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-daq/pixie16/crate/internal/regs"
	"github.com/go-daq/pixie16/firmware"
	"github.com/go-daq/pixie16/hwio"
	"github.com/go-daq/pixie16/param"
)

// Simulated module identity.
const (
	SimRevision = 15 // Rev F
	SimADCBits  = 12
	SimADCMsps  = 100

	simFIFODepth = 131072
)

// SimVarImage builds a synthetic DSP VAR image laying the default
// descriptor tables out the way the DSP linker does: module inputs,
// module outputs, then the first channel block.
func SimVarImage() []byte {
	var (
		buf    bytes.Buffer
		mdescs = param.ModuleVarDescs()
		cdescs = param.ChannelVarDescs()
		addr   = uint32(0x4a000)
	)
	emit := func(descs []param.Desc, mode func(param.Mode) bool) {
		for i := range descs {
			if !mode(descs[i].Mode) {
				continue
			}
			fmt.Fprintf(&buf, "0x%06x  %s\n", addr, descs[i].Name)
			addr += uint32(descs[i].Size)
		}
	}
	in := func(m param.Mode) bool { return m != param.RO }
	out := func(m param.Mode) bool { return m == param.RO }
	emit(mdescs, in)
	emit(mdescs, out)
	emit(cdescs, in)
	emit(cdescs, out)
	return buf.Bytes()
}

// SimFirmware returns a firmware set for the simulated module
// revision, with synthetic in-memory images.
func SimFirmware() firmware.Module {
	img := make([]byte, 4096)
	for i := range img {
		img[i] = byte(i)
	}
	mk := func(device string) *firmware.Firmware {
		fw := &firmware.Firmware{
			Version:     "sim-1.0.0",
			ModRevision: SimRevision,
			Device:      device,
			Filename:    "sim://" + device,
		}
		fw.SetImage(img)
		return fw
	}
	varFW := &firmware.Firmware{
		Version:     "sim-1.0.0",
		ModRevision: SimRevision,
		Device:      firmware.Var,
		Filename:    "sim://var",
	}
	varFW.SetImage(SimVarImage())
	return firmware.Module{
		mk(firmware.Sys),
		mk(firmware.Fippi),
		mk(firmware.DSP),
		varFW,
	}
}

// SimDevice is an hwio.Sim wired with the behaviour of a Pixie-16
// module: boot handshakes, control tasks, run state and a list-mode
// FIFO generator producing a constant word rate.
type SimDevice struct {
	*hwio.Sim

	mu      sync.Mutex
	rate    float64 // generated FIFO words per second
	running bool
	testing bool
	start   time.Time
	drained uint64
	seq     uint32

	admap  *param.AddressMap
	cdescs []param.Desc
	mdescs []param.Desc
}

// NewSimDevice returns a simulated module whose FIFO produces rate
// words per second while a list-mode run or an lm-fifo test is active.
func NewSimDevice(rate float64) *SimDevice {
	dev := &SimDevice{
		Sim:    hwio.NewSim(),
		rate:   rate,
		mdescs: param.ModuleVarDescs(),
		cdescs: param.ChannelVarDescs(),
	}
	err := param.Load(bytes.NewReader(SimVarImage()), dev.mdescs, dev.cdescs)
	if err != nil {
		panic(err)
	}
	dev.admap, err = param.NewAddressMap(NumChannels, dev.mdescs, dev.cdescs)
	if err != nil {
		panic(err)
	}

	dev.Poke(regs.I2C_EEPROM, uint32(1234)<<8|SimRevision)
	dev.Poke(regs.I2C_EEPROM+4, SimADCBits<<16|SimADCMsps)

	dev.OnRead = dev.onRead
	dev.OnWrite = dev.onWrite
	dev.OnDMARead = dev.onDMARead
	return dev
}

func (dev *SimDevice) varAddr(v param.ModuleVar) uint32 {
	return dev.mdescs[v].Address
}

func (dev *SimDevice) chanVarAddr(v param.ChannelVar, ch int) uint32 {
	return dev.admap.ChannelAddr(&dev.cdescs[v], ch)
}

func (dev *SimDevice) onRead(off uint32, v uint32) (uint32, bool) {
	switch off {
	case regs.COM_CFG_STATUS:
		return regs.CFG_INIT | regs.COM_CFG_DONE, true
	case regs.SP_CFG_STATUS:
		return regs.CFG_INIT | regs.SP_CFG_DONE, true
	case regs.EXT_FIFO_STATUS:
		return uint32(dev.pending()), true
	}
	return 0, false
}

func (dev *SimDevice) pending() uint64 {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if !dev.running && !dev.testing {
		return 0
	}
	total := uint64(time.Since(dev.start).Seconds() * dev.rate)
	if total < dev.drained {
		return 0
	}
	n := total - dev.drained
	if n > simFIFODepth {
		n = simFIFODepth
	}
	return n
}

func (dev *SimDevice) onWrite(off uint32, v uint32) bool {
	switch off {
	case regs.CSR:
		if v&regs.CSR_RUNENA == 0 {
			dev.mu.Lock()
			dev.running = false
			dev.mu.Unlock()
			dev.Poke(regs.CSR, v&^uint32(regs.CSR_RUNACTIVE))
			return true
		}
		runTask := dev.PeekRAM(dev.varAddr(param.RunTask))
		ctrlTask := dev.PeekRAM(dev.varAddr(param.ControlTask))
		if runTask == regs.RUN_TASK_NOP {
			dev.controlTask(ctrlTask)
			dev.Poke(regs.CSR, v&^uint32(regs.CSR_RUNENA|regs.CSR_RUNACTIVE))
			return true
		}
		dev.mu.Lock()
		dev.running = true
		dev.start = time.Now()
		dev.drained = 0
		dev.mu.Unlock()
		dev.Poke(regs.CSR, v|regs.CSR_RUNACTIVE)
		return true

	case regs.DSP_CTRL:
		switch {
		case v&regs.DSP_RUN != 0:
			dev.Poke(regs.DSP_STATUS, regs.DSP_ACTIVE)
		case v&regs.DSP_RESET != 0:
			dev.Poke(regs.DSP_STATUS, 0)
		}
		dev.Poke(regs.DSP_CTRL, v)
		return true

	case regs.TEST_CTRL:
		dev.mu.Lock()
		dev.testing = v == 1
		dev.start = time.Now()
		dev.drained = 0
		dev.mu.Unlock()
		dev.Poke(regs.TEST_CTRL, v)
		return true
	}
	return false
}

func (dev *SimDevice) controlTask(task uint32) {
	switch task {
	case regs.CTRL_TASK_GET_BASELINES:
		const nbl = 64
		rec := 1 + NumChannels
		for i := 0; i < nbl; i++ {
			dev.PokeRAM(regs.IO_BUFFER+uint32(i*rec), uint32(i)*100)
			for ch := 0; ch < NumChannels; ch++ {
				dac := dev.PeekRAM(dev.chanVarAddr(param.OffsetDAC, ch))
				bl := float32(dac) / 65536 * float32(math.Pow(2, SimADCBits))
				dev.PokeRAM(
					regs.IO_BUFFER+uint32(i*rec+1+ch),
					math.Float32bits(bl),
				)
			}
		}
	case regs.CTRL_TASK_GET_TRACES:
		for ch := 0; ch < NumChannels; ch++ {
			base := uint32(regs.IO_BUFFER + ch*MaxADCTraceLength)
			for i := 0; i < 512; i++ {
				dev.PokeRAM(base+uint32(i), uint32(ch<<8|i&0xff))
			}
		}
	}
}

func (dev *SimDevice) onDMARead(addr uint32, dst []uint32) bool {
	if addr != regs.EXT_FIFO_MEM {
		return false
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	for i := range dst {
		dst[i] = dev.seq
		dev.seq++
	}
	dev.drained += uint64(len(dst))
	return true
}

// SimFinder returns a Finder producing n simulated modules in
// consecutive slots, each generating rate FIFO words per second.
func SimFinder(n int, rate float64) Finder {
	return func() ([]Device, error) {
		devs := make([]Device, n)
		for i := range devs {
			devs[i] = Device{
				Slot:    2 + i,
				PCIBus:  1,
				PCISlot: 2 + i,
				Driver:  NewSimDevice(rate),
			}
		}
		return devs, nil
	}
}

// NewSimCrate builds, probes and boots an n-module simulated crate.
func NewSimCrate(n int, rate float64) (*Crate, error) {
	crt := New(nil)
	err := crt.Initialize(SimFinder(n, rate), n, false)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = crt.Close()
		}
	}()
	for _, fw := range SimFirmware() {
		err = firmware.Add(crt.Firmwares, fw)
		if err != nil {
			return nil, err
		}
	}
	err = crt.SetFirmware()
	if err != nil {
		return nil, err
	}
	err = crt.Boot(BootAll)
	if err != nil {
		return nil, err
	}
	return crt, nil
}
