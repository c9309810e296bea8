// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crate

import (
	"time"

	"github.com/go-daq/pixie16/crate/internal/regs"
	"github.com/go-daq/pixie16/errs"
	"github.com/go-daq/pixie16/firmware"
	"github.com/go-daq/pixie16/hwio"
	"github.com/go-daq/pixie16/param"
)

// Boot pattern bits. BootAll performs every stage; BootFast assumes
// the FPGAs and the DSP code are already configured.
const (
	BootComFPGA      = 0x01
	BootTrigFPGA     = 0x02 // revisions with a separate trigger FPGA
	BootSPFPGA       = 0x04
	BootDSPCode      = 0x08
	BootDSPPars      = 0x10 // DSP variable addresses + parameter values
	BootProgramFippi = 0x20
	BootSetDACs      = 0x40

	BootAll  = 0x7f
	BootFast = 0x70
)

const (
	bootRetries      = 3
	bootVerifyBudget = 2 * time.Second
	bootVerifyPoll   = 1 * time.Millisecond
)

// fpgaLoader is the per-image load state machine. The Com and SP FPGA
// loads share this pattern, parameterised by the control-register
// triple and the control-word pairs; the DSP code download in bootDSP
// does not use it and runs its own reset/download/start sequence.
type fpgaLoader struct {
	name string

	data   uint32 // data port
	ctrl   uint32 // control register
	status uint32 // read-status register

	preCtrl  uint32 // written to ctrl to enter configuration
	preMask  uint32 // status readiness: status&preMask == preVal
	preVal   uint32
	goCtrl   uint32 // written to ctrl to start streaming
	postMask uint32 // status done: status&postMask == postVal
	postVal  uint32
}

var comLoader = fpgaLoader{
	name:     "com-fpga",
	data:     regs.COM_CFG_DATA,
	ctrl:     regs.COM_CFG_CTRL,
	status:   regs.COM_CFG_STATUS,
	preCtrl:  regs.COM_CFG_PRE,
	preMask:  regs.CFG_INIT,
	preVal:   regs.CFG_INIT,
	goCtrl:   regs.COM_CFG_GO,
	postMask: regs.COM_CFG_DONE,
	postVal:  regs.COM_CFG_DONE,
}

var spLoader = fpgaLoader{
	name:     "sp-fpga",
	data:     regs.SP_CFG_DATA,
	ctrl:     regs.SP_CFG_CTRL,
	status:   regs.SP_CFG_STATUS,
	preCtrl:  regs.SP_CFG_PRE,
	preMask:  regs.CFG_INIT,
	preVal:   regs.CFG_INIT,
	goCtrl:   regs.SP_CFG_GO,
	postMask: regs.SP_CFG_DONE,
	postVal:  regs.SP_CFG_DONE,
}

// load runs the prepare/streaming/verify sequence, retrying the
// streaming pass a bounded number of times.
func (fl *fpgaLoader) load(mod *Module, image []uint32) error {
	var err error
	for try := 0; try < bootRetries; try++ {
		err = fl.loadOnce(mod, image)
		if err == nil {
			return nil
		}
		mod.msg.Printf("module %d: %s load failed (try %d/%d): %+v",
			mod.Number, fl.name, try+1, bootRetries, err,
		)
	}
	return errs.Wrap(errs.DeviceBootFailure, err,
		"module %d: could not load %s", mod.Number, fl.name,
	)
}

func (fl *fpgaLoader) loadOnce(mod *Module, image []uint32) error {
	// prepare
	err := mod.drv.WriteWord(fl.ctrl, fl.preCtrl)
	if err != nil {
		return err
	}
	err = fl.await(mod, fl.preMask, fl.preVal)
	if err != nil {
		return errs.Wrap(errs.DeviceInitializeFailure, err,
			"%s not ready for configuration", fl.name,
		)
	}
	err = mod.drv.WriteWord(fl.ctrl, fl.goCtrl)
	if err != nil {
		return err
	}

	// streaming
	for i, w := range image {
		err = mod.drv.WriteWord(fl.data, w)
		if err != nil {
			return errs.Wrap(errs.DeviceImageFailure, err,
				"%s image word %d/%d", fl.name, i, len(image),
			)
		}
	}

	// verify
	err = fl.await(mod, fl.postMask, fl.postVal)
	if err != nil {
		return errs.Wrap(errs.DeviceBootFailure, err,
			"%s did not assert done", fl.name,
		)
	}
	return nil
}

func (fl *fpgaLoader) await(mod *Module, mask, want uint32) error {
	deadline := time.Now().Add(bootVerifyBudget)
	for {
		v, err := mod.drv.ReadWord(fl.status)
		if err != nil {
			return err
		}
		if v&mask == want {
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.DeviceBootFailure,
				"%s status timeout (got=0x%x, want=0x%x, mask=0x%x)",
				fl.name, v, want, mask,
			)
		}
		time.Sleep(bootVerifyPoll)
	}
}

func (mod *Module) bootFPGA(fl *fpgaLoader, device string) error {
	fw, err := firmware.Find(mod.fw, device, mod.Slot)
	if err != nil {
		return errs.Wrap(errs.ModuleInvalidFirmware, err,
			"module %d: no %s firmware", mod.Number, device,
		)
	}
	image, err := fw.Words()
	if err != nil {
		return err
	}
	mod.msg.Printf("module %d: loading %s (%s, %d words)...",
		mod.Number, fl.name, fw.Version, len(image),
	)
	return fl.load(mod, image)
}

func (mod *Module) bootDSP() error {
	fw, err := firmware.Find(mod.fw, firmware.DSP, mod.Slot)
	if err != nil {
		return errs.Wrap(errs.ModuleInvalidFirmware, err,
			"module %d: no DSP firmware", mod.Number,
		)
	}
	image, err := fw.Words()
	if err != nil {
		return err
	}
	mod.msg.Printf("module %d: loading DSP code (%s, %d words)...",
		mod.Number, fw.Version, len(image),
	)

	var werr error
	w := func(off, v uint32) {
		if werr != nil {
			return
		}
		werr = mod.drv.WriteWord(off, v)
	}
	w(regs.DSP_CTRL, regs.DSP_RESET)
	w(regs.CSR, regs.CSR_DSP_DOWNLOAD)
	for _, v := range image {
		w(regs.DSP_DATA, v)
	}
	w(regs.CSR, 0)
	w(regs.DSP_CTRL, regs.DSP_RUN)
	if werr != nil {
		return errs.Wrap(errs.DeviceBootFailure, werr,
			"module %d: DSP code download failed", mod.Number,
		)
	}

	deadline := time.Now().Add(bootVerifyBudget)
	for {
		v, err := mod.drv.ReadWord(regs.DSP_STATUS)
		if err != nil {
			return err
		}
		if v&regs.DSP_ACTIVE == regs.DSP_ACTIVE {
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.DeviceBootFailure,
				"module %d: DSP did not start (status=0x%x)", mod.Number, v,
			)
		}
		time.Sleep(bootVerifyPoll)
	}
}

// Boot runs the boot stages selected by pattern in the fixed order
// ComFPGA, SPFPGA, DSP code, DSP variables, DSP parameters, FiPPI
// programming and DAC setting. A zero pattern is a no-op. Any image
// failure aborts the boot and the module stays offline.
func (mod *Module) Boot(pattern byte) error {
	if pattern == 0 {
		return nil
	}
	if !mod.opened {
		return errs.New(errs.ModuleOffline, "module %d: not open", mod.Number)
	}

	guard := hwio.NewGuard(&mod.mu)

	var err error
	if pattern&BootComFPGA != 0 {
		err = mod.bootFPGA(&comLoader, firmware.Sys)
	}
	if err == nil && pattern&BootSPFPGA != 0 {
		err = mod.bootFPGA(&spLoader, firmware.Fippi)
	}
	if err == nil && pattern&BootDSPCode != 0 {
		err = mod.bootDSP()
	}
	guard.Release()
	if err != nil {
		mod.online = false
		return err
	}

	if pattern&BootDSPPars != 0 {
		if !mod.probed {
			err = mod.Probe()
			if err != nil {
				mod.online = false
				return err
			}
		}
		err = mod.SyncVars()
		if err != nil {
			mod.online = false
			return err
		}
	}

	mod.booted = true
	mod.online = true

	if pattern&BootProgramFippi != 0 {
		err = mod.controlTask(regs.CTRL_TASK_PROGRAM_FIPPI, controlTaskTimeout)
		if err != nil {
			mod.online = false
			return err
		}
	}
	if pattern&BootSetDACs != 0 {
		err = mod.controlTask(regs.CTRL_TASK_SET_DACS, controlTaskTimeout)
		if err != nil {
			mod.online = false
			return err
		}
		for ch := 0; ch < mod.NumChannels; ch++ {
			v, err := mod.ReadChannelVar(param.OffsetDAC, ch, 0)
			if err != nil {
				break
			}
			mod.offsets[ch] = v
		}
	}

	mod.msg.Printf("module %d: boot pattern=0x%02x [done]", mod.Number, pattern)
	return nil
}
