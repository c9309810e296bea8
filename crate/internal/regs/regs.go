// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regs holds the register map of a Pixie-16 module as seen
// through the PLX BAR window, and the DSP bus addresses the DMA engine
// reaches.
package regs // import "github.com/go-daq/pixie16/crate/internal/regs"

// Register window offsets.
const (
	COM_CFG_DATA   = 0x00 // system (Com) FPGA configuration data port
	COM_CFG_CTRL   = 0x04
	COM_CFG_STATUS = 0x08

	SP_CFG_DATA   = 0x0c // signal-processing (FiPPI) FPGA configuration
	SP_CFG_CTRL   = 0x10
	SP_CFG_STATUS = 0x14

	DSP_CTRL   = 0x20 // DSP reset/run control
	DSP_DATA   = 0x24 // DSP code download port
	DSP_STATUS = 0x28

	CSR = 0x48 // control/status register

	EXT_FIFO_STATUS = 0x4c // words available in the external FIFO
	EXT_FIFO_OVFL   = 0x54 // external FIFO overflow count
	TEST_CTRL       = 0x58 // self-test control (FIFO traffic generator)

	I2C_EEPROM = 0x10 // module EEPROM (serial, revision, ADC config)
)

// CSR bits.
const (
	CSR_RUNENA       = 1 << 0  // run enable
	CSR_DSP_DOWNLOAD = 1 << 1  // DSP code download in progress
	CSR_PCI_ACTIVE   = 1 << 2  // host holds the bus
	CSR_PULLUP       = 1 << 3  // wired-or trigger lines pullup
	CSR_DSP_RESET    = 1 << 4
	CSR_EXTFIFO_WML  = 1 << 6  // external FIFO watermark level reached
	CSR_RUNACTIVE    = 1 << 13 // run in progress
)

// FPGA configuration control words.
const (
	COM_CFG_PRE  = 0x552 // assert PROGB, clear done
	COM_CFG_GO   = 0x52  // release PROGB, start streaming
	COM_CFG_DONE = 1 << 0

	SP_CFG_PRE  = 0xaa2
	SP_CFG_GO   = 0xa2
	SP_CFG_DONE = 1 << 0

	CFG_INIT = 1 << 1 // configuration logic ready for data
)

// DSP control words.
const (
	DSP_RESET = 1 << 0
	DSP_RUN   = 1 << 1

	DSP_ACTIVE = 1 << 0 // DSP code is running
)

// DSP bus addresses reached over DMA.
const (
	DATA_MEMORY   = 0x4a000  // DSP parameter (data) memory
	HIST_MEMORY   = 0x40000  // MCA histogram memory
	IO_BUFFER     = 0x50000  // control-task I/O buffer (traces, baselines)
	EXT_FIFO_MEM  = 0x200000 // external FIFO read port
	HIST_CHAN_LEN = 0x8000   // histogram words per channel
)

// Run tasks.
const (
	RUN_TASK_NOP      = 0x000
	RUN_TASK_LISTMODE = 0x100
	RUN_TASK_MCA      = 0x301
)

// Control tasks.
const (
	CTRL_TASK_SET_DACS       = 0
	CTRL_TASK_ENABLE_INPUT   = 1
	CTRL_TASK_RAMP_OFFSETDAC = 3
	CTRL_TASK_GET_TRACES     = 4
	CTRL_TASK_PROGRAM_FIPPI  = 5
	CTRL_TASK_GET_BASELINES  = 6
	CTRL_TASK_RESET_ADC      = 23
	CTRL_TASK_ADJUST_OFFSETS = 0x83
)

// Run modes.
const (
	RUN_MODE_NEW    = 0 // clear and start
	RUN_MODE_RESUME = 1
)
